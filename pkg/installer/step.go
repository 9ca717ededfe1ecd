package installer

// Action is the primitive operation a Step performs against the target
// root.
type Action int

const (
	// ActionDelete removes a previously installed, unmodified file.
	ActionDelete Action = iota
	// ActionRestore copies a backup over its original path and deletes
	// the backup.
	ActionRestore
	// ActionRmdir removes a previously created, now-empty directory.
	ActionRmdir
	// ActionForget consumes a journal entry without touching the disk:
	// the target was modified, is protected, or is already gone.
	ActionForget
	// ActionMkdir creates a directory.
	ActionMkdir
	// ActionBackup renames an existing file aside before an overwrite.
	ActionBackup
	// ActionInstall copies a source file into place.
	ActionInstall
)

func (a Action) String() string {
	switch a {
	case ActionDelete:
		return "delete"
	case ActionRestore:
		return "restore"
	case ActionRmdir:
		return "rmdir"
	case ActionForget:
		return "keep"
	case ActionMkdir:
		return "mkdir"
	case ActionBackup:
		return "backup"
	case ActionInstall:
		return "install"
	default:
		return "unknown"
	}
}

// isUndo reports whether the action reverses a journal entry (and so
// shrinks the journal) rather than producing a new one.
func (a Action) isUndo() bool {
	switch a {
	case ActionDelete, ActionRestore, ActionRmdir, ActionForget:
		return true
	default:
		return false
	}
}

// Step is one planned primitive operation. The full step sequence is
// what preview mode prints and what commit mode performs; both are
// driven by the same plan.
type Step struct {
	Action Action

	// Path is the normalized root-relative target of the operation.
	Path string

	// Source depends on the action: the absolute source file for
	// ActionInstall, the backup path for ActionBackup (destination) and
	// ActionRestore (origin).
	Source string

	// Digest is the content fingerprint recorded for ActionInstall.
	Digest string

	// Note explains an ActionForget decision.
	Note string

	// shrinkTo is the journal offset this undo step truncates to.
	shrinkTo int64
}
