// Package installer plans and commits deployments into a single target
// root. A deployment is transactional: every mutation is journaled
// before it happens, so a later run can reverse exactly what was done,
// even after a crash mid-deploy or after third-party edits to the
// deployed files.
//
// Planning runs over two stacked overlays. The undo overlay projects the
// reversal of the existing journal onto the real disk; the deploy
// overlay projects the new installation onto the undo overlay's view.
// Preview and commit share the plan: preview renders the step sequence,
// commit executes it.
package installer

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aheadley/overviewer-bg3-mods/pkg/errors"
	"github.com/aheadley/overviewer-bg3-mods/pkg/fingerprint"
	"github.com/aheadley/overviewer-bg3-mods/pkg/journal"
	"github.com/aheadley/overviewer-bg3-mods/pkg/logging"
	"github.com/aheadley/overviewer-bg3-mods/pkg/overlay"
)

// Options adjusts installer policy. The zero value is usable.
type Options struct {
	// Protected lists root-relative paths the undo pass must never
	// delete, no matter what the journal says.
	Protected []string

	// BackupSuffix is appended to a file's name when it is moved aside
	// before an overwrite. Defaults to ".bak".
	BackupSuffix string

	// JournalName is the journal file name inside the root. Defaults to
	// journal.DefaultName.
	JournalName string
}

// Installer plans and commits one deployment round for one target root:
// first the reversal of whatever the journal records, then the new
// installation on top.
type Installer struct {
	root      string
	suffix    string
	protected map[string]bool

	journalPath string
	snapshot    []journal.Entry
	hadJournal  bool

	undoOv   *overlay.Overlay
	deployOv *overlay.Overlay

	undoSteps []Step
	steps     []Step
	planned   bool

	logger zerolog.Logger
}

// New creates an installer for the target root and loads its journal.
func New(root string, opts Options) (*Installer, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidInput, "bad target root %s", root)
	}

	suffix := opts.BackupSuffix
	if suffix == "" {
		suffix = ".bak"
	}
	name := opts.JournalName
	if name == "" {
		name = journal.DefaultName
	}

	protected := make(map[string]bool, len(opts.Protected))
	for _, p := range opts.Protected {
		protected[overlay.Normalize(p)] = true
	}

	ins := &Installer{
		root:        root,
		suffix:      suffix,
		protected:   protected,
		journalPath: filepath.Join(root, name),
		logger:      logging.GetLogger("installer").With().Str("root", root).Logger(),
	}

	ins.snapshot, err = journal.Load(ins.journalPath)
	if err != nil {
		return nil, err
	}
	// An empty journal file still has to be consumed by the undo phase.
	if _, err := os.Stat(ins.journalPath); err == nil {
		ins.hadJournal = true
	}

	ins.undoOv = overlay.NewRoot(root)
	ins.deployOv = overlay.New(ins.undoOv)
	return ins, nil
}

// Root returns the absolute target root.
func (ins *Installer) Root() string {
	return ins.root
}

// PlanUndo plans the reversal of every journal entry, newest first.
// Entries whose target was modified, is protected, or is already gone
// produce Forget steps: the journal entry is consumed without touching
// the disk. Call before any PlanInstall so the new installation is
// planned against the post-undo state.
func (ins *Installer) PlanUndo() error {
	for i := len(ins.snapshot) - 1; i >= 0; i-- {
		entry := ins.snapshot[i]
		step, err := ins.planUndoEntry(entry)
		if err != nil {
			return err
		}
		step.shrinkTo = entry.Offset
		ins.undoSteps = append(ins.undoSteps, step)
	}
	return nil
}

func (ins *Installer) planUndoEntry(entry journal.Entry) (Step, error) {
	switch entry.Op {
	case journal.OpInstall:
		return ins.planUndoInstall(entry.Args[0], entry.Args[1])
	case journal.OpMove:
		return ins.planUndoMove(entry.Args[0], entry.Args[1])
	case journal.OpMkdir:
		return ins.planUndoMkdir(entry.Args[0])
	default:
		return Step{}, errors.Newf(errors.ErrInternal, "unplannable journal opcode %q", entry.Op)
	}
}

// planUndoInstall decides whether a recorded install can be deleted: only
// when the file still exists, is not protected, and still carries the
// recorded content fingerprint. Anything else stays on disk.
func (ins *Installer) planUndoInstall(rel, digest string) (Step, error) {
	rel = overlay.Normalize(rel)
	if ins.protected[rel] {
		return Step{Action: ActionForget, Path: rel, Note: "protected, keeping"}, nil
	}
	if !ins.undoOv.Exists(rel) {
		return Step{Action: ActionForget, Path: rel, Note: "already gone"}, nil
	}
	if !ins.undoOv.IsFile(rel) {
		return Step{}, errors.Newf(errors.ErrPathConflict,
			"recorded file is now a directory: %s", rel)
	}

	contentPath, ok := ins.undoOv.ContentPath(rel)
	if !ok {
		return Step{}, errors.Newf(errors.ErrInternal, "no content for recorded file %s", rel)
	}
	current, err := fingerprint.File(contentPath)
	if err != nil {
		return Step{}, err
	}
	if current != digest {
		return Step{Action: ActionForget, Path: rel, Note: "modified, keeping"}, nil
	}

	if err := ins.undoOv.RemoveFile(rel); err != nil {
		return Step{}, err
	}
	return Step{Action: ActionDelete, Path: rel}, nil
}

// planUndoMove decides whether a backup can be restored over its original
// path: only when the backup still exists and the original path is vacant
// after earlier undo steps. A still-occupied original means the installed
// file was modified and kept, so the backup is kept alongside it.
func (ins *Installer) planUndoMove(origRel, backupRel string) (Step, error) {
	origRel = overlay.Normalize(origRel)
	backupRel = overlay.Normalize(backupRel)

	if !ins.undoOv.IsFile(backupRel) {
		return Step{Action: ActionForget, Path: origRel, Note: "backup gone"}, nil
	}
	if ins.undoOv.Exists(origRel) {
		return Step{Action: ActionForget, Path: origRel, Note: "target occupied, keeping backup"}, nil
	}

	backupAbs := filepath.Join(ins.root, filepath.FromSlash(backupRel))
	if err := ins.undoOv.InstallFile(backupAbs, origRel); err != nil {
		return Step{}, err
	}
	if err := ins.undoOv.RemoveFile(backupRel); err != nil {
		return Step{}, err
	}
	return Step{Action: ActionRestore, Path: origRel, Source: backupRel}, nil
}

// planUndoMkdir removes a recorded directory only if it is still a
// directory and will be empty once earlier undo steps have run.
func (ins *Installer) planUndoMkdir(rel string) (Step, error) {
	rel = overlay.Normalize(rel)
	if !ins.undoOv.Exists(rel) {
		return Step{Action: ActionForget, Path: rel, Note: "already gone"}, nil
	}
	if !ins.undoOv.IsDir(rel) {
		return Step{}, errors.Newf(errors.ErrPathConflict,
			"recorded directory is now a file: %s", rel)
	}
	if len(ins.undoOv.List(rel)) > 0 {
		return Step{Action: ActionForget, Path: rel, Note: "not empty, keeping"}, nil
	}
	if err := ins.undoOv.RemoveDir(rel); err != nil {
		return Step{}, err
	}
	return Step{Action: ActionRmdir, Path: rel}, nil
}

// PlanInstall queues installation of every file under the absolute
// directory srcDir into dstRel inside the root. Existing files with
// different content are moved aside to a backup first.
func (ins *Installer) PlanInstall(srcDir, dstRel string) error {
	srcDir, err := filepath.Abs(srcDir)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInvalidInput, "bad source directory %s", srcDir)
	}
	dstRel = overlay.Normalize(dstRel)
	return filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to walk source tree %s", srcDir)
		}
		if d.IsDir() {
			return nil
		}
		leaf, err := filepath.Rel(srcDir, p)
		if err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "failed to relativize %s", p)
		}
		return ins.planInstallFile(p, path.Join(dstRel, filepath.ToSlash(leaf)))
	})
}

// planInstallFile installs one file, moving any existing different file
// aside first. An existing file already targeted by a pending operation
// (an earlier source won the path) is overwritten without a backup; the
// backup policy protects what was on disk before this run, not the
// intermediate states of the run itself.
func (ins *Installer) planInstallFile(srcAbs, dstRel string) error {
	if !ins.deployOv.HasPending(dstRel) && ins.deployOv.IsFile(dstRel) {
		same, err := ins.deployOv.SameContent(srcAbs, dstRel, false)
		if err != nil {
			return err
		}
		if !same {
			if err := ins.deployOv.MoveFile(dstRel, dstRel+ins.suffix); err != nil {
				return err
			}
		}
	}
	return ins.deployOv.InstallFile(srcAbs, dstRel)
}

// Steps returns the full planned step sequence: undo steps first, then
// the deploy steps in dependency order. The result is cached; planning
// must be complete before the first call.
func (ins *Installer) Steps() ([]Step, error) {
	if ins.planned {
		return ins.steps, nil
	}

	steps := make([]Step, 0, len(ins.undoSteps)+ins.deployOv.Len())
	steps = append(steps, ins.undoSteps...)

	for _, op := range ins.deployOv.Ops() {
		switch op.Kind {
		case overlay.KindCreateDir:
			steps = append(steps, Step{Action: ActionMkdir, Path: op.Path})
		case overlay.KindMoveBackup:
			steps = append(steps, Step{Action: ActionBackup, Path: op.Source, Source: op.Path})
		case overlay.KindCreateFile:
			digest, err := fingerprint.File(op.Source)
			if err != nil {
				return nil, err
			}
			steps = append(steps, Step{
				Action: ActionInstall,
				Path:   op.Path,
				Source: op.Source,
				Digest: digest,
			})
		default:
			return nil, errors.Newf(errors.ErrInternal,
				"pending %v operation survived planning: %s", op.Kind, op.Path)
		}
	}

	ins.steps = steps
	ins.planned = true
	return steps, nil
}

// HasChanges reports whether committing would do anything, including
// consuming journal entries whose operations are kept.
func (ins *Installer) HasChanges() (bool, error) {
	steps, err := ins.Steps()
	if err != nil {
		return false, err
	}
	return len(steps) > 0, nil
}

// abs converts a normalized root-relative path to an absolute one.
func (ins *Installer) abs(rel string) string {
	return filepath.Join(ins.root, filepath.FromSlash(rel))
}
