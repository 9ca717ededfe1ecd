package installer

import (
	"io"
	"os"

	"github.com/aheadley/overviewer-bg3-mods/pkg/errors"
	"github.com/aheadley/overviewer-bg3-mods/pkg/journal"
)

// Commit executes the planned steps against the real filesystem. The
// undo phase reverses each journaled operation and truncates its entry
// away, deleting the journal once it is empty; the deploy phase appends
// each new operation to a fresh journal before applying it. If the
// journal changed since planning (another process ran in between)
// nothing is touched and RECORD_CHANGED is returned.
func (ins *Installer) Commit() error {
	steps, err := ins.Steps()
	if err != nil {
		return err
	}
	if len(steps) == 0 && !ins.hadJournal {
		return nil
	}

	current, err := journal.Load(ins.journalPath)
	if err != nil {
		return err
	}
	if !journal.Equal(current, ins.snapshot) {
		return errors.Newf(errors.ErrRecordChanged,
			"journal %s changed since planning; aborting", ins.journalPath)
	}

	undoEnd := 0
	for undoEnd < len(steps) && steps[undoEnd].Action.isUndo() {
		undoEnd++
	}
	if undoEnd != len(ins.snapshot) {
		return errors.Newf(errors.ErrRecordBusy,
			"journal %s has unreversed entries; undo must be planned first", ins.journalPath)
	}

	if ins.hadJournal {
		if err := ins.commitUndo(steps[:undoEnd]); err != nil {
			return err
		}
	}
	if undoEnd < len(steps) {
		if err := ins.commitDeploy(steps[undoEnd:]); err != nil {
			return err
		}
	}

	ins.logger.Info().Int("steps", len(steps)).Msg("Deployment committed")
	return nil
}

// commitUndo reverses journaled operations newest-first. Each step
// mutates the filesystem and then truncates its entry away, so an
// interrupted undo leaves a journal describing exactly what is still
// applied. The emptied journal is deleted.
func (ins *Installer) commitUndo(steps []Step) error {
	rec, err := journal.Open(ins.journalPath)
	if err != nil {
		return err
	}

	for _, step := range steps {
		ins.logger.Debug().
			Stringer("action", step.Action).
			Str("path", step.Path).
			Msg("Reversing")
		if err := ins.applyUndo(step); err != nil {
			_ = rec.Close()
			return err
		}
		if err := rec.Shrink(step.shrinkTo); err != nil {
			_ = rec.Close()
			return err
		}
	}

	if !rec.Empty() {
		_ = rec.Close()
		return errors.Newf(errors.ErrInternal, "journal %s not empty after undo", ins.journalPath)
	}
	return rec.Remove()
}

func (ins *Installer) applyUndo(step Step) error {
	switch step.Action {
	case ActionForget:
		return nil

	case ActionDelete:
		if err := os.Remove(ins.abs(step.Path)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to delete %s", step.Path)
		}
		return nil

	case ActionRestore:
		if err := copyFile(ins.abs(step.Source), ins.abs(step.Path)); err != nil {
			return err
		}
		if err := os.Remove(ins.abs(step.Source)); err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to delete backup %s", step.Source)
		}
		return nil

	case ActionRmdir:
		if err := os.Remove(ins.abs(step.Path)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to remove directory %s", step.Path)
		}
		return nil

	default:
		return errors.Newf(errors.ErrInternal, "bad undo action %v", step.Action)
	}
}

// commitDeploy applies new operations, journaling each one durably
// before touching the filesystem. The journal may describe one more
// operation than was applied after a crash; the next undo pass handles
// that by treating missing targets as already reversed.
func (ins *Installer) commitDeploy(steps []Step) error {
	rec, err := journal.Create(ins.journalPath)
	if err != nil {
		return err
	}

	for _, step := range steps {
		ins.logger.Debug().
			Stringer("action", step.Action).
			Str("path", step.Path).
			Msg("Applying")
		if err := ins.applyDeploy(rec, step); err != nil {
			_ = rec.Close()
			return err
		}
	}
	return rec.Close()
}

func (ins *Installer) applyDeploy(rec *journal.Record, step Step) error {
	switch step.Action {
	case ActionMkdir:
		if err := rec.Append(journal.OpMkdir, step.Path); err != nil {
			return err
		}
		if err := os.Mkdir(ins.abs(step.Path), 0755); err != nil && !os.IsExist(err) {
			return errors.Wrapf(err, errors.ErrDirCreate, "failed to create directory %s", step.Path)
		}
		return nil

	case ActionBackup:
		if err := rec.Append(journal.OpMove, step.Path, step.Source); err != nil {
			return err
		}
		if err := os.Rename(ins.abs(step.Path), ins.abs(step.Source)); err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to back up %s", step.Path)
		}
		return nil

	case ActionInstall:
		if err := rec.Append(journal.OpInstall, step.Path, step.Digest); err != nil {
			return err
		}
		return copyFile(step.Source, ins.abs(step.Path))

	default:
		return errors.Newf(errors.ErrInternal, "bad deploy action %v", step.Action)
	}
}

// copyFile copies src to dst, preserving the source file mode. The
// destination is synced before return.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to open %s", src)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", src)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileCreate, "failed to create %s", dst)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to write %s", dst)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to sync %s", dst)
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to close %s", dst)
	}
	return nil
}
