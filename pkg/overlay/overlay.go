// Package overlay provides a virtual view of a directory tree that
// combines an underlying state (usually the real disk) with an ordered
// sequence of pending, not-yet-applied operations. Planning primitives
// queue pending operations; every query answers as if the pending
// operations had already been applied.
//
// Pending operations are keyed by normalized root-relative path. At most
// one operation is pending per path: re-targeting a path removes the old
// operation from its position and appends the new one at the end, so the
// sequence stays in dependency order (directories before the files
// inside them). Operations that turn out to be no-ops against the
// underlying state are dropped immediately, keeping the plan minimal.
//
// Overlays stack: an Overlay is itself a Base, so a second planning pass
// can treat the outcome of a first pass as its ground truth.
package overlay

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aheadley/overviewer-bg3-mods/pkg/errors"
)

// Kind classifies a pending operation.
type Kind int

const (
	// KindCreateFile copies a source file to the path.
	KindCreateFile Kind = iota
	// KindCreateDir creates a directory at the path.
	KindCreateDir
	// KindRemove deletes the file or empty directory at the path.
	KindRemove
	// KindMoveBackup renames an existing file to the path; Source holds
	// the normalized path the file is moved from.
	KindMoveBackup
)

// Op is one pending operation. Path is normalized and root-relative.
// Source is the absolute source file for KindCreateFile and the
// normalized origin path for KindMoveBackup; empty otherwise.
type Op struct {
	Path   string
	Kind   Kind
	Source string
}

// Base is the underlying state an Overlay projects its pending
// operations onto. Paths are normalized and root-relative.
type Base interface {
	Exists(rel string) bool
	IsDir(rel string) bool
	IsFile(rel string) bool
	// List returns the names of the direct children of rel, if rel is a
	// directory.
	List(rel string) []string
	// ContentPath returns an absolute path whose bytes are the effective
	// content of rel, and whether rel is a file at all.
	ContentPath(rel string) (string, bool)
}

// Normalize canonicalizes a root-relative path for use as an operation
// key: forward slashes, no ".." or ".", "" for the root itself.
func Normalize(p string) string {
	p = path.Clean(filepath.ToSlash(p))
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// Overlay is a Base plus an ordered sequence of pending operations.
type Overlay struct {
	base Base
	ops  []Op
	idx  map[string]int
}

// New creates an overlay projecting onto the given base.
func New(base Base) *Overlay {
	return &Overlay{
		base: base,
		idx:  make(map[string]int),
	}
}

// NewRoot creates an overlay directly over the real directory tree
// rooted at the absolute path root.
func NewRoot(root string) *Overlay {
	return New(&diskBase{root: root})
}

// Ops returns the pending operations in dependency order.
func (o *Overlay) Ops() []Op {
	return o.ops
}

// Len returns the number of pending operations.
func (o *Overlay) Len() int {
	return len(o.ops)
}

// HasPending reports whether an operation is already pending for rel.
func (o *Overlay) HasPending(rel string) bool {
	_, ok := o.idx[Normalize(rel)]
	return ok
}

// lookup returns the pending operation for rel, if any.
func (o *Overlay) lookup(rel string) (Op, bool) {
	i, ok := o.idx[rel]
	if !ok {
		return Op{}, false
	}
	return o.ops[i], true
}

// put queues an operation, replacing (and repositioning to the end) any
// prior operation for the same path.
func (o *Overlay) put(op Op) {
	o.drop(op.Path)
	o.idx[op.Path] = len(o.ops)
	o.ops = append(o.ops, op)
}

// drop discards the pending operation for rel, if any.
func (o *Overlay) drop(rel string) {
	i, ok := o.idx[rel]
	if !ok {
		return
	}
	o.ops = append(o.ops[:i], o.ops[i+1:]...)
	delete(o.idx, rel)
	for p, j := range o.idx {
		if j > i {
			o.idx[p] = j - 1
		}
	}
}

// Exists reports whether rel exists, accounting for pending operations.
func (o *Overlay) Exists(rel string) bool {
	rel = Normalize(rel)
	if op, ok := o.lookup(rel); ok {
		return op.Kind != KindRemove
	}
	return o.base.Exists(rel)
}

// IsDir reports whether rel is a directory, accounting for pending
// operations.
func (o *Overlay) IsDir(rel string) bool {
	rel = Normalize(rel)
	if op, ok := o.lookup(rel); ok {
		return op.Kind == KindCreateDir
	}
	return o.base.IsDir(rel)
}

// IsFile reports whether rel is a regular file, accounting for pending
// operations.
func (o *Overlay) IsFile(rel string) bool {
	rel = Normalize(rel)
	if op, ok := o.lookup(rel); ok {
		return op.Kind == KindCreateFile || op.Kind == KindMoveBackup
	}
	return o.base.IsFile(rel)
}

// ContentPath returns an absolute path holding the effective content of
// rel under the overlay.
func (o *Overlay) ContentPath(rel string) (string, bool) {
	rel = Normalize(rel)
	if op, ok := o.lookup(rel); ok {
		switch op.Kind {
		case KindCreateFile:
			return op.Source, true
		case KindMoveBackup:
			// The backup will hold whatever the origin path holds now.
			return o.base.ContentPath(op.Source)
		default:
			return "", false
		}
	}
	return o.base.ContentPath(rel)
}

// List returns the names of the direct children of rel: base children
// that still exist under the overlay, plus children introduced by
// pending operations.
func (o *Overlay) List(rel string) []string {
	rel = Normalize(rel)
	var names []string
	seen := make(map[string]bool)

	for _, name := range o.base.List(rel) {
		child := Normalize(path.Join(rel, name))
		if o.Exists(child) && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	prefix := ""
	if rel != "" {
		prefix = rel + "/"
	}
	for _, op := range o.ops {
		if op.Kind == KindRemove {
			continue
		}
		if !strings.HasPrefix(op.Path, prefix) {
			continue
		}
		leaf := op.Path[len(prefix):]
		if leaf == "" || strings.Contains(leaf, "/") {
			continue
		}
		if !seen[leaf] {
			seen[leaf] = true
			names = append(names, leaf)
		}
	}

	sort.Strings(names)
	return names
}

// SameContent reports whether the bytes of the absolute file srcAbs
// equal the effective content of dstRel. With ignoreOverlay set the
// comparison is made against the base alone, which detects installs
// that are already correct on the underlying state.
func (o *Overlay) SameContent(srcAbs, dstRel string, ignoreOverlay bool) (bool, error) {
	dstRel = Normalize(dstRel)
	var target string
	var ok bool
	if ignoreOverlay {
		target, ok = o.base.ContentPath(dstRel)
	} else {
		target, ok = o.ContentPath(dstRel)
	}
	if !ok {
		return false, nil
	}
	return sameBytes(srcAbs, target)
}

// MakeDir queues creation of a single directory. It is a no-op if rel is
// already a directory and an error if rel exists as something else. The
// queued operation is dropped if the directory already exists on the
// base, so the plan only records actual changes.
func (o *Overlay) MakeDir(rel string) error {
	rel = Normalize(rel)
	if rel == "" || o.IsDir(rel) {
		return nil
	}
	if o.Exists(rel) {
		return errors.Newf(errors.ErrPathConflict, "path expected to be a directory: %s", rel)
	}
	o.put(Op{Path: rel, Kind: KindCreateDir})
	if o.base.IsDir(rel) {
		o.drop(rel)
	}
	return nil
}

// MakeDirAll queues creation of rel and every missing ancestor, from the
// root down.
func (o *Overlay) MakeDirAll(rel string) error {
	rel = Normalize(rel)
	if rel == "" {
		return nil
	}
	if parent := path.Dir(rel); parent != "." {
		if err := o.MakeDirAll(parent); err != nil {
			return err
		}
	}
	return o.MakeDir(rel)
}

// RemoveDir queues removal of an empty directory. It is a no-op if rel
// does not exist and an error if rel is not a directory or not empty.
// The queued operation is dropped if the directory does not exist on
// the base.
func (o *Overlay) RemoveDir(rel string) error {
	rel = Normalize(rel)
	if !o.Exists(rel) {
		return nil
	}
	if !o.IsDir(rel) {
		return errors.Newf(errors.ErrPathConflict, "path expected to be a directory: %s", rel)
	}
	if len(o.List(rel)) > 0 {
		return errors.Newf(errors.ErrPathConflict, "directory not empty: %s", rel)
	}
	o.put(Op{Path: rel, Kind: KindRemove})
	if !o.base.Exists(rel) {
		o.drop(rel)
	}
	return nil
}

// RemoveFile queues removal of a file. It is a no-op if rel does not
// exist and an error if rel is not a file. The queued operation is
// dropped if the file does not exist on the base.
func (o *Overlay) RemoveFile(rel string) error {
	rel = Normalize(rel)
	if !o.Exists(rel) {
		return nil
	}
	if !o.IsFile(rel) {
		return errors.Newf(errors.ErrPathConflict, "path expected to be a file: %s", rel)
	}
	o.put(Op{Path: rel, Kind: KindRemove})
	if !o.base.Exists(rel) {
		o.drop(rel)
	}
	return nil
}

// InstallFile queues copying the absolute source file srcAbs to dstRel,
// creating parent directories as needed. It is a no-op if the target
// already has identical content, and the queued operation is dropped if
// the base alone already has identical content.
func (o *Overlay) InstallFile(srcAbs, dstRel string) error {
	dstRel = Normalize(dstRel)
	if parent := path.Dir(dstRel); parent != "." {
		if err := o.MakeDirAll(parent); err != nil {
			return err
		}
	}
	if o.IsDir(dstRel) {
		return errors.Newf(errors.ErrPathConflict, "path expected to be a file: %s", dstRel)
	}
	same, err := o.SameContent(srcAbs, dstRel, false)
	if err != nil {
		return err
	}
	if same {
		return nil
	}
	o.put(Op{Path: dstRel, Kind: KindCreateFile, Source: srcAbs})
	same, err = o.SameContent(srcAbs, dstRel, true)
	if err != nil {
		return err
	}
	if same {
		o.drop(dstRel)
	}
	return nil
}

// MoveFile queues renaming the file at fromRel aside to toRel, the
// backup-before-overwrite primitive. It requires fromRel to be a file
// and toRel to be vacant; callers are expected to queue a replacement
// for fromRel right after.
func (o *Overlay) MoveFile(fromRel, toRel string) error {
	fromRel = Normalize(fromRel)
	toRel = Normalize(toRel)
	if !o.IsFile(fromRel) {
		return errors.Newf(errors.ErrPathConflict, "path expected to be a file: %s", fromRel)
	}
	if o.Exists(toRel) {
		return errors.Newf(errors.ErrPathConflict, "backup target already exists: %s", toRel)
	}
	o.put(Op{Path: toRel, Kind: KindMoveBackup, Source: fromRel})
	o.put(Op{Path: fromRel, Kind: KindRemove})
	return nil
}

// InstallTree queues installation of every file under the absolute
// directory srcDir into dstRel, preserving the relative layout.
func (o *Overlay) InstallTree(srcDir, dstRel string) error {
	dstRel = Normalize(dstRel)
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
		return o.InstallFile(p, path.Join(dstRel, filepath.ToSlash(leaf)))
	})
}
