// Package journal implements the durable deployment record: an ordered,
// append-only log of primitive filesystem operations already applied to
// one target root. Each entry is a JSON-array line ["opcode", args...].
// The journal is appended to during deploy, truncated from the end as
// operations are reversed during undo, and deleted once empty. At any
// point its content describes exactly the operations still applied.
package journal

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/aheadley/overviewer-bg3-mods/pkg/errors"
)

// DefaultName is the journal file name inside a target root.
const DefaultName = "overviewer-bg3-mods.journal"

// Op is a journal opcode.
type Op string

const (
	// OpInstall records that a file was copied into the root.
	// Args: path, content fingerprint.
	OpInstall Op = "install"

	// OpMove records that an existing file was renamed aside before an
	// overwrite. Args: original path, backup path.
	OpMove Op = "move"

	// OpMkdir records that a directory was created. Args: path.
	OpMkdir Op = "mkdir"
)

// argCount maps each opcode to its required argument count.
var argCount = map[Op]int{
	OpInstall: 2,
	OpMove:    2,
	OpMkdir:   1,
}

// Entry is one recorded operation. Offset is the byte position of the
// entry within the journal file; truncating the file to Offset removes
// this entry and everything after it.
type Entry struct {
	Op     Op
	Args   []string
	Offset int64
}

// Equal reports whether two entries record the same operation at the
// same position.
func (e Entry) Equal(other Entry) bool {
	if e.Op != other.Op || e.Offset != other.Offset || len(e.Args) != len(other.Args) {
		return false
	}
	for i := range e.Args {
		if e.Args[i] != other.Args[i] {
			return false
		}
	}
	return true
}

// Equal reports whether two entry sequences are identical. Used to
// detect concurrent modification between planning and committing.
func Equal(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Load reads all entries from the journal at path. A missing journal is
// not an error; it yields (nil, nil). A malformed journal is reported as
// RECORD_CORRUPT.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to open journal %s", path)
	}
	defer func() { _ = f.Close() }()

	var entries []Entry
	var offset int64
	scanner := bufio.NewScanner(f)
	for lineno := 1; scanner.Scan(); lineno++ {
		line := scanner.Bytes()
		entry, err := decode(line)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrRecordCorrupt,
				"journal %s is corrupt at line %d", path, lineno)
		}
		entry.Offset = offset
		entries = append(entries, entry)
		offset += int64(len(line)) + 1
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read journal %s", path)
	}
	return entries, nil
}

func decode(line []byte) (Entry, error) {
	var fields []string
	if err := json.Unmarshal(line, &fields); err != nil {
		return Entry{}, err
	}
	if len(fields) == 0 {
		return Entry{}, errors.New(errors.ErrRecordCorrupt, "empty journal entry")
	}
	op := Op(fields[0])
	want, ok := argCount[op]
	if !ok {
		return Entry{}, errors.Newf(errors.ErrRecordCorrupt, "unknown opcode %q", fields[0])
	}
	if len(fields)-1 != want {
		return Entry{}, errors.Newf(errors.ErrRecordCorrupt,
			"opcode %q wants %d args, got %d", op, want, len(fields)-1)
	}
	return Entry{Op: op, Args: fields[1:]}, nil
}

// Record is an open journal file.
type Record struct {
	path string
	f    *os.File
	size int64
}

// Create opens a fresh journal for append with exclusive-create
// semantics. An already-present journal means an unfinished prior
// deployment that must be undone first; that is reported as RECORD_BUSY.
func Create(path string) (*Record, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.Newf(errors.ErrRecordBusy,
				"journal %s already exists; a previous deployment was not undone", path)
		}
		return nil, errors.Wrapf(err, errors.ErrFileCreate, "failed to create journal %s", path)
	}
	return &Record{path: path, f: f}, nil
}

// Open opens an existing journal for undo (truncation).
func Open(path string) (*Record, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to open journal %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to stat journal %s", path)
	}
	return &Record{path: path, f: f, size: info.Size()}, nil
}

// Path returns the journal file location.
func (r *Record) Path() string {
	return r.path
}

// Append durably records one operation. The entry is flushed to disk
// before Append returns, so the journal never lags behind the real
// filesystem by more than the operation being applied.
func (r *Record) Append(op Op, args ...string) error {
	if want := argCount[op]; len(args) != want {
		return errors.Newf(errors.ErrInternal, "opcode %q wants %d args, got %d", op, want, len(args))
	}
	fields := append([]string{string(op)}, args...)
	line, err := json.Marshal(fields)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to encode journal entry")
	}
	line = append(line, '\n')
	if _, err := r.f.Write(line); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to append to journal %s", r.path)
	}
	if err := r.f.Sync(); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to sync journal %s", r.path)
	}
	r.size += int64(len(line))
	return nil
}

// Shrink durably truncates the journal to offset, discarding the entry
// starting there and everything after it.
func (r *Record) Shrink(offset int64) error {
	if offset < 0 || offset > r.size {
		return errors.Newf(errors.ErrInternal, "bad journal offset %d (size %d)", offset, r.size)
	}
	if err := r.f.Truncate(offset); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to truncate journal %s", r.path)
	}
	if err := r.f.Sync(); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to sync journal %s", r.path)
	}
	r.size = offset
	return nil
}

// Empty reports whether every entry has been consumed.
func (r *Record) Empty() bool {
	return r.size == 0
}

// Close releases the file handle.
func (r *Record) Close() error {
	return r.f.Close()
}

// Remove closes and deletes the journal file. Used once an undo pass has
// consumed every entry.
func (r *Record) Remove() error {
	if err := r.f.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to close journal %s", r.path)
	}
	if err := os.Remove(r.path); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to delete journal %s", r.path)
	}
	return nil
}
