package overlay

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/aheadley/overviewer-bg3-mods/pkg/errors"
)

// diskBase answers queries from the real filesystem under root.
type diskBase struct {
	root string
}

func (d *diskBase) abs(rel string) string {
	return filepath.Join(d.root, filepath.FromSlash(rel))
}

func (d *diskBase) Exists(rel string) bool {
	_, err := os.Stat(d.abs(rel))
	return err == nil
}

func (d *diskBase) IsDir(rel string) bool {
	info, err := os.Stat(d.abs(rel))
	return err == nil && info.IsDir()
}

func (d *diskBase) IsFile(rel string) bool {
	info, err := os.Stat(d.abs(rel))
	return err == nil && info.Mode().IsRegular()
}

func (d *diskBase) List(rel string) []string {
	dirents, err := os.ReadDir(d.abs(rel))
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(dirents))
	for _, de := range dirents {
		names = append(names, de.Name())
	}
	return names
}

func (d *diskBase) ContentPath(rel string) (string, bool) {
	if !d.IsFile(rel) {
		return "", false
	}
	return d.abs(rel), true
}

// sameBytes compares two files byte for byte.
func sameBytes(a, b string) (bool, error) {
	fa, err := os.Open(a)
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrFileAccess, "failed to open %s", a)
	}
	defer func() { _ = fa.Close() }()

	fb, err := os.Open(b)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, errors.ErrFileAccess, "failed to open %s", b)
	}
	defer func() { _ = fb.Close() }()

	ia, err := fa.Stat()
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", a)
	}
	ib, err := fb.Stat()
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", b)
	}
	if ia.Size() != ib.Size() {
		return false, nil
	}

	bufA := make([]byte, 64*1024)
	bufB := make([]byte, 64*1024)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		if errA == io.EOF || errA == io.ErrUnexpectedEOF {
			if errB == io.EOF || errB == io.ErrUnexpectedEOF {
				return true, nil
			}
			return false, nil
		}
		if errA != nil {
			return false, errors.Wrapf(errA, errors.ErrFileAccess, "failed to read %s", a)
		}
		if errB != nil {
			return false, errors.Wrapf(errB, errors.ErrFileAccess, "failed to read %s", b)
		}
	}
}
