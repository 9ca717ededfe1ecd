package overlay_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aheadley/overviewer-bg3-mods/pkg/errors"
	"github.com/aheadley/overviewer-bg3-mods/pkg/overlay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFile creates a file (and parents) under dir with the given content.
func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Data/mod.pak", "Data/mod.pak"},
		{"./Data//mod.pak", "Data/mod.pak"},
		{"Data/sub/../mod.pak", "Data/mod.pak"},
		{"/Data/mod.pak", "Data/mod.pak"},
		{".", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, overlay.Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestQueries_DiskFallback(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Data/mod.pak", "content")

	o := overlay.NewRoot(root)

	assert.True(t, o.Exists("Data/mod.pak"))
	assert.True(t, o.IsFile("Data/mod.pak"))
	assert.False(t, o.IsDir("Data/mod.pak"))
	assert.True(t, o.IsDir("Data"))
	assert.False(t, o.Exists("Data/missing.pak"))
	assert.Equal(t, []string{"mod.pak"}, o.List("Data"))
}

func TestRemoveFile_OverlayTruth(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Data/mod.pak", "content")

	o := overlay.NewRoot(root)
	require.NoError(t, o.RemoveFile("Data/mod.pak"))

	assert.False(t, o.Exists("Data/mod.pak"))
	assert.False(t, o.IsFile("Data/mod.pak"))
	assert.Empty(t, o.List("Data"))
	assert.Equal(t, 1, o.Len())

	// Removing again is a no-op: the overlay already says it is gone.
	require.NoError(t, o.RemoveFile("Data/mod.pak"))
	assert.Equal(t, 1, o.Len())
}

func TestRemoveFile_DroppedWhenNotReal(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, t.TempDir(), "mod.pak", "new")

	o := overlay.NewRoot(root)
	require.NoError(t, o.InstallFile(src, "mod.pak"))
	require.Equal(t, 1, o.Len())

	// Removing a pending-only file cancels out to nothing.
	require.NoError(t, o.RemoveFile("mod.pak"))
	assert.Equal(t, 0, o.Len())
	assert.False(t, o.Exists("mod.pak"))
}

func TestInstallFile_QueuesParents(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, t.TempDir(), "mod.pak", "new")

	o := overlay.NewRoot(root)
	require.NoError(t, o.InstallFile(src, "Data/Mods/mod.pak"))

	ops := o.Ops()
	require.Len(t, ops, 3)
	assert.Equal(t, overlay.Op{Path: "Data", Kind: overlay.KindCreateDir}, ops[0])
	assert.Equal(t, overlay.Op{Path: "Data/Mods", Kind: overlay.KindCreateDir}, ops[1])
	assert.Equal(t, overlay.Op{Path: "Data/Mods/mod.pak", Kind: overlay.KindCreateFile, Source: src}, ops[2])

	assert.True(t, o.IsDir("Data"))
	assert.True(t, o.IsFile("Data/Mods/mod.pak"))
	assert.Equal(t, []string{"Mods"}, o.List("Data"))
}

func TestInstallFile_Idempotent(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, t.TempDir(), "mod.pak", "new")

	o := overlay.NewRoot(root)
	require.NoError(t, o.InstallFile(src, "Data/mod.pak"))
	n := o.Len()
	require.NoError(t, o.InstallFile(src, "Data/mod.pak"))
	assert.Equal(t, n, o.Len(), "second identical install must not add entries")
}

func TestInstallFile_NoOpWhenDiskCorrect(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Data/mod.pak", "same")
	src := writeFile(t, t.TempDir(), "mod.pak", "same")

	o := overlay.NewRoot(root)
	require.NoError(t, o.InstallFile(src, "Data/mod.pak"))
	assert.Equal(t, 0, o.Len(), "install of already-correct file must vanish from the plan")
}

func TestInstallFile_TargetIsDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Data"), 0755))
	src := writeFile(t, t.TempDir(), "mod.pak", "new")

	err := overlay.NewRoot(root).InstallFile(src, "Data")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrPathConflict))
}

func TestInstallFile_RetargetMovesToEnd(t *testing.T) {
	root := t.TempDir()
	srcDir := t.TempDir()
	first := writeFile(t, srcDir, "first.pak", "first")
	second := writeFile(t, srcDir, "second.pak", "second")
	other := writeFile(t, srcDir, "other.pak", "other")

	o := overlay.NewRoot(root)
	require.NoError(t, o.InstallFile(first, "mod.pak"))
	require.NoError(t, o.InstallFile(other, "other.pak"))
	require.NoError(t, o.InstallFile(second, "mod.pak"))

	ops := o.Ops()
	require.Len(t, ops, 2)
	assert.Equal(t, "other.pak", ops[0].Path)
	assert.Equal(t, "mod.pak", ops[1].Path)
	assert.Equal(t, second, ops[1].Source, "most recent source wins")
}

func TestMakeDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "existing"), 0755))
	writeFile(t, root, "file.txt", "x")

	o := overlay.NewRoot(root)

	// Already a directory on disk: no pending entry.
	require.NoError(t, o.MakeDir("existing"))
	assert.Equal(t, 0, o.Len())

	// Exists as a file: conflict.
	err := o.MakeDir("file.txt")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrPathConflict))

	// Missing: queued once, idempotent.
	require.NoError(t, o.MakeDir("fresh"))
	require.NoError(t, o.MakeDir("fresh"))
	assert.Equal(t, 1, o.Len())
	assert.True(t, o.IsDir("fresh"))
}

func TestMakeDirAll_RootDown(t *testing.T) {
	o := overlay.NewRoot(t.TempDir())
	require.NoError(t, o.MakeDirAll("a/b/c"))

	ops := o.Ops()
	require.Len(t, ops, 3)
	assert.Equal(t, "a", ops[0].Path)
	assert.Equal(t, "a/b", ops[1].Path)
	assert.Equal(t, "a/b/c", ops[2].Path)
}

func TestRemoveDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))
	writeFile(t, root, "full/file.txt", "x")

	o := overlay.NewRoot(root)

	// Missing: no-op.
	require.NoError(t, o.RemoveDir("missing"))
	assert.Equal(t, 0, o.Len())

	// Non-empty: error.
	err := o.RemoveDir("full")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrPathConflict))

	// Empty: queued.
	require.NoError(t, o.RemoveDir("empty"))
	assert.Equal(t, 1, o.Len())
	assert.False(t, o.Exists("empty"))

	// Becomes empty once the file removal is pending.
	require.NoError(t, o.RemoveFile("full/file.txt"))
	require.NoError(t, o.RemoveDir("full"))
	assert.False(t, o.Exists("full"))
}

func TestList_UnionOfDiskAndPending(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Data/on_disk.pak", "x")
	writeFile(t, root, "Data/to_remove.pak", "y")
	src := writeFile(t, t.TempDir(), "new.pak", "z")

	o := overlay.NewRoot(root)
	require.NoError(t, o.RemoveFile("Data/to_remove.pak"))
	require.NoError(t, o.InstallFile(src, "Data/pending.pak"))

	assert.Equal(t, []string{"on_disk.pak", "pending.pak"}, o.List("Data"))
}

func TestSameContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "mod.pak", "old")
	srcDir := t.TempDir()
	oldSrc := writeFile(t, srcDir, "old.pak", "old")
	newSrc := writeFile(t, srcDir, "new.pak", "new")

	o := overlay.NewRoot(root)

	same, err := o.SameContent(oldSrc, "mod.pak", false)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = o.SameContent(newSrc, "mod.pak", false)
	require.NoError(t, err)
	assert.False(t, same)

	// A pending install changes the overlay answer but not the
	// ignore-overlay answer.
	require.NoError(t, o.RemoveFile("mod.pak"))
	require.NoError(t, o.InstallFile(newSrc, "mod.pak"))

	same, err = o.SameContent(newSrc, "mod.pak", false)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = o.SameContent(newSrc, "mod.pak", true)
	require.NoError(t, err)
	assert.False(t, same)

	same, err = o.SameContent(oldSrc, "mod.pak", true)
	require.NoError(t, err)
	assert.True(t, same)
}

func TestMoveFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bin/tool.dll", "foreign")
	src := writeFile(t, t.TempDir(), "tool.dll", "ours")

	o := overlay.NewRoot(root)
	require.NoError(t, o.MoveFile("bin/tool.dll", "bin/tool.dll.bak"))
	require.NoError(t, o.InstallFile(src, "bin/tool.dll"))

	assert.True(t, o.IsFile("bin/tool.dll.bak"))
	assert.True(t, o.IsFile("bin/tool.dll"))

	// The backup carries the pre-existing content.
	same, err := o.SameContent(filepath.Join(root, "bin", "tool.dll"), "bin/tool.dll.bak", false)
	require.NoError(t, err)
	assert.True(t, same)

	ops := o.Ops()
	require.Len(t, ops, 2)
	assert.Equal(t, overlay.KindMoveBackup, ops[0].Kind)
	assert.Equal(t, "bin/tool.dll.bak", ops[0].Path)
	assert.Equal(t, "bin/tool.dll", ops[0].Source)
	assert.Equal(t, overlay.KindCreateFile, ops[1].Kind)
	assert.Equal(t, "bin/tool.dll", ops[1].Path)
}

func TestMoveFile_Conflicts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.pak", "x")
	writeFile(t, root, "a.pak.bak", "stale")

	o := overlay.NewRoot(root)

	err := o.MoveFile("missing.pak", "missing.pak.bak")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrPathConflict))

	err = o.MoveFile("a.pak", "a.pak.bak")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrPathConflict))
}

func TestInstallTree(t *testing.T) {
	root := t.TempDir()
	srcDir := t.TempDir()
	writeFile(t, srcDir, "Mods/one.pak", "one")
	writeFile(t, srcDir, "Mods/sub/two.pak", "two")
	writeFile(t, srcDir, "readme.txt", "hi")

	o := overlay.NewRoot(root)
	require.NoError(t, o.InstallTree(srcDir, "Data"))

	assert.True(t, o.IsFile("Data/Mods/one.pak"))
	assert.True(t, o.IsFile("Data/Mods/sub/two.pak"))
	assert.True(t, o.IsFile("Data/readme.txt"))
	assert.True(t, o.IsDir("Data/Mods/sub"))
}

func TestStackedOverlay(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Data/mod.pak", "installed")
	src := writeFile(t, t.TempDir(), "mod.pak", "installed")

	lower := overlay.NewRoot(root)
	require.NoError(t, lower.RemoveFile("Data/mod.pak"))

	upper := overlay.New(lower)
	assert.False(t, upper.Exists("Data/mod.pak"))

	// Reinstalling identical content is not a no-op against the upper
	// base: the lower overlay says the file is gone.
	require.NoError(t, upper.InstallFile(src, "Data/mod.pak"))
	assert.Equal(t, 1, upper.Len())
	assert.True(t, upper.IsFile("Data/mod.pak"))
}
