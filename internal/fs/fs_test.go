package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOS(t *testing.T) {
	tmp := t.TempDir()
	lfs := OS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0755))

	fpath := filepath.Join(dir, "test.arr")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	_, err = f.WriteAt([]byte("hello"), 0)
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())
	assert.NotZero(t, f.Fd())
	assert.Equal(t, fpath, f.Name())

	// Resize through the handle
	require.NoError(t, f.Truncate(4096))
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(4096), info.Size())

	buf := make([]byte, 5)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	assert.NoError(t, f.Close())

	entries, err := lfs.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	newPath := filepath.Join(dir, "renamed.arr")
	assert.NoError(t, lfs.Rename(fpath, newPath))
	assert.NoError(t, SyncDir(lfs, dir))

	assert.NoError(t, lfs.Remove(newPath))
	_, err = os.Stat(newPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS_WriteLimit(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(OS{})
	ffs.AddRule("faulty", Fault{FailWrites: true, WriteBudget: 5})

	f, err := ffs.OpenFile(filepath.Join(tmp, "faulty.arr"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = f.WriteAt([]byte("!"), 5)
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 0, n)
}

func TestFaultyFS_Truncate(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	custom := errors.New("disk full")
	ffs.AddRule("grow", Fault{FailTruncateAfter: 1, Err: custom})
	ffs.AddRule("never", Fault{FailOnTruncate: true})

	f, err := ffs.OpenFile(filepath.Join(tmp, "grow.arr"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Truncate(4096))
	assert.ErrorIs(t, f.Truncate(8192), custom)

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(4096), info.Size())

	g, err := ffs.OpenFile(filepath.Join(tmp, "never.arr"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer g.Close()
	assert.ErrorIs(t, g.Truncate(1), ErrInjected)
}

func TestFaultyFS_SyncAndClose(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("bad", Fault{FailOnSync: true, FailOnClose: true})

	f, err := ffs.OpenFile(filepath.Join(tmp, "bad.arr"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	assert.Error(t, f.Sync())
	assert.Error(t, f.Close())

	ffs.ClearRules()
	g, err := ffs.OpenFile(filepath.Join(tmp, "bad.arr"), os.O_RDWR, 0644)
	require.NoError(t, err)
	assert.NoError(t, g.Sync())
	assert.NoError(t, g.Close())
}

func TestFaultyFS_Delegation(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(OS{})

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, ffs.MkdirAll(dir, 0755))

	fpath := filepath.Join(dir, "test.arr")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.NoError(t, ffs.Rename(fpath, fpath+".renamed"))
	_, err = os.Stat(fpath + ".renamed")
	assert.NoError(t, err)

	_, err = ffs.ReadDir(dir)
	assert.NoError(t, err)
	assert.NoError(t, ffs.Remove(fpath+".renamed"))
}

func TestFaultyFS_LastRuleWins(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule(".arr", Fault{FailOnSync: true})
	ffs.AddRule("ok.arr", Fault{})

	f, err := ffs.OpenFile(filepath.Join(tmp, "ok.arr"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()
	assert.NoError(t, f.Sync())

	g, err := ffs.OpenFile(filepath.Join(tmp, "bad.arr"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer g.Close()
	assert.ErrorIs(t, g.Sync(), ErrInjected)
}

func TestCreateTempAndPublish(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "data.arr")

	f, name, err := CreateTemp(Default, target, "restore", os.O_RDWR, 0o600)
	require.NoError(t, err)
	assert.Contains(t, name, "data.arr.restore-")
	_, err = f.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, Publish(Default, name, target))
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPublish_RenameFailureRemovesTemp(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("data.arr", Fault{FailRename: true})
	target := filepath.Join(dir, "data.arr")

	f, name, err := CreateTemp(ffs, target, "tmp", os.O_WRONLY, 0o600)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = Publish(ffs, name, target)
	assert.ErrorIs(t, err, ErrInjected)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTempName_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		name := TempName("x", "tmp")
		assert.False(t, seen[name])
		seen[name] = true
	}
}
