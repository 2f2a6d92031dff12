package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"
)

// File is an open file. Locking and mapping need its descriptor.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.WriterAt
	Sync() error
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
	Fd() uintptr
	Name() string
}

// FileSystem is the set of path operations arrays, lockfiles and the local
// blob store perform.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Remove(name string) error
	Rename(oldpath, newpath string) error
	MkdirAll(path string, perm os.FileMode) error
	ReadDir(name string) ([]os.DirEntry, error)
}

// OS is the FileSystem of the host.
type OS struct{}

func (OS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(name, flag, perm)
}

func (OS) Remove(name string) error                     { return os.Remove(name) }
func (OS) Rename(oldpath, newpath string) error         { return os.Rename(oldpath, newpath) }
func (OS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (OS) ReadDir(name string) ([]os.DirEntry, error)   { return os.ReadDir(name) }

// Default is the FileSystem used unless a caller injects another one.
var Default FileSystem = OS{}

var tempSeq atomic.Uint64

// TempName returns a sibling name of target carrying tag, e.g.
// "data.arr.restore-lz1k2f-3". Names are unique within the process.
func TempName(target, tag string) string {
	return target + "." + tag + "-" +
		strconv.FormatInt(time.Now().UnixNano(), 36) + "-" +
		strconv.FormatUint(tempSeq.Add(1), 36)
}

// CreateTemp exclusively creates a TempName sibling of target opened with
// flag (O_CREATE|O_EXCL is added) and returns it with its name.
func CreateTemp(fsys FileSystem, target, tag string, flag int, perm os.FileMode) (File, string, error) {
	for range 8 {
		name := TempName(target, tag)
		f, err := fsys.OpenFile(name, flag|os.O_CREATE|os.O_EXCL, perm)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return f, name, err
	}
	return nil, "", &os.PathError{Op: "create", Path: target, Err: os.ErrExist}
}

// Publish renames the closed file tmp over dst and syncs dst's directory so
// the rename survives a crash. tmp is removed when the rename fails.
func Publish(fsys FileSystem, tmp, dst string) error {
	if err := fsys.Rename(tmp, dst); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	return SyncDir(fsys, filepath.Dir(dst))
}

// SyncDir fsyncs a directory so entries created or renamed in it are durable.
func SyncDir(fsys FileSystem, dir string) error {
	f, err := fsys.OpenFile(dir, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return f.Sync()
}
