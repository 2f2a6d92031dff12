package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is returned by injected faults that carry no error of their own.
var ErrInjected = errors.New("fs: injected fault")

// Fault describes how operations on matching paths fail. The zero Fault
// injects nothing.
type Fault struct {
	// FailWrites makes writes fail once WriteBudget bytes have been written
	// through the handle.
	FailWrites  bool
	WriteBudget int64
	FailOnSync  bool
	FailOnClose bool
	// FailOnTruncate fails every resize.
	FailOnTruncate bool
	// FailTruncateAfter lets this many resizes through before failing.
	FailTruncateAfter int
	// FailRename fails renames whose destination matches.
	FailRename bool
	Err        error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

type rule struct {
	pattern string
	fault   Fault
}

// FaultyFS wraps a FileSystem and injects the Fault of the last rule whose
// pattern is a substring of the path. Handles keep the fault they were
// opened with.
type FaultyFS struct {
	FS FileSystem

	mu    sync.Mutex
	rules []rule
}

var _ FileSystem = (*FaultyFS)(nil)

// NewFaultyFS wraps fsys, or Default when fsys is nil.
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{FS: fsys}
}

// AddRule registers fault for paths containing pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{pattern: pattern, fault: fault})
}

// ClearRules removes all rules.
func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
}

func (f *FaultyFS) match(name string) Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	var fault Fault
	for _, r := range f.rules {
		if strings.Contains(name, r.pattern) {
			fault = r.fault
		}
	}
	return fault
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fault: f.match(name)}, nil
}

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	if fault := f.match(newpath); fault.FailRename {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fault.err()}
	}
	return f.FS.Rename(oldpath, newpath)
}

func (f *FaultyFS) Remove(name string) error { return f.FS.Remove(name) }

func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error { return f.FS.MkdirAll(path, perm) }

func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error) { return f.FS.ReadDir(name) }

type faultyFile struct {
	File
	fault Fault

	mu        sync.Mutex
	written   int64
	truncates int
}

func (ff *faultyFile) charge(n int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.fault.FailWrites && ff.written+int64(n) > ff.fault.WriteBudget {
		return ff.fault.err()
	}
	ff.written += int64(n)
	return nil
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if err := ff.charge(len(p)); err != nil {
		return 0, err
	}
	return ff.File.Write(p)
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if err := ff.charge(len(p)); err != nil {
		return 0, err
	}
	return ff.File.WriteAt(p, off)
}

func (ff *faultyFile) Truncate(size int64) error {
	ff.mu.Lock()
	n := ff.truncates
	ff.truncates++
	ff.mu.Unlock()

	if ff.fault.FailOnTruncate || (ff.fault.FailTruncateAfter > 0 && n >= ff.fault.FailTruncateAfter) {
		return ff.fault.err()
	}
	return ff.File.Truncate(size)
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.err()
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	err := ff.File.Close()
	if ff.fault.FailOnClose {
		return ff.fault.err()
	}
	return err
}
