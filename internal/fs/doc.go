// Package fs is the filesystem seam of the array engine, the lockfile
// manager and the local blob store.
//
// [OS] forwards to the os package and is the [Default]. [FaultyFS] wraps any
// FileSystem and fails selected operations (writes past a byte budget,
// truncate, sync, close, rename) so tests can drive the resize rollback and
// restore paths:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("data.arr", fs.Fault{FailTruncateAfter: 1})
//
// [CreateTemp] and [Publish] implement the write-to-sibling, rename, fsync
// directory sequence used to replace files atomically.
//
// Files expose their descriptor because flock and mmap operate on it.
package fs
