// Package blobstore provides the storage abstraction that array snapshots are
// written to and restored from.
//
// BlobStore is the interface for reading and writing named, immutable blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local file system, atomic writes, mmap reads
//   - MemoryStore: in-process map, for tests and ephemeral snapshots
//   - s3.Store, s3.ExpressStore, s3.DDBCommitStore: Amazon S3 (optionally with
//     DynamoDB for conditional commits of CURRENT pointers)
//   - minio.Store: MinIO and other S3-compatible servers
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// A blob created with Create must not be visible to Open or List until it has
// been closed successfully. Writers that can discard an unfinished blob
// implement Abortable; stores that can refuse to replace a blob implement
// ConditionalPutter.
package blobstore
