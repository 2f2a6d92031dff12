// Package s3 provides S3 implementations of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("arrays/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	_, err = arr.Snapshot(ctx, store, "events")
//
// # Stores
//
//   - Store: standard S3 buckets; ranged reads, streaming multipart uploads
//   - ExpressStore: S3 Express One Zone directory buckets; manifests are
//     written with If-None-Match so they are never replaced
//   - DDBCommitStore: wraps another store and keeps CURRENT pointers in
//     DynamoDB so concurrent snapshot writers cannot overwrite each other
package s3
