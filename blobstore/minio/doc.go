// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works against MinIO and other S3-compatible systems (Ceph, SeaweedFS,
// Garage) without pulling in the AWS SDK.
//
// # Basic Usage
//
//	store, err := minio.New(minio.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	}, "my-bucket", "arrays/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := store.EnsureBucket(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	_, err = arr.Snapshot(ctx, store, "events")
//
// Reads use ranged GETs. Create streams through a pipe into a single
// PutObject call, so a snapshot never has to be buffered in memory.
package minio
