package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/mmarray/blobstore"
)

// ErrConflict is returned when a conditional write finds the key taken.
// It satisfies errors.Is(err, blobstore.ErrExists).
var ErrConflict = fmt.Errorf("s3: object already exists: %w", blobstore.ErrExists)

// ExpressStore is a Store for S3 Express One Zone directory buckets
// (names ending in --azid--x-s3).
//
// Directory buckets support If-None-Match on PUT. ExpressStore uses it to
// keep snapshot manifests write-once: Put of a MANIFEST-* name fails with
// ErrConflict instead of replacing a manifest another writer committed.
type ExpressStore struct {
	*Store
}

var (
	_ blobstore.BlobStore         = (*ExpressStore)(nil)
	_ blobstore.ConditionalPutter = (*ExpressStore)(nil)
)

// NewExpressStore returns an ExpressStore over client.
func NewExpressStore(client Client, bucket, rootPrefix string, optFns ...Option) *ExpressStore {
	return &ExpressStore{Store: NewStore(client, bucket, rootPrefix, optFns...)}
}

// Put writes name. Manifest names are written conditionally.
func (s *ExpressStore) Put(ctx context.Context, name string, data []byte) error {
	if writeOnce(name) {
		return s.PutIfNotExists(ctx, name, data)
	}
	return s.Store.Put(ctx, name, data)
}

// PutIfNotExists writes name only if no object exists under its key.
func (s *ExpressStore) PutIfNotExists(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		IfNoneMatch:   aws.String("*"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("%w: %s", ErrConflict, name)
	}
	return err
}

func writeOnce(name string) bool {
	return strings.HasPrefix(path.Base(name), "MANIFEST-")
}

func isConditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
