package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var errUploadFinished = errors.New("s3: upload already closed or aborted")

// UploadConfig tunes the multipart uploader behind Create.
type UploadConfig struct {
	// PartSize is the multipart part size. Snapshot data blobs are
	// usually large; the default is 8MiB.
	PartSize int64
	// Concurrency is the number of parts uploaded in parallel. Default 5.
	Concurrency int
	// EnableChecksum requests CRC32C validation of uploads. Default true.
	EnableChecksum bool
	// LeavePartsOnError skips the AbortMultipartUpload call of a failed upload.
	LeavePartsOnError bool
}

// DefaultUploadConfig returns the settings New and NewStore start from.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		PartSize:       8 << 20,
		Concurrency:    5,
		EnableChecksum: true,
	}
}

func (c UploadConfig) newUploader(client Client) *manager.Uploader {
	return manager.NewUploader(client, func(u *manager.Uploader) {
		if c.PartSize > 0 {
			u.PartSize = c.PartSize
		}
		if c.Concurrency > 0 {
			u.Concurrency = c.Concurrency
		}
		u.LeavePartsOnError = c.LeavePartsOnError
	})
}

func (c UploadConfig) putInput(bucket, key string, body io.Reader) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if c.EnableChecksum {
		in.ChecksumAlgorithm = types.ChecksumAlgorithmCrc32c
	}
	return in
}

// pipeUpload feeds Write calls through a pipe into a running upload. The
// object becomes visible when Close returns nil.
type pipeUpload struct {
	pw     *io.PipeWriter
	result chan error

	mu       sync.Mutex
	finished bool
	err      error
}

func startUpload(ctx context.Context, uploader *manager.Uploader, in *s3.PutObjectInput) *pipeUpload {
	pr, pw := io.Pipe()
	in.Body = pr
	u := &pipeUpload{pw: pw, result: make(chan error, 1)}
	go func() {
		_, err := uploader.Upload(ctx, in)
		_ = pr.CloseWithError(err)
		u.result <- err
	}()
	return u
}

func (u *pipeUpload) Write(p []byte) (int, error) {
	u.mu.Lock()
	done := u.finished
	u.mu.Unlock()
	if done {
		return 0, errUploadFinished
	}
	return u.pw.Write(p)
}

// Close ends the stream and waits for the upload to complete.
func (u *pipeUpload) Close() error {
	return u.finish(nil)
}

// Abort fails the stream. The uploader aborts the multipart upload it
// started unless LeavePartsOnError is set.
func (u *pipeUpload) Abort() error {
	_ = u.finish(context.Canceled)
	return nil
}

func (u *pipeUpload) finish(cause error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.finished {
		return u.err
	}
	u.finished = true
	_ = u.pw.CloseWithError(cause)
	u.err = <-u.result
	if cause != nil {
		u.err = cause
	}
	return u.err
}

// Sync is a no-op; nothing is durable before Close.
func (u *pipeUpload) Sync() error { return nil }

func putObject(ctx context.Context, client Client, cfg UploadConfig, bucket, key string, data []byte) error {
	in := cfg.putInput(bucket, key, bytes.NewReader(data))
	in.ContentLength = aws.Int64(int64(len(data)))
	_, err := client.PutObject(ctx, in)
	return err
}
