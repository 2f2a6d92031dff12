package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/mmarray/blobstore"
)

// CurrentName is the base name of blobs that DDBCommitStore keeps in DynamoDB.
const CurrentName = "CURRENT"

// DDBCommitStore implements blobstore.BlobStore on top of another store, with
// DynamoDB holding every blob named CURRENT (in any directory).
//
// S3 has no compare-and-swap, so two writers snapshotting under the same name
// could overwrite each other's CURRENT pointer. DDBCommitStore turns each Put
// of CURRENT into a conditional insert of the next version; a writer that lost
// the race gets ErrConcurrentModification.
//
// Table schema:
//   - Partition key: base_uri (string) - baseURI plus the blob's directory
//   - Sort key: version (number) - monotonically increasing version
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name mmarray-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitStore struct {
	objects   blobstore.BlobStore
	ddbClient DDBClient
	tableName string
	baseURI   string
}

var _ blobstore.BlobStore = (*DDBCommitStore)(nil)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

var _ DDBClient = (*dynamodb.Client)(nil)

// ErrConcurrentModification is returned when a concurrent write is detected.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// NewDDBCommitStore creates a new commit store.
// baseURI (e.g. "s3://bucket/prefix") namespaces the partition keys.
func NewDDBCommitStore(objects blobstore.BlobStore, ddbClient DDBClient, tableName, baseURI string) *DDBCommitStore {
	return &DDBCommitStore{
		objects:   objects,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

func isCurrent(name string) bool { return path.Base(name) == CurrentName }

func (s *DDBCommitStore) partition(name string) string {
	dir := path.Dir(name)
	if dir == "." {
		return s.baseURI
	}
	return s.baseURI + "#" + dir
}

// Open opens a blob for reading. CURRENT blobs are read from DynamoDB.
func (s *DDBCommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if !isCurrent(name) {
		return s.objects.Open(ctx, name)
	}
	version, content, err := s.latest(ctx, s.partition(name))
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, blobstore.ErrNotFound
	}
	return &virtualBlob{content: []byte(content)}, nil
}

// Put writes a blob. CURRENT is committed with a DynamoDB conditional write.
func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	if isCurrent(name) {
		return s.commit(ctx, s.partition(name), string(data))
	}
	return s.objects.Put(ctx, name, data)
}

// Create creates a writable blob. CURRENT cannot be streamed.
func (s *DDBCommitStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if isCurrent(name) {
		return &commitWriter{ctx: ctx, store: s, name: name}, nil
	}
	return s.objects.Create(ctx, name)
}

// Delete removes a blob. For CURRENT, the latest version is removed.
func (s *DDBCommitStore) Delete(ctx context.Context, name string) error {
	if !isCurrent(name) {
		return s.objects.Delete(ctx, name)
	}
	part := s.partition(name)
	version, _, err := s.latest(ctx, part)
	if err != nil || version == 0 {
		return err
	}
	_, err = s.ddbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: part},
			"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
		},
	})
	return err
}

// List lists blobs with prefix. CURRENT pointers are not listed.
func (s *DDBCommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.objects.List(ctx, prefix)
}

// latest queries DynamoDB for the latest committed version of a partition.
func (s *DDBCommitStore) latest(ctx context.Context, part string) (uint64, string, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: part},
		},
		ScanIndexForward: aws.Bool(false), // Descending order
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("failed to query DynamoDB: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("invalid version attribute in DynamoDB")
	}
	contentAttr, ok := item["content"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("invalid content attribute in DynamoDB")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("failed to parse version: %w", err)
	}
	return version, contentAttr.Value, nil
}

// commit inserts the next version of a partition, failing if another writer got there first.
func (s *DDBCommitStore) commit(ctx context.Context, part, content string) error {
	current, _, err := s.latest(ctx, part)
	if err != nil {
		return err
	}

	_, err = s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: part},
			"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(current+1, 10)},
			"content":  &types.AttributeValueMemberS{Value: content},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit version to DynamoDB: %w", err)
	}
	return nil
}

// commitWriter buffers a CURRENT blob and commits it on Close.
type commitWriter struct {
	ctx   context.Context
	store *DDBCommitStore
	name  string
	buf   bytes.Buffer
}

func (w *commitWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *commitWriter) Sync() error                 { return nil }
func (w *commitWriter) Abort() error                { w.buf.Reset(); return nil }
func (w *commitWriter) Close() error {
	return w.store.commit(w.ctx, w.store.partition(w.name), w.buf.String())
}

// virtualBlob is an in-memory blob holding a CURRENT pointer.
type virtualBlob struct {
	content []byte
}

func (b *virtualBlob) Close() error {
	return nil
}

func (b *virtualBlob) Size() int64 {
	return int64(len(b.content))
}

func (b *virtualBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b.content)) {
		return 0, io.EOF
	}
	n := copy(p, b.content[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *virtualBlob) ReadRange(_ context.Context, off, n int64) (io.ReadCloser, error) {
	if off < 0 || off > int64(len(b.content)) {
		return nil, io.EOF
	}
	end := min(off+n, int64(len(b.content)))
	return io.NopCloser(bytes.NewReader(b.content[off:end])), nil
}
