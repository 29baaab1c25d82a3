package inventory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 implements conditional puts the way the service does: ETag
// changes on every write, If-Match must equal it, If-None-Match "*"
// requires absence.
type fakeS3 struct {
	body []byte
	etag string
	gen  int
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.body == nil {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(f.body)),
		ETag: aws.String(f.etag),
	}, nil
}

type preconditionErr struct{}

func (preconditionErr) Error() string                 { return "PreconditionFailed" }
func (preconditionErr) ErrorCode() string             { return "PreconditionFailed" }
func (preconditionErr) ErrorMessage() string          { return "at least one precondition failed" }
func (preconditionErr) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if in.IfNoneMatch != nil && f.body != nil {
		return nil, preconditionErr{}
	}
	if in.IfMatch != nil && aws.ToString(in.IfMatch) != f.etag {
		return nil, preconditionErr{}
	}
	payload, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = payload
	f.gen++
	f.etag = fmt.Sprintf("etag-%d", f.gen)
	return &s3.PutObjectOutput{ETag: aws.String(f.etag)}, nil
}

func TestS3StoreEmptyBucket(t *testing.T) {
	store := NewS3Store(&fakeS3{}, "bucket", "inventory/tables.json")
	snap, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Tables)
	assert.Empty(t, snap.Version)
}

func TestS3StoreSeedAndRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewS3Store(&fakeS3{}, "bucket", "inventory/tables.json")

	created, err := store.Seed(ctx, 3, 10)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.Seed(ctx, 3, 10)
	require.NoError(t, err)
	assert.False(t, created)

	snap, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Tables, 3)
	assert.Equal(t, 10, snap.Tables[2].SeatsLeft)
	assert.NotEmpty(t, snap.Version)
}

func TestS3StoreConditionalWrite(t *testing.T) {
	ctx := context.Background()
	store := NewS3Store(&fakeS3{}, "bucket", "inventory/tables.json")
	_, err := store.Seed(ctx, 2, 10)
	require.NoError(t, err)

	snap, err := store.ReadAll(ctx)
	require.NoError(t, err)

	tables := CloneTables(snap.Tables)
	state := tables[1]
	state.SeatsLeft = 6
	tables[1] = state
	require.NoError(t, store.WriteAll(ctx, tables, snap.Version))

	// The ETag captured before the write is stale now.
	err = store.WriteAll(ctx, tables, snap.Version)
	assert.ErrorIs(t, err, ErrVersionConflict)

	snap, err = store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, snap.Tables[1].SeatsLeft)
}

func TestS3StoreSeedRace(t *testing.T) {
	// Another instance wrote the document between read and seed write.
	fake := &fakeS3{body: []byte(`{"tables":{"1":{"id":1,"name":"Table 1","total":10,"seats_left":10}}}`), etag: "etag-1"}

	racing := NewS3Store(fake, "bucket", "inventory/tables.json")
	created, err := racing.Seed(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.False(t, created)
}
