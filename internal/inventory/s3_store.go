package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// s3API is the S3 surface the store depends on, narrowed for tests.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps the whole inventory as one JSON document. The object
// ETag is the version token and conditional puts (If-Match /
// If-None-Match) make the replace atomic on the service side.
type S3Store struct {
	client s3API
	bucket string
	key    string
}

// NewS3Store binds the store to a bucket and document key.
func NewS3Store(client s3API, bucket, key string) *S3Store {
	return &S3Store{client: client, bucket: bucket, key: key}
}

type inventoryDocument struct {
	Tables map[string]TableState `json:"tables"`
}

func (s *S3Store) ReadAll(ctx context.Context) (Snapshot, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return Snapshot{Tables: map[int]TableState{}, Version: ""}, nil
		}
		return Snapshot{}, fmt.Errorf("get inventory document: %w", err)
	}
	defer out.Body.Close()

	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read inventory document: %w", err)
	}

	var doc inventoryDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("decode inventory document: %w", err)
	}

	tables := make(map[int]TableState, len(doc.Tables))
	for idStr, state := range doc.Tables {
		var id int
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			return Snapshot{}, fmt.Errorf("bad table id %q in inventory document", idStr)
		}
		state.ID = id
		tables[id] = state
	}

	return Snapshot{Tables: tables, Version: aws.ToString(out.ETag)}, nil
}

// WriteAll replaces the document only if its ETag still matches. An
// empty expected version means the document must not exist yet, which
// is how the initial seed write stays race-free.
func (s *S3Store) WriteAll(ctx context.Context, tables map[int]TableState, expectedVersion string) error {
	doc := inventoryDocument{Tables: make(map[string]TableState, len(tables))}
	for id, state := range tables {
		doc.Tables[fmt.Sprintf("%d", id)] = state
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode inventory document: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	}
	if expectedVersion == "" {
		input.IfNoneMatch = aws.String("*")
	} else {
		input.IfMatch = aws.String(expectedVersion)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		if isPreconditionFailed(err) {
			return ErrVersionConflict
		}
		return fmt.Errorf("put inventory document: %w", err)
	}
	return nil
}

// Seed writes the bootstrap document only when none exists.
func (s *S3Store) Seed(ctx context.Context, tableCount, seatsPerTable int) (bool, error) {
	snap, err := s.ReadAll(ctx)
	if err != nil {
		return false, err
	}
	if len(snap.Tables) > 0 {
		return false, nil
	}
	if err := s.WriteAll(ctx, SeedTables(tableCount, seatsPerTable), ""); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			// another instance seeded first
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isNoSuchKey(err error) bool {
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey"
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	return code == "PreconditionFailed" || strings.EqualFold(code, "ConditionalRequestConflict")
}
