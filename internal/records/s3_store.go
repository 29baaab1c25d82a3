package records

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
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps one JSON object per reservation under
// <prefix><booking_date>/<id>.json, so a day's records share a listing
// prefix.
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Store binds the store to a bucket and key prefix.
func NewS3Store(client s3API, bucket, prefix string) *S3Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) keyFor(rec *Reservation) string {
	return fmt.Sprintf("%s%s/%s.json", s.prefix, rec.BookingDate, rec.ID)
}

func (s *S3Store) put(ctx context.Context, rec *Reservation) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode reservation: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.keyFor(rec)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put reservation object: %w", err)
	}
	return nil
}

func (s *S3Store) Create(ctx context.Context, rec *Reservation) error {
	return s.put(ctx, rec)
}

// Get walks the date partitions for the id. Lookups without a known
// booking date are rare (the API always resolves by id), so the listing
// scan is acceptable here.
func (s *S3Store) Get(ctx context.Context, id string) (*Reservation, error) {
	suffix := "/" + id + ".json"
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list reservation objects: %w", err)
		}
		for _, obj := range out.Contents {
			if strings.HasSuffix(aws.ToString(obj.Key), suffix) {
				return s.fetch(ctx, aws.ToString(obj.Key))
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	return nil, ErrNotFound
}

func (s *S3Store) Update(ctx context.Context, rec *Reservation) error {
	if _, err := s.fetch(ctx, s.keyFor(rec)); err != nil {
		return err
	}
	return s.put(ctx, rec)
}

func (s *S3Store) Delete(ctx context.Context, rec *Reservation) error {
	if _, err := s.fetch(ctx, s.keyFor(rec)); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.keyFor(rec)),
	})
	if err != nil {
		return fmt.Errorf("delete reservation object: %w", err)
	}
	return nil
}

func (s *S3Store) ListAll(ctx context.Context) ([]Reservation, error) {
	var out []Reservation
	var token *string
	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list reservation objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			rec, err := s.fetch(ctx, key)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					// deleted between list and get
					continue
				}
				return nil, err
			}
			out = append(out, *rec)
		}
		if !aws.ToBool(page.IsTruncated) {
			break
		}
		token = page.NextContinuationToken
	}
	return out, nil
}

func (s *S3Store) fetch(ctx context.Context, key string) (*Reservation, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation object: %w", err)
	}
	defer out.Body.Close()

	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read reservation object: %w", err)
	}
	var rec Reservation
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode reservation object %s: %w", key, err)
	}
	return &rec, nil
}

func isNoSuchKey(err error) bool {
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey"
}
