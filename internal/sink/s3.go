package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/vitalsync/vitalsync/internal/core"
	verrors "github.com/vitalsync/vitalsync/internal/errors"
)

// s3API is the slice of the S3 client the sink uses, for test doubles.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads each published batch as one newline-delimited JSON object.
type S3 struct {
	client s3API
	bucket string
	prefix string

	// Clock is injectable for tests.
	Clock func() time.Time
}

// NewS3 loads the ambient AWS credential chain and builds the sink.
func NewS3(ctx context.Context, cfg Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, verrors.New(verrors.KindValidation, "s3 sink requires a bucket")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, verrors.Wrap(verrors.KindGeneric, err, "load aws config")
	}
	return &S3{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		Clock:  time.Now,
	}, nil
}

// Publish writes the batch under prefix/YYYY/MM/DD/<uuid>.ndjson.
func (s *S3) Publish(ctx context.Context, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := encode(&buf, records); err != nil {
		return err
	}

	now := s.Clock().UTC()
	key := path.Join(s.prefix,
		fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day()),
		uuid.New().String()+".ndjson")

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return verrors.Wrap(verrors.KindGeneric, err, fmt.Sprintf("put s3 object %s", key))
	}
	return nil
}

func (s *S3) Close() error { return nil }
