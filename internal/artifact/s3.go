package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sony/gobreaker"
)

const s3Scheme = "s3://"

// S3API is the subset of the S3 client used for artifacts.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store reads and writes artifacts at s3://bucket/key locations.
type S3Store struct {
	client  S3API
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
}

// NewS3Store builds a store using the default AWS credential chain.
func NewS3Store(ctx context.Context, region string, backoff BackoffConfig) (*S3Store, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return NewS3StoreWithClient(s3.NewFromConfig(cfg), backoff), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API, backoff BackoffConfig) *S3Store {
	return &S3Store{
		client:  client,
		backoff: backoff,
		circuit: newBreaker("artifact-s3"),
	}
}

// ParseS3Location splits s3://bucket/key into its parts.
func ParseS3Location(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, s3Scheme)
	if !ok {
		return "", "", fmt.Errorf("%q is not an s3:// location", location)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%q must look like s3://bucket/key", location)
	}
	return bucket, key, nil
}

// Open downloads the whole object. Artifacts are small and read once.
func (s *S3Store) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3Location(location)
	if err != nil {
		return nil, err
	}

	data, err := doWithResilience(ctx, s.backoff, s.circuit, func(ctx context.Context) ([]byte, error) {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var nsk *types.NoSuchKey
			var nsb *types.NoSuchBucket
			if errors.As(err, &nsk) || errors.As(err, &nsb) {
				return nil, permanent(err)
			}
			return nil, err
		}
		defer out.Body.Close()
		return io.ReadAll(out.Body)
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", location, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Create buffers writes and uploads the object on Close.
func (s *S3Store) Create(ctx context.Context, location string) (io.WriteCloser, error) {
	bucket, key, err := ParseS3Location(location)
	if err != nil {
		return nil, err
	}
	return &s3Writer{ctx: ctx, store: s, bucket: bucket, key: key}, nil
}

type s3Writer struct {
	ctx    context.Context
	store  *S3Store
	bucket string
	key    string
	buffer bytes.Buffer
}

func (w *s3Writer) Write(data []byte) (int, error) {
	return w.buffer.Write(data)
}

func (w *s3Writer) Close() error {
	body := w.buffer.Bytes()
	_, err := doWithResilience(w.ctx, w.store.backoff, w.store.circuit, func(ctx context.Context) (*s3.PutObjectOutput, error) {
		return w.store.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(w.bucket),
			Key:    aws.String(w.key),
			Body:   bytes.NewReader(body),
		})
	})
	if err != nil {
		return fmt.Errorf("unable to upload s3://%s/%s: %w", w.bucket, w.key, err)
	}
	return nil
}
