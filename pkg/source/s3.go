package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cespare/xxhash/v2"

	lverrors "github.com/logflow/logvar/pkg/errors"
)

// S3Config holds S3 client configuration.
type S3Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// DownloadTimeout bounds a single object download (0 = 5 minutes).
	DownloadTimeout time.Duration
}

// GetObjectAPI is the part of the S3 client the fetcher needs.
type GetObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher downloads objects from S3. Objects are held in memory; the
// parsers that need random access require it anyway.
type S3Fetcher struct {
	client  GetObjectAPI
	timeout time.Duration
}

// NewS3Fetcher creates a fetcher with an S3 client built from cfg and the
// default AWS credential chain.
func NewS3Fetcher(ctx context.Context, cfg S3Config) (*S3Fetcher, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, lverrors.Wrap(err, lverrors.CodeSourceAccess, "load AWS config")
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3FetcherWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg.DownloadTimeout), nil
}

// NewS3FetcherWithClient creates a fetcher around an existing client.
func NewS3FetcherWithClient(client GetObjectAPI, timeout time.Duration) *S3Fetcher {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &S3Fetcher{client: client, timeout: timeout}
}

// Fetch downloads s3://bucket/key.
func (f *S3Fetcher) Fetch(ctx context.Context, id string) (*Object, error) {
	bucket, key, err := ParseS3URL(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, lverrors.SourceNotFound(id)
		}
		return nil, lverrors.Wrap(err, lverrors.CodeSourceAccess, "get s3 object").
			WithContext("source", id)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if n := aws.ToInt64(out.ContentLength); n > 0 {
		buf.Grow(int(n))
	}
	h := xxhash.New()
	if _, err := io.Copy(io.MultiWriter(&buf, h), out.Body); err != nil {
		return nil, lverrors.Wrap(err, lverrors.CodeSourceAccess, "download s3 object").
			WithContext("source", id)
	}

	return &Object{
		ID:     id,
		Name:   path.Base(key),
		Size:   int64(buf.Len()),
		Digest: digestString(h.Sum64()),
		data:   buf.Bytes(),
	}, nil
}

// IsS3 reports whether id is an s3:// URL.
func IsS3(id string) bool {
	return strings.HasPrefix(id, "s3://")
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(id string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(id, "s3://")
	if !ok {
		return "", "", lverrors.New(lverrors.CodeSourceAccess, "not an s3 url").WithContext("source", id)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", lverrors.New(lverrors.CodeSourceAccess, "s3 url needs a bucket and an object key").
			WithContext("source", id)
	}
	return bucket, key, nil
}
