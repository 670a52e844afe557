package imagestore

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/errors"
)

// S3Backend stores images in an S3 or MinIO bucket.
type S3Backend struct {
	client *s3.Client
	bucket string
}

// S3Option adjusts the S3 client, for tests and custom endpoints.
type S3Option func(*s3.Options)

// WithS3HTTPClient routes S3 calls through c.
func WithS3HTTPClient(c *http.Client) S3Option {
	return func(o *s3.Options) { o.HTTPClient = c }
}

// NewS3Backend creates a backend from settings. Credentials come from the
// default AWS chain (environment, shared config, instance role).
func NewS3Backend(ctx context.Context, s *conf.S3Settings, loadOpts []func(*config.LoadOptions) error, opts ...S3Option) (*S3Backend, error) {
	if s.Bucket == "" {
		return nil, errors.Newf("images.s3.bucket is required for the s3 driver").
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}
	region := s.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts = append([]func(*config.LoadOptions) error{config.WithRegion(region)}, loadOpts...)
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.New(err).Component(component).Category(errors.CategoryConfiguration).Build()
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = s.PathStyle
		if s.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.Endpoint)
		}
		for _, opt := range opts {
			opt(o)
		}
	})
	return &S3Backend{client: client, bucket: s.Bucket}, nil
}

func (b *S3Backend) Put(ctx context.Context, key string, data []byte) (string, error) {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("image/jpeg"),
	})
	if err != nil {
		return "", backendError(err, b.Driver(), "put", key)
	}
	return "s3://" + b.bucket + "/" + key, nil
}

func (b *S3Backend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, errors.NotFound("image", key)
		}
		return nil, backendError(err, b.Driver(), "open", key)
	}
	return out.Body, nil
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return backendError(err, b.Driver(), "delete", key)
	}
	return nil
}

func (b *S3Backend) Key(uri string) (string, error) {
	key, ok := strings.CutPrefix(uri, "s3://"+b.bucket+"/")
	if !ok || key == "" {
		return "", foreignURI(uri, b.Driver())
	}
	return key, nil
}

func (b *S3Backend) Driver() string { return "s3" }
