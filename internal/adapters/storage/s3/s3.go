// Package s3 stores rendered artifacts in any S3 compatible bucket through
// minio-go.
package s3

import (
	"context"
	"fmt"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"manimrender/internal/pkg/errors"
	"manimrender/internal/ports"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	// PublicBaseURL is prefixed to bucket/key to form object URLs. Empty
	// means the endpoint itself serves the bucket.
	PublicBaseURL string
}

type Storage struct {
	client  *miniogo.Client
	region  string
	baseURL string
}

func New(cfg Config) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfig, "s3.new", "create minio client")
	}

	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}

	return &Storage{client: client, region: cfg.Region, baseURL: base}, nil
}

func (s *Storage) Provider() string { return "s3" }

// EnsureBucket creates bucket when it does not exist yet.
func (s *Storage) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "s3.ensure_bucket", "check bucket "+bucket)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{Region: s.region}); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "s3.ensure_bucket", "create bucket "+bucket)
	}
	return nil
}

// PutObject overwrites any object already stored under the key.
func (s *Storage) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.Bucket == "" || in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.New(errors.CodeUpload, "bucket and object key are required")
	}

	info, err := s.client.PutObject(ctx, in.Bucket, in.ObjectKey, in.NewReader(), in.Size, miniogo.PutObjectOptions{
		ContentType: in.ContentType,
	})
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUpload, "s3.put", "upload "+in.ObjectKey)
	}

	return ports.PutObjectOutput{
		ObjectKey: in.ObjectKey,
		Size:      info.Size,
		URL:       fmt.Sprintf("%s/%s/%s", s.baseURL, in.Bucket, in.ObjectKey),
	}, nil
}
