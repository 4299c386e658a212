package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/matzehuels/prefetch/pkg/observability"
)

// S3Config configures an [S3Mirror].
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// S3Mirror shares store entries through an S3-compatible bucket. Objects
// are keyed by store address. Bytes read from the mirror are untrusted and
// must be verified like any other download.
type S3Mirror struct {
	client   *minio.Client
	bucket   string
	prefix   string
	region   string
	initOnce sync.Once
	initErr  error
}

// NewS3Mirror creates a mirror client. The bucket is created on first use
// if it does not exist.
func NewS3Mirror(cfg S3Config) (*S3Mirror, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Mirror{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: region,
	}, nil
}

func (m *S3Mirror) ensureBucket(ctx context.Context) error {
	m.initOnce.Do(func() {
		exists, err := m.client.BucketExists(ctx, m.bucket)
		if err != nil {
			m.initErr = err
			return
		}
		if exists {
			return
		}
		m.initErr = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region})
	})
	return m.initErr
}

// ObjectKey returns the object name for a store address.
func (m *S3Mirror) ObjectKey(address string) string {
	key := strings.Replace(address, ":", "/", 1)
	if m.prefix == "" {
		return key
	}
	return m.prefix + "/" + key
}

// Get downloads the object for address into the file dst. It reports false
// when the mirror has no such object.
func (m *S3Mirror) Get(ctx context.Context, address, dst string) (bool, error) {
	if err := m.ensureBucket(ctx); err != nil {
		return false, fmt.Errorf("ensure bucket: %w", err)
	}
	err := m.client.FGetObject(ctx, m.bucket, m.ObjectKey(address), dst, minio.GetObjectOptions{})
	if err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "NoSuchKey" || code == "NoSuchBucket" {
			observability.Cache().OnCacheMiss(ctx, "mirror")
			return false, nil
		}
		return false, fmt.Errorf("mirror get %s: %w", address, err)
	}
	observability.Cache().OnCacheHit(ctx, "mirror")
	return true, nil
}

// Put uploads the file src under address.
func (m *S3Mirror) Put(ctx context.Context, address, src string) error {
	if err := m.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	info, err := m.client.FPutObject(ctx, m.bucket, m.ObjectKey(address), src, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("mirror put %s: %w", address, err)
	}
	observability.Cache().OnCacheSet(ctx, "mirror", int(info.Size))
	return nil
}
