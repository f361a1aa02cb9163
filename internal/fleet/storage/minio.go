// Package storage uploads fleet snapshots to an S3 compatible object store.
package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/agvfleet/pkg/log"
	"github.com/autopeer-io/agvfleet/pkg/options"
)

// Provider is the object store the fleet writes to.
type Provider interface {
	// PutObject stores body under key, replacing any previous object.
	PutObject(ctx context.Context, key string, body []byte, contentType string) error

	// CheckBucket makes sure the bucket exists, creating it when missing.
	CheckBucket(ctx context.Context) error
}

type minioProvider struct {
	client *minio.Client
	bucket string
	region string
	logger log.Logger
}

// NewMinIOProvider creates an S3 backed Provider. No request is made until first use.
func NewMinIOProvider(opts *options.S3Options) (Provider, error) {
	mo := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	}
	if opts.UseSSL {
		mo.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}

	client, err := minio.New(opts.Endpoint, mo)
	if err != nil {
		return nil, fmt.Errorf("snapshot store %s: %w", opts.Endpoint, err)
	}

	return &minioProvider{
		client: client,
		bucket: opts.BucketName,
		region: opts.Region,
		logger: log.WithName("storage").WithValues("endpoint", opts.Endpoint, "bucket", opts.BucketName),
	}, nil
}

func (p *minioProvider) CheckBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	switch {
	case err != nil:
		return fmt.Errorf("bucket %s: %w", p.bucket, err)
	case exists:
		return nil
	}

	p.logger.Info("Creating snapshot bucket", "region", p.region)
	if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", p.bucket, err)
	}
	return nil
}

func (p *minioProvider) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	info, err := p.client.PutObject(ctx, p.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	p.logger.Debug("Stored object", "key", key, "size", info.Size, "etag", info.ETag)
	return nil
}
