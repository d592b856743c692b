package infra

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/madmin-go/v3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/entity"
)

type MinioClient struct {
	Admin    *madmin.AdminClient
	Client   *minio.Client
	Endpoint string
	bucket   string
	baseURL  string
}

func InitMinioClient(cfg *config.EnvConfig) (*MinioClient, error) {
	endpoint := cfg.Minio.Endpoint
	if endpoint == "" {
		return nil, errors.New("MinIO endpoint is not configured")
	}
	if cfg.Minio.RootUser == "" || cfg.Minio.RootPassword == "" {
		return nil, errors.New("MinIO root credentials are not configured")
	}

	madminClient, err := madmin.New(endpoint, cfg.Minio.RootUser, cfg.Minio.RootPassword, cfg.Minio.Secure)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO admin client: %w", err)
	}

	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Minio.RootUser, cfg.Minio.RootPassword, ""),
		Secure: cfg.Minio.Secure,
		Region: cfg.Storage.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	baseURL := cfg.Storage.PublicBaseURL
	if baseURL == "" {
		scheme := "http"
		if cfg.Minio.Secure {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, endpoint, cfg.Storage.Bucket)
	}

	m := &MinioClient{
		Admin:    madminClient,
		Client:   minioClient,
		Endpoint: endpoint,
		bucket:   cfg.Storage.Bucket,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}

	ctx := context.Background()
	if err := m.EnsureBucket(ctx, cfg.Storage.Region); err != nil {
		return nil, err
	}
	if err := m.SetPublicReadPolicy(ctx); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *MinioClient) Name() string { return "minio" }

func (m *MinioClient) PublicBaseURL() string { return m.baseURL }

// EnsureBucket creates the media bucket if it doesn't exist
func (m *MinioClient) EnsureBucket(ctx context.Context, region string) error {
	exists, err := m.Client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		if err := m.Client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// SetPublicReadPolicy lets anonymous clients GET objects so image URLs are directly linkable.
func (m *MinioClient) SetPublicReadPolicy(ctx context.Context) error {
	policyJSON := fmt.Sprintf(`{
		"Version": "2012-10-17",
		"Statement": [
			{
				"Effect": "Allow",
				"Principal": {"AWS": ["*"]},
				"Action": ["s3:GetObject"],
				"Resource": ["arn:aws:s3:::%s/*"]
			}
		]
	}`, m.bucket)

	if err := m.Client.SetBucketPolicy(ctx, m.bucket, policyJSON); err != nil {
		return fmt.Errorf("failed to set bucket policy: %w", err)
	}
	return nil
}

func (m *MinioClient) Upload(ctx context.Context, data []byte, path, contentType string) error {
	_, err := m.Client.PutObject(ctx, m.bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", entity.ErrUpload, path, err)
	}
	return nil
}

func (m *MinioClient) DeleteOne(ctx context.Context, path string) error {
	err := m.Client.RemoveObject(ctx, m.bucket, path, minio.RemoveObjectOptions{})
	if err != nil && !isMinioNotFound(err) {
		return fmt.Errorf("%w: remove %s: %v", entity.ErrDelete, path, err)
	}
	return nil
}

func (m *MinioClient) DeleteBatch(ctx context.Context, baseDir, directory string, filenames []string) error {
	if len(filenames) == 0 {
		return nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(filenames))
	for _, name := range filenames {
		objectsCh <- minio.ObjectInfo{Key: entity.ObjectPath(baseDir, directory, name)}
	}
	close(objectsCh)

	errorCh := m.Client.RemoveObjects(ctx, m.bucket, objectsCh, minio.RemoveObjectsOptions{})

	var firstErr error
	for rmErr := range errorCh {
		if rmErr.Err == nil || isMinioNotFound(rmErr.Err) {
			continue
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("%w: remove %s: %v", entity.ErrDelete, rmErr.ObjectName, rmErr.Err)
		}
	}
	return firstErr
}

// Health checks the admin API and the media bucket.
func (m *MinioClient) Health(ctx context.Context) error {
	if _, err := m.Admin.ServerInfo(ctx); err != nil {
		return fmt.Errorf("minio admin unreachable: %w", err)
	}
	exists, err := m.Client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", m.bucket)
	}
	return nil
}

func isMinioNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}
