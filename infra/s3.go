package infra

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/entity"
)

// S3 caps DeleteObjects at this many keys per request.
const s3DeleteChunk = 1000

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type S3Client struct {
	client  s3API
	bucket  string
	baseURL string
}

func InitS3Client(ctx context.Context, cfg *config.EnvConfig) (*S3Client, error) {
	if cfg.S3.AccessKey == "" || cfg.S3.SecretKey == "" {
		return nil, errors.New("S3 credentials are not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Storage.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := cfg.Storage.PublicBaseURL
	if baseURL == "" {
		if cfg.S3.Endpoint != "" {
			baseURL = strings.TrimSuffix(cfg.S3.Endpoint, "/") + "/" + cfg.Storage.Bucket
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Storage.Bucket, cfg.Storage.Region)
		}
	}

	return NewS3Client(client, cfg.Storage.Bucket, baseURL), nil
}

func NewS3Client(client s3API, bucket, baseURL string) *S3Client {
	return &S3Client{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (s *S3Client) Name() string { return "s3" }

func (s *S3Client) PublicBaseURL() string { return s.baseURL }

func (s *S3Client) Upload(ctx context.Context, data []byte, path, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		ACL:           types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", entity.ErrUpload, path, err)
	}
	return nil
}

// DeleteOne succeeds for absent keys; S3 reports no error for them.
func (s *S3Client) DeleteOne(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", entity.ErrDelete, path, err)
	}
	return nil
}

func (s *S3Client) DeleteBatch(ctx context.Context, baseDir, directory string, filenames []string) error {
	for start := 0; start < len(filenames); start += s3DeleteChunk {
		end := start + s3DeleteChunk
		if end > len(filenames) {
			end = len(filenames)
		}

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, name := range filenames[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(entity.ObjectPath(baseDir, directory, name))})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("%w: delete batch %s: %v", entity.ErrDelete, directory, err)
		}
		for _, objErr := range out.Errors {
			if aws.ToString(objErr.Code) == "NoSuchKey" {
				continue
			}
			return fmt.Errorf("%w: delete %s: %s", entity.ErrDelete, aws.ToString(objErr.Key), aws.ToString(objErr.Message))
		}
	}
	return nil
}

func (s *S3Client) Health(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}
