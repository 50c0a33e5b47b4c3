package images

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/filex"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Storage persists rendered artifacts. Put returns the stable reference
// recorded on the item; URL resolves that reference to something a client
// can fetch.
type Storage interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	URL(ctx context.Context, ref string) (string, error)
}

// RandomKey produces a date-partitioned object key for a fresh artifact.
func RandomKey() string {
	d := time.Now()
	return fmt.Sprintf("items/%d/%d/%d/%v.png", d.Year(), d.Month(), d.Day(), uuid.New())
}

// S3Config holds the object-store connection settings. Endpoint is the
// MinIO/S3 base endpoint.
type S3Config struct {
	Region    string
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
}

// S3Storage keeps artifacts in an S3-compatible bucket and hands out
// presigned GET links.
type S3Storage struct {
	bucket  string
	client  *s3.Client
	presign *s3.PresignClient
}

func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region), // обязательный параметр
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
	})

	return &S3Storage{
		bucket:  cfg.Bucket,
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

func (s *S3Storage) Put(ctx context.Context, key string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: store artifact: %v", common.ErrCollaborator, err)
	}
	return key, nil
}

func (s *S3Storage) URL(ctx context.Context, ref string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &ref,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", fmt.Errorf("%w: presign artifact url: %v", common.ErrCollaborator, err)
	}
	return req.URL, nil
}

// LocalStorage writes artifacts under a directory and serves them off a
// fixed public prefix. Meant for development and tests.
type LocalStorage struct {
	baseDir   string
	publicURL string
}

func NewLocalStorage(baseDir, publicURL string) *LocalStorage {
	return &LocalStorage{
		baseDir:   baseDir,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (s *LocalStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return key, nil
}

func (s *LocalStorage) URL(_ context.Context, ref string) (string, error) {
	return s.publicURL + "/" + ref, nil
}
