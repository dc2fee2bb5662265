package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	BasePath        string
}

type minioStore struct {
	client   *minio.Client
	bucket   string
	basePath string
}

// NewMinIOStore connects to the archive bucket, retrying with doubling
// intervals so a slow-starting object store does not fail the pipeline.
func NewMinIOStore(ctx context.Context, cfg MinIOConfig) (*minioStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty MinIO endpoint")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("empty MinIO bucket")
	}

	const maxAttempts = 5
	interval := time.Second

	var client *minio.Client
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("context canceled before MinIO init: %w", ctx.Err())
		}

		c, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			lastErr = fmt.Errorf("create MinIO client: %w", err)
		} else if err := ensureBucket(ctx, c, cfg.Bucket); err != nil {
			lastErr = err
		} else {
			client = c
			break
		}

		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("context canceled while waiting to retry MinIO: %w", ctx.Err())
			case <-time.After(interval):
				interval *= 2
			}
		}
	}
	if client == nil {
		return nil, fmt.Errorf("init MinIO failed after %d attempts: %w", maxAttempts, lastErr)
	}

	basePath := strings.Trim(cfg.BasePath, "/")
	if basePath != "" {
		basePath += "/"
	}

	return &minioStore{
		client:   client,
		bucket:   cfg.Bucket,
		basePath: basePath,
	}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func (s *minioStore) Save(ctx context.Context, reader io.Reader, name string, size int64) (int64, string, error) {
	select {
	case <-ctx.Done():
		return 0, "", ctx.Err()
	default:
	}

	objectName, err := s.objectName(name)
	if err != nil {
		return 0, "", err
	}

	hasher := sha256.New()
	hashingReader := io.TeeReader(reader, hasher)

	putSize := size
	if putSize <= 0 {
		putSize = -1
	}

	info, err := s.client.PutObject(ctx, s.bucket, objectName, hashingReader, putSize, minio.PutObjectOptions{})
	if err != nil {
		return 0, "", fmt.Errorf("put object: %w", err)
	}

	hash := hex.EncodeToString(hasher.Sum(nil))
	return info.Size, hash, nil
}

func (s *minioStore) objectName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("empty object name")
	}

	clean := path.Clean(name)
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid object name: %s", name)
	}
	clean = strings.TrimLeft(clean, "/")

	return s.basePath + clean, nil
}
