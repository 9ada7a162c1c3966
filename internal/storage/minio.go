package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/dermascan/internal/config"
)

const snapshotPrefix = "snapshots/"

// maxSnapshotSize bounds what GetSnapshot reads back.
const maxSnapshotSize = 10 * 1024 * 1024

var ErrSnapshotNotFound = errors.New("snapshot not found")

// MinIOStore archives the frames barcodes were decoded from.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the snapshot bucket on first start.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// SnapshotKey is the object key of the frame decoded in a capture session.
func SnapshotKey(userID, sessionID string) string {
	return snapshotPrefix + userID + "/" + sessionID + ".jpg"
}

// PutSnapshot stores a decoded JPEG frame and returns its key.
func (s *MinIOStore) PutSnapshot(ctx context.Context, userID, sessionID string, jpeg []byte) (string, error) {
	if len(jpeg) == 0 {
		return "", errors.New("empty snapshot")
	}
	key := SnapshotKey(userID, sessionID)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(jpeg), int64(len(jpeg)), minio.PutObjectOptions{
		ContentType: "image/jpeg",
		UserMetadata: map[string]string{
			"user-id":    userID,
			"session-id": sessionID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("put snapshot %s: %w", key, err)
	}
	return key, nil
}

// GetSnapshot reads back a frame stored by PutSnapshot. Keys outside the
// snapshot prefix are refused.
func (s *MinIOStore) GetSnapshot(ctx context.Context, key string) ([]byte, error) {
	if !strings.HasPrefix(key, snapshotPrefix) || strings.Contains(key, "..") {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, key)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", key, err)
	}
	defer obj.Close()

	// GetObject is lazy; Stat surfaces a missing key.
	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, key)
		}
		return nil, fmt.Errorf("stat snapshot %s: %w", key, err)
	}
	if info.Size > maxSnapshotSize {
		return nil, fmt.Errorf("snapshot %s is %d bytes", key, info.Size)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	return data, nil
}

// Ping checks MinIO connectivity and that the bucket exists.
func (s *MinIOStore) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}
