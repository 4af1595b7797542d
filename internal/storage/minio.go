package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/artrack/internal/config"
)

// FrameStore keeps captured frames in MinIO between the ingestor and the
// tracking workers. Objects are transient: workers delete a frame after
// processing it and the ingestor prunes stragglers.
type FrameStore struct {
	client *minio.Client
	bucket string
}

func NewFrameStore(cfg config.MinIOConfig) (*FrameStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &FrameStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// FrameKey builds the object key for a captured frame.
func FrameKey(streamID string, frameID uint64) string {
	return fmt.Sprintf("frames/%s/%012d.jpg", streamID, frameID)
}

// StreamPrefix is the object key prefix holding all frames of one stream.
func StreamPrefix(streamID string) string {
	return fmt.Sprintf("frames/%s/", streamID)
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *FrameStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// PutObject uploads data under the given key.
func (s *FrameStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// GetObject retrieves data by key.
func (s *FrameStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// DeleteObject removes a single object.
func (s *FrameStore) DeleteObject(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// ListObjects returns all object keys under the given prefix.
func (s *FrameStore) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// DeleteObjects removes multiple objects in a single batch request.
func (s *FrameStore) DeleteObjects(ctx context.Context, keys []string) error {
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)
	for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return fmt.Errorf("delete object %s: %w", result.ObjectName, result.Err)
		}
	}
	return nil
}

// PruneStream deletes all but the newest keep frames of a stream. Frame keys
// sort lexicographically by frame ID, so the oldest come first.
func (s *FrameStore) PruneStream(ctx context.Context, streamID string, keep int) (int, error) {
	keys, err := s.ListObjects(ctx, StreamPrefix(streamID))
	if err != nil {
		return 0, err
	}
	if len(keys) <= keep {
		return 0, nil
	}
	sort.Strings(keys)
	stale := keys[:len(keys)-keep]
	if err := s.DeleteObjects(ctx, stale); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// Ping checks MinIO connectivity.
func (s *FrameStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
