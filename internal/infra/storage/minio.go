package storage

import (
	"context"
	"io"
	"mime"
	"path/filepath"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store keeps file contents in MinIO, one bucket per user namespace.
type Store struct {
	client *minio.Client
	region string

	mu      sync.Mutex
	buckets map[string]bool
}

func New(endpoint, region, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}
	return &Store{client: cli, region: region, buckets: make(map[string]bool)}, nil
}

func (s *Store) ensureBucket(ctx context.Context, namespace string) error {
	s.mu.Lock()
	known := s.buckets[namespace]
	s.mu.Unlock()
	if known {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, namespace)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, namespace, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.buckets[namespace] = true
	s.mu.Unlock()
	return nil
}

func (s *Store) Upload(ctx context.Context, namespace, localPath, handle string) error {
	if err := s.ensureBucket(ctx, namespace); err != nil {
		return err
	}

	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.FPutObject(ctx, namespace, handle, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (s *Store) Download(ctx context.Context, namespace, handle string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, namespace, handle, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// Stat reports whether the object is present; callers use it to verify
// an upload landed before dispatching work against it.
func (s *Store) Stat(ctx context.Context, namespace, handle string) error {
	_, err := s.client.StatObject(ctx, namespace, handle, minio.StatObjectOptions{})
	return err
}

func (s *Store) RemovePrefix(ctx context.Context, namespace, prefix string) error {
	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	for obj := range s.client.ListObjects(ctx, namespace, opts) {
		if obj.Err != nil {
			return obj.Err
		}
		if err := s.client.RemoveObject(ctx, namespace, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}
