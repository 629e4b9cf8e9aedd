package license

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"license-controlplane/pkg/config"

	"github.com/gosimple/slug"
	"github.com/minio/minio-go/v7"
)

var ErrObjectNotFound = errors.New("object not found")

//go:generate mockgen -source=storage.go -destination=mock_objectstore_test.go -package=license

// ObjectStore keeps the rendered artifact files.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
}

type minioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(client *minio.Client, cfg *config.Config) ObjectStore {
	return &minioStore{client: client, bucket: cfg.Minio.BucketName}
}

func (s *minioStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *minioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *minioStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// ObjectKey names the artifact object <prefix>/<slug(customer)>-<id>.dat.
func ObjectKey(prefix, customer, id string) string {
	name := slug.Make(customer)
	if name == "" {
		name = "license"
	}
	file := fmt.Sprintf("%s-%s.dat", name, id)
	if prefix = strings.Trim(prefix, "/"); prefix == "" {
		return file
	}
	return prefix + "/" + file
}
