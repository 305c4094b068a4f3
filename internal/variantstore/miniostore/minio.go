// Package miniostore implements variantstore.Store against an S3-compatible
// object store, adapted from DayQuest-CDN's internal/storage.MinioStorage:
// same client construction and bucket-provisioning-on-start pattern, but a
// single bucket holding one object per variant file (and one per sidecar)
// keyed by "<dir>/<filename>" instead of the CDN's per-purpose bucket set.
package miniostore

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pulsejet/go-vod-chop/internal/sidecar"
)

// Store reads variant and sidecar objects from a single bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// New builds a Store and ensures its bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("miniostore: creating client: %w", err)
	}

	s := &Store{client: client, bucket: bucket}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("miniostore: checking bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("miniostore: creating bucket %s: %w", bucket, err)
		}
	}

	return s, nil
}

func (s *Store) ReadSidecar(ctx context.Context, dir string) ([]byte, error) {
	return s.getObject(ctx, path.Join(dir, sidecar.Filename))
}

func (s *Store) ReadVariant(ctx context.Context, dir, filename string) ([]byte, error) {
	return s.getObject(ctx, path.Join(dir, filename))
}

func (s *Store) getObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("miniostore: getting object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("miniostore: reading object %s: %w", key, err)
	}
	return data, nil
}
