package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	// Prefix namespaces all keys inside the bucket, e.g. "catalogs".
	Prefix string
}

// MinIOBackend stores resources as objects. S3 PUTs replace an object
// atomically, so readers never see a partial upload.
type MinIOBackend struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIOBackend creates a new MinIO client and ensures the bucket exists.
func NewMinIOBackend(ctx context.Context, cfg MinIOConfig) (*MinIOBackend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	b := &MinIOBackend{client: mc, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
		// ignore "already exists" style errors
		exist, xerr := mc.BucketExists(ctx, b.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return b, nil
}

func (b *MinIOBackend) key(p string) string {
	if b.prefix == "" {
		return p
	}
	return b.prefix + "/" + p
}

func (b *MinIOBackend) WriteAtomic(ctx context.Context, p string, data []byte) error {
	if err := CheckPath(p); err != nil {
		return err
	}
	_, err := b.client.PutObject(ctx, b.bucket, b.key(p), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put %s: %w", p, err)
	}
	return nil
}

func (b *MinIOBackend) Read(ctx context.Context, p string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, b.key(p), minio.GetObjectOptions{})
	if err != nil {
		return nil, b.mapErr(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, b.mapErr(err)
	}
	return data, nil
}

func (b *MinIOBackend) mapErr(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return err
}

func (b *MinIOBackend) List(ctx context.Context, dir string) ([]string, error) {
	prefix := b.key(dir) + "/"
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var keys []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		keys = append(keys, dir+"/"+strings.TrimPrefix(obj.Key, prefix))
	}
	return childrenOf(keys, dir), nil
}

func (b *MinIOBackend) Remove(ctx context.Context, p string) error {
	err := b.client.RemoveObject(ctx, b.bucket, b.key(p), minio.RemoveObjectOptions{})
	if err != nil && b.mapErr(err) != ErrNotFound {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

func (b *MinIOBackend) Close() error { return nil }
