package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds the connection info for an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// S3Client implements ObjectStorage on top of the MinIO client. The parent
// folder identifier is used as a key prefix.
type S3Client struct {
	client *minio.Client
	bucket string
}

// NewS3Client creates an S3Client.
func NewS3Client(cfg S3Config) (*S3Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint must be provided")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket must be provided")
	}

	endpoint := cfg.Endpoint
	secure := cfg.UseSSL
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	return &S3Client{client: client, bucket: cfg.Bucket}, nil
}

// CreateObject uploads body to parentID/name and returns the object key.
func (c *S3Client) CreateObject(ctx context.Context, obj Object, body io.Reader) (string, error) {
	key := joinKey(obj.ParentID, obj.Name)
	size := obj.Size
	if size == 0 {
		size = -1
	}

	info, err := c.client.PutObject(ctx, c.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: obj.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s failed: %w", key, err)
	}
	return info.Key, nil
}

// ListObjects lists every object under the parentID prefix.
func (c *S3Client) ListObjects(ctx context.Context, parentID string) ([]ObjectInfo, error) {
	prefix := strings.TrimSuffix(parentID, "/")
	if prefix != "" {
		prefix += "/"
	}

	var results []ObjectInfo
	for object := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, fmt.Errorf("s3 list failed: %w", object.Err)
		}
		results = append(results, ObjectInfo{
			ID:           object.Key,
			Name:         path.Base(object.Key),
			ContentType:  object.ContentType,
			Size:         object.Size,
			ModifiedTime: object.LastModified,
		})
	}
	return results, nil
}

var (
	_ ObjectStorage = (*S3Client)(nil)
	_ Lister        = (*S3Client)(nil)
)
