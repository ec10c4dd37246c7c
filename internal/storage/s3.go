package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"gitbridge/internal/apperr"
)

// S3Config carries the connection settings for an S3-compatible store.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3 implements Backend on any S3-compatible object store via minio-go.
type S3 struct {
	client   *minio.Client
	bucket   string
	region   string
	initOnce sync.Once
	initErr  error
}

func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, apperr.E(apperr.KindInternal, "s3 endpoint, credentials and bucket are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageFailed, err, "init s3 client")
	}
	return &S3{client: client, bucket: cfg.Bucket, region: region}, nil
}

// ensureBucket lazily creates the bucket on first use.
func (s *S3) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	if s.initErr != nil {
		return apperr.Wrap(apperr.KindStorageFailed, s.initErr, "ensure bucket %s", s.bucket)
	}
	return nil
}

func (s *S3) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return apperr.Wrap(apperr.KindStorageFailed, err, "put %s", key)
	}
	return nil
}

func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageFailed, err, "get %s", key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, apperr.E(apperr.KindNotFound, "object %s not found", key)
		}
		return nil, apperr.Wrap(apperr.KindStorageFailed, err, "read %s", key)
	}
	return data, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperr.Wrap(apperr.KindStorageFailed, err, "delete %s", key)
	}
	return nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	var out []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, apperr.Wrap(apperr.KindStorageFailed, obj.Err, "list %s", prefix)
		}
		out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size, ModTime: obj.LastModified})
	}
	return out, nil
}

// Presign mints a time-limited direct download URL.
func (s *S3) Presign(ctx context.Context, key string, expiry time.Duration) (string, bool, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", false, err
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", false, apperr.Wrap(apperr.KindStorageFailed, err, "presign %s", key)
	}
	return u.String(), true, nil
}
