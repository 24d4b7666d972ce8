package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures an S3-compatible bucket for finished archives.
type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
	UseSSL    bool
}

// S3Uploader offloads ZIP exports to object storage.
type S3Uploader struct {
	client *minio.Client
	bucket string
	region string
	prefix string
}

// NewS3Uploader creates a MinIO client from opts.
func NewS3Uploader(opts S3Options) (*S3Uploader, error) {
	if strings.TrimSpace(opts.Endpoint) == "" || strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("s3 endpoint and bucket are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &S3Uploader{client: client, bucket: opts.Bucket, region: opts.Region, prefix: opts.Prefix}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (u *S3Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", u.bucket, err)
		}
	}
	return nil
}

// UploadArchive stores the archive under <prefix>/YYYY/MM/<name> and returns the object key.
func (u *S3Uploader) UploadArchive(ctx context.Context, a *Archive, now time.Time) (string, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat archive: %w", err)
	}
	key := objectKey(u.prefix, a.Name, now)
	opts := minio.PutObjectOptions{ContentType: "application/zip"}
	if _, err := u.client.PutObject(ctx, u.bucket, key, f, info.Size(), opts); err != nil {
		return "", fmt.Errorf("upload archive: %w", err)
	}
	return key, nil
}

func objectKey(prefix, name string, now time.Time) string {
	key := strings.Join([]string{strings.Trim(prefix, "/"), now.Format("2006"), now.Format("01"), name}, "/")
	key = strings.ReplaceAll(key, `\`, "/")
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	return strings.TrimPrefix(key, "/")
}
