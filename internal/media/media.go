// Package media stores product images in S3.
package media

import (
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront-sync/internal/aws"
)

// KeyPrefix is the folder every product image is stored under.
const KeyPrefix = "products/"

// Uploader stores one uploaded file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, file *multipart.FileHeader) (string, error)
}

// S3Uploader puts images in a bucket. URLs are built from baseURL when set,
// else from the virtual-hosted bucket address.
type S3Uploader struct {
	client  aws.S3API
	bucket  string
	baseURL string
	region  string
	logger  *zap.Logger
	newID   func() string
}

func NewS3Uploader(client aws.S3API, bucket, baseURL, region string, logger *zap.Logger) *S3Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Uploader{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		region:  region,
		logger:  logger.Named("media"),
		newID:   func() string { return uuid.NewString() },
	}
}

func (u *S3Uploader) Upload(ctx context.Context, file *multipart.FileHeader) (string, error) {
	f, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", file.Filename, err)
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(file.Filename))
	key := KeyPrefix + u.newID() + ext
	contentType := contentTypeOf(file, ext)

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        sdkaws.String(u.bucket),
		Key:           sdkaws.String(key),
		Body:          f,
		ContentType:   sdkaws.String(contentType),
		ContentLength: sdkaws.Int64(file.Size),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	u.logger.Debug("image uploaded", zap.String("key", key), zap.Int64("size", file.Size))
	return u.URL(key), nil
}

// URL returns the public address of key.
func (u *S3Uploader) URL(key string) string {
	if u.baseURL != "" {
		return u.baseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key)
}

func contentTypeOf(file *multipart.FileHeader, ext string) string {
	if ct := file.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
