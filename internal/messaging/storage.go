// internal/messaging/storage.go

package messaging

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"

	"github.com/imadgeboyega/linkup-backend/internal/config"
)

// Storage persists uploaded message attachments and returns their public URL
type Storage interface {
	Upload(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*MediaDescriptor, error)
}

// mediaKey builds a collision-free object key preserving the file extension
func mediaKey(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("messages/%s%s", uuid.New().String(), ext)
}

type s3Storage struct {
	uploader *s3manager.Uploader
	bucket   string
}

// NewS3Storage creates attachment storage backed by an S3 bucket
func NewS3Storage(cfg *config.Config) (Storage, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(cfg.AWSRegion),
		Credentials: credentials.NewStaticCredentials(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &s3Storage{
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.S3Bucket,
	}, nil
}

func (s *s3Storage) Upload(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*MediaDescriptor, error) {
	key := mediaKey(header.Filename)
	contentType := header.Header.Get("Content-Type")

	result, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
		ACL:         aws.String(s3.BucketCannedACLPublicRead),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &MediaDescriptor{
		URL:      result.Location,
		Filename: header.Filename,
		Size:     header.Size,
		MimeType: contentType,
	}, nil
}

type localStorage struct {
	dir     string
	baseURL string
}

// NewLocalStorage creates attachment storage on the local filesystem,
// intended for development
func NewLocalStorage(cfg *config.Config) (Storage, error) {
	if err := os.MkdirAll(filepath.Join(cfg.LocalUploadDir, "messages"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &localStorage{dir: cfg.LocalUploadDir, baseURL: cfg.BaseURL}, nil
}

func (s *localStorage) Upload(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*MediaDescriptor, error) {
	key := mediaKey(header.Filename)
	path := filepath.Join(s.dir, filepath.FromSlash(key))

	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}

	return &MediaDescriptor{
		URL:      fmt.Sprintf("%s/uploads/%s", s.baseURL, key),
		Filename: header.Filename,
		Size:     header.Size,
		MimeType: header.Header.Get("Content-Type"),
	}, nil
}

// NewStorage picks the storage backend from configuration
func NewStorage(cfg *config.Config) (Storage, error) {
	if cfg.UseS3 {
		return NewS3Storage(cfg)
	}
	return NewLocalStorage(cfg)
}
