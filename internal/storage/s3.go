package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Kinds of uploaded images, used as the top-level key prefix
const (
	KindMessage = "messages"
	KindProfile = "profiles"
	KindCover   = "covers"
)

var (
	// ErrNotConfigured is returned by uploads when no bucket is set up
	ErrNotConfigured = errors.New("media storage not configured")
	// ErrUnsupportedMedia is returned when the uploaded bytes are not an image
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

// MediaUploader stores an image and returns its public URL
type MediaUploader interface {
	UploadImage(ctx context.Context, data []byte, userID, kind, originalFilename string) (string, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader uploads images to an S3 bucket
type S3Uploader struct {
	client  objectPutter
	bucket  string
	baseURL string
	now     func() time.Time
}

// NewS3Uploader loads the default AWS credential chain for region
func NewS3Uploader(ctx context.Context, region, bucket, baseURL string) (*S3Uploader, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return &S3Uploader{
		client:  s3.NewFromConfig(cfg),
		bucket:  bucket,
		baseURL: baseURL,
		now:     time.Now,
	}, nil
}

// UploadImage writes data under {kind}/{year}/{month}/{userID}/{uuid}{ext}
func (u *S3Uploader) UploadImage(ctx context.Context, data []byte, userID, kind, originalFilename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	if ext == "" {
		ext = ".jpg"
	}
	now := u.now()
	key := fmt.Sprintf("%s/%d/%02d/%s/%s%s", kind, now.Year(), now.Month(), userID, uuid.NewString(), ext)

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w %q", ErrUnsupportedMedia, contentType)
	}

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(u.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("max-age=86400"),
		Metadata: map[string]string{
			"user-id":           userID,
			"original-filename": originalFilename,
			"upload-timestamp":  now.Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return fmt.Sprintf("%s/%s", strings.TrimSuffix(u.baseURL, "/"), key), nil
}

// Disabled rejects every upload
type Disabled struct{}

func (Disabled) UploadImage(context.Context, []byte, string, string, string) (string, error) {
	return "", ErrNotConfigured
}
