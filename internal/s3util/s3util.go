// Package s3util holds the S3 helpers shared by the archive and the API:
// object key layout, image upload and presigned download URLs.
package s3util

import (
	"bytes"
	"context"
	"fmt"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/fpang/aop-fashion-mockup/internal/dataurl"
)

// DefaultPresignExpiry is the lifetime of download URLs handed to clients.
const DefaultPresignExpiry = 15 * time.Minute

// PutObjectAPI is the subset of *s3.Client used for uploads.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PresignGetAPI is the subset of *s3.PresignClient used for download URLs.
type PresignGetAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var (
	_ PutObjectAPI  = (*s3.Client)(nil)
	_ PresignGetAPI = (*s3.PresignClient)(nil)
)

// MockupKey returns the object key of one image of a mockup, e.g.
// "mockups/<id>/flat.png".
func MockupKey(id, name string, img *dataurl.Image) string {
	return fmt.Sprintf("mockups/%s/%s%s", id, name, img.Extension())
}

// UploadImage stores img under key with its MIME type as Content-Type.
func UploadImage(ctx context.Context, client PutObjectAPI, bucket, key string, img *dataurl.Image) error {
	contentType := img.MIMEType
	if contentType == "" {
		contentType = dataurl.DefaultMIMEType
	}

	log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int("size", len(img.Data)).
		Msg("Uploading image to S3")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(img.Data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", key, err)
	}
	return nil
}

// GeneratePresignedURL creates a pre-signed GET URL for an S3 object.
func GeneratePresignedURL(ctx context.Context, presignClient PresignGetAPI, bucket, key string, expiry time.Duration) (string, error) {
	result, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return result.URL, nil
}
