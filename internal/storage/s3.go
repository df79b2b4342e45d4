// Package storage puts uploaded media into S3.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// putObjectAPI is the part of the S3 client the uploader needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Uploader struct {
	client  putObjectAPI
	bucket  string
	baseURL string
}

// NewS3Uploader loads the default AWS credential chain for region.
// Without publicBaseURL, URLs point at the bucket's virtual-hosted endpoint.
func NewS3Uploader(ctx context.Context, bucket, region, publicBaseURL string) (*S3Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return &S3Uploader{client: s3.NewFromConfig(cfg), bucket: bucket, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(u.bucket),
		Key:          aws.String(key),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return u.baseURL + "/" + key, nil
}

// ObjectKey returns uploads/yyyy/mm/<uuid><ext>. The extension is lower-cased.
func ObjectKey(now time.Time, filename string) string {
	return fmt.Sprintf("uploads/%s/%s%s", now.Format("2006/01"), uuid.NewString(), strings.ToLower(path.Ext(filename)))
}
