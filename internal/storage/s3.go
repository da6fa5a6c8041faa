package storage

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"

	"github.com/ah-its-andy/convertbot/internal/domain"
)

// DefaultUploadTimeout bounds one cloud copy.
const DefaultUploadTimeout = 60 * time.Second

// S3Config describes the target bucket.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3Uploader copies converted files to s3://bucket/<user>/<job>/<name>.
type S3Uploader struct {
	bucket   string
	uploader s3manageriface.UploaderAPI
	Timeout  time.Duration
}

func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is not configured")
	}
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.UsePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return newS3Uploader(cfg.Bucket, s3manager.NewUploader(sess)), nil
}

func newS3Uploader(bucket string, api s3manageriface.UploaderAPI) *S3Uploader {
	return &S3Uploader{bucket: bucket, uploader: api, Timeout: DefaultUploadTimeout}
}

// ObjectKey builds the key a converted file is stored under.
func ObjectKey(user, jobID, name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	return path.Join(keySegment(user), keySegment(jobID), base)
}

func keySegment(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "_"
	}
	return s
}

// Upload stores file and returns its s3:// location.
func (u *S3Uploader) Upload(ctx context.Context, user, jobID string, file domain.ConvertedFile) (string, error) {
	key := ObjectKey(user, jobID, file.Name)
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ctx, cancel := context.WithTimeout(ctx, u.Timeout)
	defer cancel()

	_, err := u.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file.Data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}
