package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"framecast/internal/config"
)

// Uploader persists bytes under a key and returns a URL clients can fetch.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// New builds the uploader selected by STORAGE_BACKEND. It returns a nil
// Uploader for "none", in which case generated videos keep their provider URL.
func New(ctx context.Context, cfg config.Config) (Uploader, error) {
	switch cfg.StorageBackend {
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, errors.New("STORAGE_BACKEND=s3 requires S3_BUCKET")
		}
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Uploader(client, cfg.S3Bucket, cfg.PublicURL, cfg.PresignTTL), nil
	case "local":
		return NewLocalUploader(cfg.StorageDir, cfg.PublicURL), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3PathStyle
		// R2 and most S3-compatible stores reject the SDK's default trailing checksums.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}), nil
}

// S3Uploader writes objects to an S3-compatible bucket such as Cloudflare R2.
type S3Uploader struct {
	client     *s3.Client
	presign    *s3.PresignClient
	bucket     string
	publicURL  string
	presignTTL time.Duration
}

// NewS3Uploader returns public URLs under publicURL when it is set, and
// presigned GET URLs valid for presignTTL otherwise.
func NewS3Uploader(client *s3.Client, bucket, publicURL string, presignTTL time.Duration) *S3Uploader {
	if presignTTL <= 0 {
		presignTTL = 7 * 24 * time.Hour
	}
	return &S3Uploader{
		client:     client,
		presign:    s3.NewPresignClient(client),
		bucket:     bucket,
		publicURL:  strings.TrimRight(publicURL, "/"),
		presignTTL: presignTTL,
	}
}

func (s *S3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	key = sanitizeKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return s.url(ctx, key)
}

func (s *S3Uploader) url(ctx context.Context, key string) (string, error) {
	if s.publicURL != "" {
		return s.publicURL + "/" + key, nil
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return req.URL, nil
}

// LocalUploader writes objects below baseDir; the API serves them under /media.
type LocalUploader struct {
	baseDir   string
	publicURL string
}

func NewLocalUploader(baseDir, publicURL string) *LocalUploader {
	if baseDir == "" {
		baseDir = "./output"
	}
	return &LocalUploader{baseDir: baseDir, publicURL: strings.TrimRight(publicURL, "/")}
}

// Dir is the directory uploads are written to.
func (l *LocalUploader) Dir() string {
	return l.baseDir
}

func (l *LocalUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	key = sanitizeKey(key)
	p := filepath.Join(l.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(p, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return l.publicURL + "/media/" + key, nil
}

func sanitizeKey(key string) string {
	key = path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	return strings.TrimPrefix(key, "/")
}
