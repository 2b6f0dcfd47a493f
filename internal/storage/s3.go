package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the configuration for S3 storage.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// S3Storage wraps LocalStorage and adds S3 upload capability.
// It uses LocalStorage for trial scratch files and S3 to publish finished clips.
type S3Storage struct {
	*LocalStorage
	client   *s3.Client
	bucket   string
	region   string
	endpoint string
}

// NewS3Storage creates a new S3Storage instance.
// The tempDir parameter specifies where temporary files are stored.
// The cfg parameter contains S3 configuration.
func NewS3Storage(tempDir string, cfg S3Config) (*S3Storage, error) {
	local, err := NewLocalStorage(tempDir)
	if err != nil {
		return nil, err
	}

	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &S3Storage{
		LocalStorage: local,
		client:       client,
		bucket:       cfg.Bucket,
		region:       cfg.Region,
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
	}, nil
}

// UploadToS3 uploads data to S3 and returns the object URL.
// Custom endpoints use path-style URLs.
func (s *S3Storage) UploadToS3(ctx context.Context, key string, data io.Reader) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   data,
	}
	if ct := contentType(key); ct != "" {
		input.ContentType = aws.String(ct)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload to S3: %w", err)
	}

	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key), nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".pcm", ".raw":
		return "application/octet-stream"
	}
	return ""
}
