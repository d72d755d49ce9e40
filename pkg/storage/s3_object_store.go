package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
)

const sniffLen = 512

type S3ClientConfig struct {
	Endpoint     string
	AccessKeyID  string
	SecretKey    string
	Region       string
	Bucket       string
	Prefix       string
	UsePathStyle bool
}

type S3ObjectStore struct {
	uploader *manager.Uploader
	cfg      S3ClientConfig
	logger   *slog.Logger
}

var _ ObjectStore = (*S3ObjectStore)(nil)

func initializeS3Client(ctx context.Context, cfg S3ClientConfig) (*s3.Client, error) {
	opts := []func(*aws_config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, aws_config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		opts = append(opts, aws_config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := aws_config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO and other S3 compatible endpoints need path-style addressing
		o.UsePathStyle = cfg.UsePathStyle || cfg.Endpoint != ""
	}), nil
}

// NewS3ObjectStore uploads into cfg.Bucket. A nil logger uses [slog.Default].
func NewS3ObjectStore(ctx context.Context, cfg S3ClientConfig, logger *slog.Logger) (*S3ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 object store needs a bucket")
	}

	client, err := initializeS3Client(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize s3 client: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &S3ObjectStore{
		uploader: manager.NewUploader(client),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

func (s *S3ObjectStore) key(key string) string {
	if s.cfg.Prefix == "" {
		return key
	}
	return path.Join(s.cfg.Prefix, key)
}

// sniffContentType detects the content type from the head of data. The returned reader yields all of data.
func sniffContentType(data io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(data, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, err
	}
	head = head[:n]
	return mimetype.Detect(head).String(), io.MultiReader(bytes.NewReader(head), data), nil
}

func (s *S3ObjectStore) PutObject(ctx context.Context, key string, data io.Reader) error {
	fullKey := s.key(key)

	contentType, body, err := sniffContentType(data)
	if err != nil {
		return fmt.Errorf("failed to read object %s: %w", fullKey, err)
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(fullKey),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object to s3://%s/%s: %w", s.cfg.Bucket, fullKey, err)
	}

	s.logger.Info("object uploaded successfully", "bucket", s.cfg.Bucket, "key", fullKey, "content_type", contentType)

	return nil
}
