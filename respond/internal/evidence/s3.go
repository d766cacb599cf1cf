package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures the S3 evidence backend.
type S3Config struct {
	Bucket string
	Prefix string

	// Endpoint and UsePathStyle target S3-compatible stores such as MinIO.
	Endpoint     string
	UsePathStyle bool

	// ServerSideEncryption is "AES256" or "aws:kms".
	ServerSideEncryption string
	KMSKeyID             string
}

// Validate checks required settings.
func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3: bucket is required")
	}
	switch c.ServerSideEncryption {
	case "", string(types.ServerSideEncryptionAes256):
	case string(types.ServerSideEncryptionAwsKms):
		if c.KMSKeyID == "" {
			return errors.New("s3: kms key id is required for aws:kms encryption")
		}
	default:
		return fmt.Errorf("s3: unsupported server side encryption %q", c.ServerSideEncryption)
	}
	return nil
}

// S3Store keeps blobs in an S3 bucket.
type S3Store struct {
	client *s3.Client
	cfg    S3Config
	logger *slog.Logger
}

// NewS3Store builds a store from a loaded AWS config.
func NewS3Store(awsCfg aws.Config, cfg S3Config, logger *slog.Logger) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}
	if cfg.UsePathStyle {
		opts = append(opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, opts...),
		cfg:    cfg,
		logger: logger.With(slog.String("component", "s3"), slog.String("bucket", cfg.Bucket)),
	}, nil
}

func (s *S3Store) key(key string) string {
	if s.cfg.Prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.cfg.Prefix, "/") + "/" + key
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(s.key(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if s.cfg.ServerSideEncryption != "" {
		input.ServerSideEncryption = types.ServerSideEncryption(s.cfg.ServerSideEncryption)
		if s.cfg.KMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(s.cfg.KMSKeyID)
		}
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3: failed to upload %s: %w", key, err)
	}
	s.logger.DebugContext(ctx, "uploaded blob", slog.String("key", key), slog.Int("size", len(data)))
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
		return nil, fmt.Errorf("s3: failed to download %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to read %s: %w", key, err)
	}
	return data, nil
}
