// Package media stores uploaded images in S3-compatible object storage.
package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/idgen"
)

var (
	ErrEmpty           = errors.New("empty upload")
	ErrTooLarge        = errors.New("image too large")
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrNotConfigured   = errors.New("image storage not configured")
)

const DefaultMaxBytes = 5 << 20

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// S3Config describes the bucket. Endpoint is set for S3-compatible stores
// such as MinIO and switches the client to path-style addressing.
type S3Config struct {
	Region          string
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL prefixes object keys in returned URLs. Empty means the
	// endpoint (or the AWS regional host) plus the bucket.
	PublicBaseURL string
}

func (c S3Config) Enabled() bool { return c.Bucket != "" }

func (c S3Config) publicBase() string {
	if c.PublicBaseURL != "" {
		return strings.TrimSuffix(c.PublicBaseURL, "/")
	}
	if c.Endpoint != "" {
		return strings.TrimSuffix(c.Endpoint, "/") + "/" + c.Bucket
	}
	region := c.Region
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://s3.%s.amazonaws.com/%s", region, c.Bucket)
}

// NewS3Client builds a client from cfg. Static credentials are used when
// given, otherwise the default AWS credential chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// ObjectPutter is the part of *s3.Client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Uploader struct {
	Client   ObjectPutter
	Config   S3Config
	MaxBytes int64
	Log      *zap.Logger
}

type Upload struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Upload stores one image for userID. The content type is sniffed from the
// bytes, not taken from the client.
func (u *Uploader) Upload(ctx context.Context, userID string, r io.Reader) (Upload, error) {
	if u == nil || u.Client == nil || !u.Config.Enabled() {
		return Upload{}, ErrNotConfigured
	}
	limit := u.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return Upload{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return Upload{}, ErrEmpty
	}
	if int64(len(data)) > limit {
		return Upload{}, ErrTooLarge
	}

	contentType := http.DetectContentType(data)
	ext, ok := extensions[contentType]
	if !ok {
		return Upload{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	name, err := idgen.New("")
	if err != nil {
		return Upload{}, err
	}
	key := "images/" + safeSegment(userID) + "/" + name + ext
	sum := sha256.Sum256(data)

	_, err = u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:         aws.String(u.Config.Bucket),
		Key:            aws.String(key),
		Body:           bytes.NewReader(data),
		ContentLength:  aws.Int64(int64(len(data))),
		ContentType:    aws.String(contentType),
		ChecksumSHA256: aws.String(base64.StdEncoding.EncodeToString(sum[:])),
		CacheControl:   aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return Upload{}, fmt.Errorf("put object %s: %w", key, err)
	}

	if u.Log != nil {
		u.Log.Info("image uploaded", zap.String("key", key), zap.Int("size", len(data)), zap.String("user_id", userID))
	}
	return Upload{
		URL:         u.Config.publicBase() + "/" + key,
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func safeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '.' {
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		return "anonymous"
	}
	return s
}
