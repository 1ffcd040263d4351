package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/blog-platform/services/blog/internal/media"
)

type BlogConfig struct {
	DatabaseURL    string
	JWTSecret      []byte
	AccessTokenTTL time.Duration
	// BootstrapAdminUsername is promoted to admin when it registers.
	BootstrapAdminUsername string
	GRPCAddr               string
	NATSURL                string
	RedisURL               string
	CacheTTL               time.Duration
	S3                     media.S3Config
	MaxUploadBytes         int64
}

func LoadBlog() (BlogConfig, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return BlogConfig{}, errors.New("JWT_SECRET is required")
	}

	cfg := BlogConfig{
		DatabaseURL:            env("DATABASE_URL"),
		JWTSecret:              []byte(secret),
		AccessTokenTTL:         parseDurationWithDefault(os.Getenv("ACCESS_TOKEN_TTL"), 24*time.Hour),
		BootstrapAdminUsername: env("BOOTSTRAP_ADMIN_USERNAME"),
		GRPCAddr:               env("GRPC_ADDR"),
		NATSURL:                env("NATS_URL"),
		RedisURL:               env("REDIS_URL"),
		CacheTTL:               time.Duration(parseIntWithDefault(os.Getenv("CACHE_TTL_SECONDS"), 60)) * time.Second,
		S3: media.S3Config{
			Region:          env("S3_REGION"),
			Endpoint:        env("S3_ENDPOINT"),
			Bucket:          env("S3_BUCKET"),
			AccessKeyID:     env("S3_ACCESS_KEY_ID"),
			SecretAccessKey: env("S3_SECRET_ACCESS_KEY"),
			PublicBaseURL:   env("S3_PUBLIC_BASE_URL"),
		},
		MaxUploadBytes: int64(parseIntWithDefault(os.Getenv("MAX_UPLOAD_BYTES"), media.DefaultMaxBytes)),
	}
	if cfg.GRPCAddr == "" {
		cfg.GRPCAddr = ":9090"
	}
	return cfg, nil
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func parseDurationWithDefault(v string, def time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func parseIntWithDefault(v string, def int) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
