package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string // NARI_DATABASE_URL (postgres:// URL or SQLite path; default "nari.db")
	GRPCAddr    string // NARI_GRPC_ADDR (default ":9090")
	HTTPAddr    string // NARI_HTTP_ADDR (default ":8080")
	NATSURL     string // NARI_NATS_URL (optional, empty = no events, gateway actions only logged)
	AuthToken   string // NARI_AUTH_TOKEN (optional, empty = auth disabled)
	Workers     int    // NARI_WORKERS (concurrent NATS invocations, default 16)

	// Lookup cache
	RedisAddr     string        // NARI_REDIS_ADDR (enables the cache when set)
	RedisPassword string        // NARI_REDIS_PASSWORD
	RedisDB       int           // NARI_REDIS_DB (default 0)
	CacheTTL      time.Duration // NARI_CACHE_TTL (default 10m)

	// Command behaviour
	PolicyFile     string // NARI_POLICY_FILE (optional TOML command policy)
	BadgePrefix    string // NARI_BADGE_PREFIX (overrides the policy file)
	UnknownCommand string // NARI_UNKNOWN_COMMAND ("silent" or "reply", overrides the policy file)

	// Sync settings
	SyncInterval   time.Duration // NARI_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // NARI_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // NARI_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // NARI_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // NARI_SYNC_S3_KEY (default "nari/ledger.jsonl")
	SyncGitRepo    string        // NARI_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // NARI_SYNC_GIT_FILE (default "ledger.jsonl")
	SyncGitBranch  string        // NARI_SYNC_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    envOrDefault("NARI_DATABASE_URL", "nari.db"),
		GRPCAddr:       envOrDefault("NARI_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("NARI_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("NARI_NATS_URL"),
		AuthToken:      os.Getenv("NARI_AUTH_TOKEN"),
		RedisAddr:      os.Getenv("NARI_REDIS_ADDR"),
		RedisPassword:  os.Getenv("NARI_REDIS_PASSWORD"),
		PolicyFile:     os.Getenv("NARI_POLICY_FILE"),
		BadgePrefix:    os.Getenv("NARI_BADGE_PREFIX"),
		UnknownCommand: os.Getenv("NARI_UNKNOWN_COMMAND"),
		SyncS3Bucket:   os.Getenv("NARI_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("NARI_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("NARI_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("NARI_SYNC_S3_KEY", "nari/ledger.jsonl"),
		SyncGitRepo:    os.Getenv("NARI_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("NARI_SYNC_GIT_FILE", "ledger.jsonl"),
		SyncGitBranch:  envOrDefault("NARI_SYNC_GIT_BRANCH", "main"),
	}

	var err error
	if c.Workers, err = envInt("NARI_WORKERS", 16); err != nil {
		return nil, err
	}
	if c.RedisDB, err = envInt("NARI_REDIS_DB", 0); err != nil {
		return nil, err
	}
	if c.CacheTTL, err = envDuration("NARI_CACHE_TTL", "10m"); err != nil {
		return nil, err
	}
	if c.SyncInterval, err = envDuration("NARI_SYNC_INTERVAL", "3m"); err != nil {
		return nil, err
	}
	return c, nil
}

// IsPostgres reports whether DatabaseURL names a PostgreSQL server rather
// than a SQLite file.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
