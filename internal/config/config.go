package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DepthPolicy decides what happens to a reply that would nest too deep.
type DepthPolicy string

const (
	DepthPolicyReject   DepthPolicy = "reject"
	DepthPolicyReparent DepthPolicy = "reparent"
)

type Config struct {
	Env           string // production or development
	Port          string
	DatabaseURL   string
	Storage       string // postgres or memory
	SessionSecret string

	CommentMaxDepth    int
	CommentDepthPolicy DepthPolicy

	NotifyTimeout   time.Duration
	NotifyQueueSize int

	CacheSize       int
	CacheTTL        time.Duration
	RateLimitPerSec float64
	RateLimitBurst  int

	HotRefreshInterval time.Duration
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads .env (if present) and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading configuration from environment")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment, applying defaults.
func FromEnv() Config {
	cfg := Config{
		Env:                strings.ToLower(getenv("APP_ENV", "development")),
		Port:               getenv("PORT", "8080"),
		DatabaseURL:        getenv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=jukwaa port=5432 sslmode=disable TimeZone=Africa/Nairobi"),
		Storage:            strings.ToLower(getenv("STORAGE", "postgres")),
		SessionSecret:      getenv("SESSION_SECRET", "secret_key_change_me"),
		CommentMaxDepth:    getint("COMMENT_MAX_DEPTH", 5),
		CommentDepthPolicy: DepthPolicy(strings.ToLower(getenv("COMMENT_DEPTH_POLICY", string(DepthPolicyReject)))),
		NotifyTimeout:      getduration("NOTIFY_TIMEOUT", 3*time.Second),
		NotifyQueueSize:    getint("NOTIFY_QUEUE_SIZE", 1000),
		CacheSize:          getint("CACHE_SIZE", 500),
		CacheTTL:           getduration("CACHE_TTL", 5*time.Minute),
		RateLimitPerSec:    getfloat("RATE_LIMIT_PER_SEC", 5),
		RateLimitBurst:     getint("RATE_LIMIT_BURST", 20),
		HotRefreshInterval: getduration("HOT_REFRESH_INTERVAL", 10*time.Minute),
	}
	if cfg.CommentMaxDepth < 1 {
		cfg.CommentMaxDepth = 5
	}
	if cfg.CommentDepthPolicy != DepthPolicyReparent {
		cfg.CommentDepthPolicy = DepthPolicyReject
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v, err := strconv.Atoi(getenv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getfloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(getenv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getduration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getenv(key, ""))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
