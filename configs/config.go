package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the application configuration
type Config struct {
	Port        string `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	Environment string `envconfig:"ENVIRONMENT" default:"development" validate:"oneof=development test staging production"`

	// 売上データと学習済みモデル
	DataPath     string   `envconfig:"DATA_PATH" default:"data/sales.csv" validate:"required"`
	ModelDir     string   `envconfig:"MODEL_DIR" default:"models" validate:"required"`
	FeatureNames []string `envconfig:"FEATURE_NAMES"`

	ClusterCount    int           `envconfig:"CLUSTER_COUNT" default:"10" validate:"min=1,max=100"`
	ClusterSeed     uint64        `envconfig:"CLUSTER_SEED" default:"42"`
	ForecastPeriods int           `envconfig:"FORECAST_PERIODS" default:"12" validate:"min=1,max=120"`
	CacheTTL        time.Duration `envconfig:"CACHE_TTL" default:"0s" validate:"min=0"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RateLimitRPS       float64  `envconfig:"RATE_LIMIT_RPS" default:"50" validate:"gte=0"`
	RateLimitBurst     int      `envconfig:"RATE_LIMIT_BURST" default:"100" validate:"gte=0"`
	LogLevel           string   `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Qdrant (任意): 未設定ならクラスタのスナップショット保存は無効
	QdrantURL        string `envconfig:"QDRANT_URL"`
	QdrantAPIKey     string `envconfig:"QDRANT_API_KEY"`
	QdrantCollection string `envconfig:"QDRANT_COLLECTION" default:"customer_clusters"`

	APIKey string `envconfig:"API_KEY"`
}

// LoadConfig loads configuration from environment variables and validates it.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SlogLevel converts LogLevel into a slog.Level. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SnapshotsEnabled reports whether clustering results are exported to Qdrant.
func (c *Config) SnapshotsEnabled() bool {
	return c.QdrantURL != ""
}
