package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "LIBRARY"

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Embedding EmbeddingConfig
}

type AppConfig struct {
	Env       string `envconfig:"LIBRARY_ENVIRONMENT" default:"development"`
	Port      string `envconfig:"LIBRARY_SERVER_PORT" default:"8080"`
	LogLevel  string `envconfig:"LIBRARY_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LIBRARY_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, "development")
}

type DBConfig struct {
	// DSN may be empty in development, in which case an in-memory store is used.
	DSN             string        `envconfig:"LIBRARY_DB_SOURCE"`
	MaxConns        int32         `envconfig:"LIBRARY_DB_MAX_CONNS" default:"25"`
	MinConns        int32         `envconfig:"LIBRARY_DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"LIBRARY_DB_MAX_CONN_LIFETIME" default:"30m"`
}

type RedisConfig struct {
	// URL enables the shared embedding cache tier when set.
	URL       string        `envconfig:"LIBRARY_REDIS_URL"`
	VectorTTL time.Duration `envconfig:"LIBRARY_REDIS_VECTOR_TTL" default:"168h"`
}

type EmbeddingConfig struct {
	Provider  string        `envconfig:"LIBRARY_EMBED_PROVIDER" default:"remote"`
	URL       string        `envconfig:"LIBRARY_EMBED_URL" default:"http://localhost:8081"`
	Model     string        `envconfig:"LIBRARY_EMBED_MODEL" default:"sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2"`
	Dimension int           `envconfig:"LIBRARY_EMBED_DIMENSION" default:"384"`
	BatchSize int           `envconfig:"LIBRARY_EMBED_BATCH_SIZE" default:"32"`
	Timeout   time.Duration `envconfig:"LIBRARY_EMBED_TIMEOUT" default:"30s"`
	// RetryAfter is how long a failed model load is remembered before trying again.
	RetryAfter       time.Duration `envconfig:"LIBRARY_EMBED_RETRY_AFTER" default:"1m"`
	BreakerFailures  uint32        `envconfig:"LIBRARY_EMBED_BREAKER_FAILURES" default:"5"`
	BreakerOpenFor   time.Duration `envconfig:"LIBRARY_EMBED_BREAKER_OPEN_FOR" default:"30s"`
	BreakerHalfOpenN uint32        `envconfig:"LIBRARY_EMBED_BREAKER_HALF_OPEN" default:"1"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DB.DSN == "" && !c.App.IsDev() {
		return fmt.Errorf("%s_DB_SOURCE environment variable is required outside development", EnvPrefix)
	}
	switch c.Embedding.Provider {
	case "remote", "hashing":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive, got %d", c.Embedding.BatchSize)
	}
	return nil
}
