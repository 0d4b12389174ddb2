package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LIBRARY_ENVIRONMENT", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.True(t, cfg.App.IsDev())
	assert.Equal(t, "remote", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 32, cfg.Embedding.BatchSize)
	assert.Equal(t, time.Minute, cfg.Embedding.RetryAfter)
	assert.Equal(t, int32(25), cfg.DB.MaxConns)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoadRequiresDSNOutsideDevelopment(t *testing.T) {
	t.Setenv("LIBRARY_ENVIRONMENT", "production")
	t.Setenv("LIBRARY_DB_SOURCE", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIBRARY_DB_SOURCE")

	t.Setenv("LIBRARY_DB_SOURCE", "postgres://u:p@localhost:5432/library")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.App.IsDev())
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("LIBRARY_ENVIRONMENT", "development")
	t.Setenv("LIBRARY_EMBED_PROVIDER", "magic")

	_, err := Load()
	assert.ErrorContains(t, err, "magic")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LIBRARY_ENVIRONMENT", "development")
	t.Setenv("LIBRARY_EMBED_PROVIDER", "hashing")
	t.Setenv("LIBRARY_EMBED_DIMENSION", "256")
	t.Setenv("LIBRARY_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LIBRARY_REDIS_VECTOR_TTL", "2h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "hashing", cfg.Embedding.Provider)
	assert.Equal(t, 256, cfg.Embedding.Dimension)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 2*time.Hour, cfg.Redis.VectorTTL)
}
