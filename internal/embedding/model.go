// Package embedding turns text into fixed-length vectors.
//
// Model is the contract the similarity engine depends on. Remote talks to a
// sentence-transformers inference server; Hashing is a deterministic local
// embedder for offline use. Handle owns the process-wide model instance.
package embedding

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/libraryops/internal/config"
	"github.com/rs/zerolog"
)

// Model embeds a batch of texts. Every returned vector has Dimension() entries
// and the same input always yields the same vector.
type Model interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// LoaderFromConfig picks the model implementation named by cfg.Provider.
func LoaderFromConfig(cfg config.EmbeddingConfig, log zerolog.Logger) Loader {
	switch cfg.Provider {
	case "hashing":
		return func(ctx context.Context) (Model, error) {
			log.Info().Int("dimension", cfg.Dimension).Msg("using hashing embedder")
			return NewHashing(cfg.Dimension), nil
		}
	case "remote":
		return func(ctx context.Context) (Model, error) {
			log.Info().Str("model", cfg.Model).Str("url", cfg.URL).Msg("loading embedding model")
			m := NewRemote(RemoteOptions{
				URL:              cfg.URL,
				Model:            cfg.Model,
				Dimension:        cfg.Dimension,
				BatchSize:        cfg.BatchSize,
				Timeout:          cfg.Timeout,
				BreakerFailures:  cfg.BreakerFailures,
				BreakerOpenFor:   cfg.BreakerOpenFor,
				BreakerHalfOpenN: cfg.BreakerHalfOpenN,
			}, log)
			if err := m.Probe(ctx); err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	return func(ctx context.Context) (Model, error) {
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
