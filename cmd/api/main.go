package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/punchamoorthee/libraryops/internal/api"
	"github.com/punchamoorthee/libraryops/internal/config"
	"github.com/punchamoorthee/libraryops/internal/embedding"
	"github.com/punchamoorthee/libraryops/internal/logging"
	"github.com/punchamoorthee/libraryops/internal/service"
	"github.com/punchamoorthee/libraryops/internal/similarity"
	"github.com/punchamoorthee/libraryops/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		boot := logging.New(logging.Options{Service: "api"})
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(logging.Options{
		Service: "api",
		Level:   cfg.App.LogLevel,
		Format:  cfg.App.LogFormat,
	})
	if envErr != nil {
		log.Debug().Msg(".env file not found, relying on environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap store")
	}
	defer st.Close()

	var vectors similarity.VectorStore
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid redis url")
		}
		client := redis.NewClient(opts)
		defer client.Close()

		rvs := similarity.NewRedisVectorStore(client, cfg.Redis.VectorTTL)
		if err := rvs.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, shared embedding cache disabled")
		} else {
			vectors = rvs
		}
	}

	models := embedding.NewHandle(embedding.LoaderFromConfig(cfg.Embedding, log), cfg.Embedding.RetryAfter)
	defer func() {
		if err := models.Close(); err != nil {
			log.Error().Err(err).Msg("error closing embedding model")
		}
	}()
	go func() {
		// Warm the model so the first request does not pay for the load.
		if err := models.Init(ctx); err != nil {
			log.Warn().Err(err).Msg("embedding model not available yet; similarity endpoints will degrade")
		}
	}()

	engine := similarity.NewEngine(st, models, vectors, log)
	handler := api.NewHandler(
		service.NewCatalogService(st, log),
		service.NewLoanService(st, log),
		service.NewSearchService(st, engine, log),
	)

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           api.NewRouter(handler, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("env", cfg.App.Env).Msg("starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api server stopped unexpectedly")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}

// openStore connects to Postgres, or falls back to the in-memory store when
// no DSN is configured in development.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	if cfg.DB.DSN == "" {
		log.Warn().Msg("LIBRARY_DB_SOURCE not set, using in-memory store")
		return store.NewMemory(), nil
	}
	pg, err := store.NewPostgres(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	log.Info().Int32("max_conns", cfg.DB.MaxConns).Msg("connected to postgres")
	return pg, nil
}
