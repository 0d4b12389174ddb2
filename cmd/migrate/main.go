package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/punchamoorthee/libraryops/internal/config"
	"github.com/punchamoorthee/libraryops/internal/logging"
	"github.com/punchamoorthee/libraryops/migrations"
)

func main() {
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|redo|reset")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		boot := logging.New(logging.Options{Service: "migrate"})
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	log := logging.New(logging.Options{
		Service: "migrate",
		Level:   cfg.App.LogLevel,
		Format:  cfg.App.LogFormat,
	})
	if cfg.DB.DSN == "" {
		log.Fatal().Msg("LIBRARY_DB_SOURCE is required for migrations")
	}

	db, err := openDB(cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid database DSN")
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("error closing database")
		}
	}(db)

	ctx := context.Background()
	if err := migrations.Run(ctx, db, *cmd, flag.Args()...); err != nil {
		log.Error().Err(err).Str("cmd", *cmd).Msg("migration failed")
		os.Exit(1)
	}
	log.Info().Str("cmd", *cmd).Msg("migration complete")
}

// openDB wraps the pgx driver in a database/sql handle for goose. It does not
// connect until the first query.
func openDB(dsn string) (*sql.DB, error) {
	pgCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	return stdlib.OpenDB(*pgCfg), nil
}
