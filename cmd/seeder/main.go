package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/punchamoorthee/libraryops/internal/config"
	"github.com/punchamoorthee/libraryops/internal/logging"
	"github.com/punchamoorthee/libraryops/internal/service"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()

	file := flag.String("file", "", "JSON array of books to load; synthetic books are generated when empty")
	books := flag.Int("books", 200, "number of synthetic books")
	copies := flag.Int("copies", 3, "copies per synthetic book")
	students := flag.Int("students", 1000, "number of student profiles")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		boot := logging.New(logging.Options{Service: "seeder"})
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	log := logging.New(logging.Options{Service: "seeder", Level: cfg.App.LogLevel, Format: cfg.App.LogFormat})
	if cfg.DB.DSN == "" {
		log.Fatal().Msg("LIBRARY_DB_SOURCE is required for seeding")
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to database")
	}
	defer conn.Close(ctx)

	log.Info().Msg("seeding database")

	var count int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM books").Scan(&count); err != nil {
		log.Fatal().Err(err).Msg("counting books")
	}
	if count > 0 {
		log.Info().Int("books", count).Msg("catalog already populated, skipping")
		return
	}

	var catalog []service.NewBook
	if *file != "" {
		catalog, err = readBooks(*file)
		if err != nil {
			log.Fatal().Err(err).Str("file", *file).Msg("reading books")
		}
	} else {
		catalog = syntheticBooks(*books, *copies)
	}

	if err := seedBooks(ctx, conn, catalog, log); err != nil {
		log.Fatal().Err(err).Msg("bulk insert of books failed")
	}
	if err := seedStudents(ctx, conn, *students, log); err != nil {
		log.Fatal().Err(err).Msg("bulk insert of students failed")
	}
}

func readBooks(path string) ([]service.NewBook, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var books []service.NewBook
	if err := json.Unmarshal(raw, &books); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	for i := range books {
		if err := service.Validate(books[i]); err != nil {
			return nil, fmt.Errorf("book %d: %w", i, err)
		}
	}
	return books, nil
}

var topics = []struct{ subject, tags string }{
	{"Machine Learning", "ai,statistics,computing"},
	{"Medieval History", "history,europe"},
	{"Organic Chemistry", "chemistry,science"},
	{"Gardening", "plants,outdoors,hobby"},
	{"Distributed Systems", "computing,networks"},
	{"Poetry", "literature,verse"},
	{"Astronomy", "space,science,physics"},
	{"Economics", "markets,policy"},
}

func syntheticBooks(n, copies int) []service.NewBook {
	out := make([]service.NewBook, 0, n)
	for i := 0; i < n; i++ {
		t := topics[i%len(topics)]
		out = append(out, service.NewBook{
			Title:       fmt.Sprintf("%s Volume %d", t.subject, i/len(topics)+1),
			Author:      fmt.Sprintf("Author %d", i%37+1),
			ISBN:        fmt.Sprintf("979%010d", i+1),
			Description: fmt.Sprintf("An introduction to %s.", t.subject),
			Tags:        t.tags,
			Category:    t.subject,
			TotalCopies: copies,
		})
	}
	return out
}

func seedBooks(ctx context.Context, conn *pgx.Conn, books []service.NewBook, log zerolog.Logger) error {
	now := time.Now()
	rows := make([][]any, 0, len(books))
	for _, b := range books {
		rows = append(rows, []any{
			b.Title, b.Author, b.ISBN, b.Description, b.Tags, b.Category,
			b.TotalCopies, b.TotalCopies, b.CoverURL, now,
		})
	}

	n, err := conn.CopyFrom(ctx,
		pgx.Identifier{"books"},
		[]string{"title", "author", "isbn", "description", "tags", "category", "total_copies", "available_copies", "cover_url", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return err
	}
	log.Info().Int64("rows", n).Msg("seeded books")
	return nil
}

func seedStudents(ctx context.Context, conn *pgx.Conn, n int, log zerolog.Logger) error {
	now := time.Now()
	majors := []string{"Computer Science", "History", "Chemistry", "Literature", "Economics"}
	i := 0
	copied, err := conn.CopyFrom(ctx,
		pgx.Identifier{"student_profiles"},
		[]string{"user_id", "academic_id", "major", "created_at"},
		pgx.CopyFromFunc(func() ([]any, error) {
			if i >= n {
				return nil, nil
			}
			i++
			return []any{int64(i), fmt.Sprintf("S%07d", i), majors[i%len(majors)], now}, nil
		}),
	)
	if err != nil {
		return err
	}
	log.Info().Int64("rows", copied).Msg("seeded students")
	return nil
}
