// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Options struct {
	Service string
	Level   string
	// Format is "json" or "console".
	Format string
	Output io.Writer
}

func New(opts Options) zerolog.Logger {
	var out io.Writer = opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	return zerolog.New(out).
		With().
		Timestamp().
		Str("service", opts.Service).
		Logger().
		Level(ParseLevel(opts.Level))
}

func ParseLevel(value string) zerolog.Level {
	s := strings.ToLower(strings.TrimSpace(value))
	if s == "" {
		return zerolog.InfoLevel
	}
	if lvl, err := zerolog.ParseLevel(s); err == nil {
		return lvl
	}
	return zerolog.InfoLevel
}
