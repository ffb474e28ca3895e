// Package logging builds the zerolog loggers used by the command line tools.
// Libraries never construct loggers; they log through zerolog.Ctx.
package logging

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New returns a logger writing to w at level in format (console or json).
func New(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		var err error
		lvl, err = zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("logging: invalid level %q", level)
		}
	}

	switch strings.ToLower(format) {
	case "", FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("logging: invalid format %q", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// WithRun tags logger with app and a fresh run id and attaches it to ctx.
func WithRun(ctx context.Context, logger zerolog.Logger, app string) (context.Context, zerolog.Logger, string) {
	runID := uuid.NewString()
	l := logger.With().Str("app", app).Str("run", runID).Logger()
	return l.WithContext(ctx), l, runID
}
