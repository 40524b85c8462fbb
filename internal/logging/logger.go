package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type Options struct {
	Development bool
	// Level is a zerolog level name. Empty means debug in development and
	// info otherwise.
	Level   string
	Service string
	Output  io.Writer
}

var logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Init configures the process-wide logger. Development mode writes
// human-readable lines with caller information, otherwise JSON.
func Init(opts Options) error {
	level := zerolog.InfoLevel
	if opts.Development {
		level = zerolog.DebugLevel
	}
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Development {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339

	lc := zerolog.New(out).Level(level).With().Timestamp()
	if opts.Development {
		lc = lc.Caller()
	}
	if opts.Service != "" {
		lc = lc.Str("service", opts.Service)
	}
	logger = lc.Logger()
	return nil
}

func Logger() *zerolog.Logger {
	return &logger
}

// WithContext returns the logger annotated with the active span, if any.
func WithContext(ctx context.Context) zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}

	return logger.With().
		Str("traceId", sc.TraceID().String()).
		Str("spanId", sc.SpanID().String()).
		Logger()
}

func Info(ctx context.Context) *zerolog.Event  { return event(ctx, zerolog.InfoLevel) }
func Warn(ctx context.Context) *zerolog.Event  { return event(ctx, zerolog.WarnLevel) }
func Error(ctx context.Context) *zerolog.Event { return event(ctx, zerolog.ErrorLevel) }
func Debug(ctx context.Context) *zerolog.Event { return event(ctx, zerolog.DebugLevel) }

func event(ctx context.Context, level zerolog.Level) *zerolog.Event {
	l := WithContext(ctx)
	return l.WithLevel(level)
}
