package vecsearch

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger is the slog.Logger used by a DB and its collections. Every
// operation logs one record on completion: failures at error level, the
// rest at info or debug depending on how often they run.
type Logger struct {
	*slog.Logger
}

// NewLogger returns a Logger writing to handler, or text to stderr at info
// level when handler is nil.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithCollection tags every record with the collection name.
func (l *Logger) WithCollection(name string) *Logger {
	return &Logger{Logger: l.With(slog.String("collection", name))}
}

// finish logs msg+" completed" at level, or msg+" failed" at error level
// when err is set.
func (l *Logger) finish(ctx context.Context, level slog.Level, msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		l.LogAttrs(ctx, slog.LevelError, msg+" failed", append(attrs, slog.Any("error", err))...)
		return
	}
	l.LogAttrs(ctx, level, msg+" completed", attrs...)
}

func (l *Logger) LogIngest(ctx context.Context, inserted, skipped int, err error) {
	if err == nil && skipped > 0 {
		l.LogAttrs(ctx, slog.LevelWarn, "ingest completed with rejections",
			slog.Int("inserted", inserted), slog.Int("skipped", skipped))
		return
	}
	l.finish(ctx, slog.LevelInfo, "ingest", err, slog.Int("inserted", inserted))
}

func (l *Logger) LogQuery(ctx context.Context, k, found int, err error) {
	l.finish(ctx, slog.LevelDebug, "query", err, slog.Int("k", k), slog.Int("results", found))
}

func (l *Logger) LogDelete(ctx context.Context, requested, removed int, err error) {
	l.finish(ctx, slog.LevelDebug, "delete", err, slog.Int("requested", requested), slog.Int("removed", removed))
}

func (l *Logger) LogRebuild(ctx context.Context, records int, elapsed time.Duration, err error) {
	l.finish(ctx, slog.LevelInfo, "index rebuild", err, slog.Int("records", records), slog.Duration("elapsed", elapsed))
}

func (l *Logger) LogSnapshot(ctx context.Context, name string, size int, err error) {
	l.finish(ctx, slog.LevelInfo, "snapshot", err, slog.String("name", name), slog.Int("bytes", size))
}
