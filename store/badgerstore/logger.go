package badgerstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// slogLogger adapts badger's printf-style logger to slog.
type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) log(level slog.Level, format string, args ...any) {
	if s.l == nil || !s.l.Enabled(context.Background(), level) {
		return
	}
	s.l.Log(context.Background(), level, strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (s slogLogger) Errorf(format string, args ...any)   { s.log(slog.LevelError, format, args...) }
func (s slogLogger) Warningf(format string, args ...any) { s.log(slog.LevelWarn, format, args...) }
func (s slogLogger) Infof(format string, args ...any)    { s.log(slog.LevelInfo, format, args...) }
func (s slogLogger) Debugf(format string, args ...any)   { s.log(slog.LevelDebug, format, args...) }
