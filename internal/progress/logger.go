package progress

import (
	"log/slog"

	"github.com/JonMunkholm/heapload/internal/core"
)

// Logger writes progress to a structured logger: every advance at debug
// level and completion at info level.
type Logger struct {
	logger *slog.Logger
	total  int64
}

// NewLogger returns a log sink for a source of total bytes.
func NewLogger(logger *slog.Logger, total int64) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger, total: total}
}

func (l *Logger) Advance(byteOffset int64) {
	l.logger.Debug("progress",
		"byte_offset", byteOffset,
		"total_bytes", l.total,
		"percent", core.Percent(byteOffset, l.total),
	)
}

func (l *Logger) Finish() {
	l.logger.Info("progress complete", "total_bytes", l.total)
}

func (l *Logger) Close() error { return nil }
