package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the application logger: JSON lines to a rotating file plus
// stdout. Callers receive the instance and inject it; there is no package
// global.
func New(level, dir string) *slog.Logger {
	_ = os.MkdirAll(dir, 0755)

	fileWriter := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "bot.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	handler := slog.NewJSONHandler(io.MultiWriter(os.Stdout, fileWriter), opts)
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
