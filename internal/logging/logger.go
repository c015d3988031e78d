// Package logging provides structured logging for the transcriptforge CLI
// using slog.
//
// Usage:
//
//	if err := logging.Init(runID); err != nil {
//	    // handle error
//	}
//	defer logging.Close()
//
//	ctx = logging.WithSession(ctx, csvPath)
//	logging.Info(ctx, "session processed", slog.Int("conversations", n))
package logging

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevelEnvVar is the environment variable that controls log level.
const LogLevelEnvVar = "TRANSCRIPTFORGE_LOG_LEVEL"

// LogsDir is the directory where log files are stored, relative to the
// working directory a run was invoked from.
const LogsDir = ".transcriptforge/logs"

var (
	logger *slog.Logger

	logFile      *os.File
	logBufWriter *bufio.Writer

	currentRunID string

	mu sync.RWMutex

	logLevelGetter func() string
)

// SetLogLevelGetter installs a callback used to resolve the log level from
// settings when TRANSCRIPTFORGE_LOG_LEVEL is unset. Call before Init.
func SetLogLevelGetter(getter func() string) {
	mu.Lock()
	defer mu.Unlock()
	logLevelGetter = getter
}

// Init initializes the logger for a run, writing JSON logs to
// .transcriptforge/logs/<run-id>.log. Falls back to stderr if the log file
// cannot be created.
func Init(runID string) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("logging: run ID must not be empty")
	}
	if strings.ContainsAny(runID, "/\\") {
		return fmt.Errorf("logging: run ID must not contain path separators")
	}

	mu.Lock()
	defer mu.Unlock()

	if logBufWriter != nil {
		_ = logBufWriter.Flush()
		logBufWriter = nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	levelStr := os.Getenv(LogLevelEnvVar)
	if levelStr == "" && logLevelGetter != nil {
		levelStr = logLevelGetter()
	}
	level := parseLogLevel(levelStr)

	if levelStr != "" && !isValidLogLevel(levelStr) {
		fmt.Fprintf(os.Stderr, "[transcriptforge] Warning: invalid log level %q, defaulting to INFO\n", levelStr)
	}

	if err := os.MkdirAll(LogsDir, 0o750); err != nil {
		logger = createLogger(os.Stderr, level)
		return nil
	}

	logFilePath := filepath.Join(LogsDir, runID+".log")
	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // runID validated above
	if err != nil {
		logger = createLogger(os.Stderr, level)
		return nil
	}

	logFile = f
	logBufWriter = bufio.NewWriterSize(f, 8192)
	logger = createLogger(logBufWriter, level)
	currentRunID = runID

	return nil
}

// Close closes the log file if one is open, flushing buffered data first.
// Safe to call multiple times.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logBufWriter != nil {
		_ = logBufWriter.Flush()
		logBufWriter = nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	currentRunID = ""
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()

	if logger == nil {
		return slog.Default()
	}
	return logger
}

func getRunID() string {
	mu.RLock()
	defer mu.RUnlock()
	return currentRunID
}

func createLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isValidLogLevel(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR", "":
		return true
	default:
		return false
	}
}

// Debug logs at DEBUG level with context values automatically extracted.
func Debug(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelDebug, msg, attrs...) }

// Info logs at INFO level with context values automatically extracted.
func Info(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelInfo, msg, attrs...) }

// Warn logs at WARN level with context values automatically extracted.
func Warn(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelWarn, msg, attrs...) }

// Error logs at ERROR level with context values automatically extracted.
func Error(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelError, msg, attrs...) }

// LogDuration logs a message with duration_ms computed from start. Intended
// for use with defer:
//
//	defer logging.LogDuration(ctx, slog.LevelInfo, "session processed", time.Now())
func LogDuration(ctx context.Context, level slog.Level, msg string, start time.Time, attrs ...any) {
	durationMs := time.Since(start).Milliseconds()
	allAttrs := make([]any, 0, len(attrs)+1)
	allAttrs = append(allAttrs, slog.Int64("duration_ms", durationMs))
	allAttrs = append(allAttrs, attrs...)
	log(ctx, level, msg, allAttrs...)
}

func log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	l := getLogger()

	var allAttrs []any

	if runID := getRunID(); runID != "" {
		allAttrs = append(allAttrs, slog.String("run_id", runID))
	}

	if ctx != nil {
		if s := SessionIDFromContext(ctx); s != "" {
			allAttrs = append(allAttrs, slog.String("session_id", s))
		}
		if c := ComponentFromContext(ctx); c != "" {
			allAttrs = append(allAttrs, slog.String("component", c))
		}
	}

	allAttrs = append(allAttrs, attrs...)

	l.Log(nil, level, msg, allAttrs...) //nolint:staticcheck // nil context is intentional - values already extracted as attributes
}
