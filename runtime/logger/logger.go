// Package logger provides structured logging with automatic credential redaction.
//
// This package wraps Go's standard log/slog with convenience functions for:
//   - Channel lifecycle and frame logging
//   - Credential refresh logging
//   - Automatic bearer token, JWT and token query-parameter redaction
//   - Contextual logging keyed by conversation, connection and request
//   - Level-based verbosity control
//
// All exported functions use the global DefaultLogger which can be configured
// for different output formats and log levels.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized with slog.LevelInfo by default.
	DefaultLogger *slog.Logger

	// logOutput is where handlers built by this package write.
	logOutput io.Writer = os.Stderr

	// customHandler is set by SetLogger; Configure leaves it alone when present.
	customHandler slog.Handler

	mu sync.Mutex
)

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = ParseLevel(envLevel)
	}

	DefaultLogger = slog.New(NewContextHandler(slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: level,
	})))
}

// ParseLevel converts a level name to a slog.Level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the logging level for all subsequent log operations.
func SetLevel(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	DefaultLogger = slog.New(NewContextHandler(slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: level,
	})))
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// SetLogger replaces the global logger with one built on handler.
// A nil handler restores the default text handler.
func SetLogger(handler slog.Handler) {
	mu.Lock()
	customHandler = handler
	mu.Unlock()

	if handler == nil {
		SetLevel(slog.LevelInfo)
		return
	}

	mu.Lock()
	DefaultLogger = slog.New(NewContextHandler(handler))
	mu.Unlock()
}

// Info logs an informational message with structured key-value attributes.
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context and structured attributes.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context and structured attributes.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context and structured attributes.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context and structured attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// FrameReceived logs one inbound frame at debug level. Only the size and kind
// are recorded; frame text is user content and stays out of the logs.
func FrameReceived(ctx context.Context, kind string, size int) {
	if !DefaultLogger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	DebugContext(ctx, "frame received", "kind", kind, "bytes", size)
}

// ProtocolViolation logs a discarded frame. It is a warning, never an error:
// the stream continues.
func ProtocolViolation(ctx context.Context, reason string, attrs ...any) {
	allAttrs := make([]any, 0, 2+len(attrs))
	allAttrs = append(allAttrs, "reason", reason)
	allAttrs = append(allAttrs, attrs...)
	WarnContext(ctx, "protocol violation, frame discarded", allAttrs...)
}

// RefreshAttempt logs the outcome of a credential refresh exchange.
func RefreshAttempt(ctx context.Context, endpoint string, err error, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs, "endpoint", RedactSensitiveData(endpoint))
	allAttrs = append(allAttrs, attrs...)
	if err != nil {
		allAttrs = append(allAttrs, "error", RedactSensitiveData(err.Error()))
		WarnContext(ctx, "credential refresh failed", allAttrs...)
		return
	}
	InfoContext(ctx, "credential refreshed", allAttrs...)
}

var (
	// sensitivePatterns detect credentials that must never reach a log line.
	sensitivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`Bearer\s+[A-Za-z0-9_\-.=]+`),
		regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`),
		regexp.MustCompile(`((?:access_|refresh_)?token=)[^&\s"]+`),
	}
)

// RedactSensitiveData removes bearer tokens, JWTs and token query/form values
// from input.
//
//   - "Bearer xyz" becomes "Bearer [REDACTED]"
//   - a JWT becomes "eyJ...[REDACTED]"
//   - "token=xyz" (also access_token=, refresh_token=) keeps the key and redacts the value
func RedactSensitiveData(input string) string {
	result := sensitivePatterns[0].ReplaceAllString(input, "Bearer [REDACTED]")
	result = sensitivePatterns[1].ReplaceAllString(result, "eyJ...[REDACTED]")
	result = sensitivePatterns[2].ReplaceAllString(result, "${1}[REDACTED]")
	return result
}
