package logger

import (
	"log/slog"
	"sort"
)

// LoggingConfigSpec defines the logging configuration for Configure.
// It mirrors config.LoggingConfigSpec to avoid an import cycle.
type LoggingConfigSpec struct {
	DefaultLevel string
	Format       string // "json" or "text"
	CommonFields map[string]string
}

// Log format constants.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Configure applies cfg to the global logger. A logger installed with
// SetLogger is preserved.
func Configure(cfg *LoggingConfigSpec) error {
	if cfg == nil {
		return nil
	}

	mu.Lock()
	defer mu.Unlock()

	if customHandler != nil {
		return nil
	}

	level := slog.LevelInfo
	if cfg.DefaultLevel != "" {
		level = ParseLevel(cfg.DefaultLevel)
	}

	// Sorted so the field order in output is stable.
	keys := make([]string, 0, len(cfg.CommonFields))
	for k := range cfg.CommonFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	commonFields := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		commonFields = append(commonFields, slog.String(k, cfg.CommonFields[k]))
	}

	opts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if cfg.Format == FormatJSON {
		base = slog.NewJSONHandler(logOutput, opts)
	} else {
		base = slog.NewTextHandler(logOutput, opts)
	}

	DefaultLogger = slog.New(NewContextHandler(base, commonFields...))
	slog.SetDefault(DefaultLogger)
	return nil
}
