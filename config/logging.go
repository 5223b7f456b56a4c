package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// ParseLogLevel converts a case-insensitive string to an [slog.Level].
//
// Accepted values: "debug", "info" (or empty), "warn"/"warning", "error".
// Returns an error for anything else; leading and trailing whitespace is
// trimmed before matching.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", s)
	}
}
