package log

import (
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a configuration string onto a slog level. Unknown
// values resolve to Info so a typo never silences the process.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs the process-wide text logger at the given level and
// returns it scoped to the app component.
func Setup(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	slog.SetDefault(slog.New(handler))
	return ForComponent(ComponentApp)
}

// ForComponent returns the default logger with a component attribute.
func ForComponent(name string) *slog.Logger {
	return slog.Default().With(FieldComponent, name)
}
