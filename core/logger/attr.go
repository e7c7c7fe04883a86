package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// Returns an empty Attr for nil errors, enabling safe usage without nil checks.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Duration creates an attribute for a duration.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Elapsed calculates and logs the duration since the start time.
func Elapsed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}

// Component identifies the subsystem emitting the record, e.g. "channel_layer"
// or "delay_dispatcher".
func Component(name string) slog.Attr {
	if name == "" {
		return slog.Attr{}
	}
	return slog.String("component", name)
}

// Channel creates an attribute for a channel name.
func Channel(name string) slog.Attr {
	if name == "" {
		return slog.Attr{}
	}
	return slog.String("channel", name)
}

// Group creates an attribute for a group name.
func Group(name string) slog.Attr {
	if name == "" {
		return slog.Attr{}
	}
	return slog.String("group", name)
}

// Count creates a generic counter attribute with a custom key.
func Count(key string, n int) slog.Attr {
	return slog.Int(key, n)
}
