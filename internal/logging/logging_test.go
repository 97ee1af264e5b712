package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestFromContextReturnsDefaultWhenUnset(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("expected a non-nil default logger")
	}
}

func TestWithLoggerRoundTrips(t *testing.T) {
	want := NewLogger("debug")
	ctx := WithLogger(context.Background(), want)
	got := FromContext(ctx)
	if got != want {
		t.Fatal("expected FromContext to return the logger stored by WithLogger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
