package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelWarn},
		{"verbose", slog.LevelWarn},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestColorHandlerRendersAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: slog.LevelDebug, Output: &buf})

	log.With("component", "dispatch").WithGroup("chunk").Info("sent", "index", 2, "note", "two words")

	line := buf.String()
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "sent")
	assert.Contains(t, line, "component=dispatch")
	assert.Contains(t, line, "chunk.index=2")
	assert.Contains(t, line, `chunk.note="two words"`)
	assert.False(t, strings.Contains(line, colorGreen), "colour disabled by default in Config")
}

func TestColorHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: slog.LevelWarn, Output: &buf, Color: true})

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), colorYellow+"")
	assert.Contains(t, buf.String(), "shown")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: slog.LevelInfo, Format: "json", Output: &buf})
	log.Info("scored", "groups", 4)
	assert.Contains(t, buf.String(), `"msg":"scored"`)
	assert.Contains(t, buf.String(), `"groups":4`)
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))
	l := slog.Default()
	assert.Same(t, l, OrDiscard(l))
}
