package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Output: &buf})

	l.Info().Msg("dropped")
	l.Warn().Str("component", "narrative").Msg("Using rule-based digest")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "narrative", entry["component"])
	assert.Equal(t, "Using rule-based digest", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNew_DefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "nonsense", Output: &buf})
	l.Debug().Msg("hidden")
	l.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Format: "console", Output: &buf})
	l.Info().Int("day", 18).Msg("Built digest")
	assert.Contains(t, buf.String(), "Built digest")
	assert.Contains(t, buf.String(), "day=")
}
