package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewLogger_NotNil verifies that NewLogger returns a non-nil *Logger.
func TestNewLogger_NotNil(t *testing.T) {
	l := NewLogger("test")
	require.NotNil(t, l)
}

// TestNewLogger_ComponentField verifies that every log entry produced by a
// logger created with NewLogger contains the expected "component" field.
func TestNewLogger_ComponentField(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("scheduler")
	// redirect output to buffer for inspection
	l.Logger = l.Output(&buf)

	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scheduler", entry["component"])
}

// TestNewLogger_ContainsTimestamp verifies that log entries contain a timestamp field.
func TestNewLogger_ContainsTimestamp(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("ts-check")
	l.Logger = l.Output(&buf)

	l.Info().Msg("ts check")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, hasTime := entry["time"]
	assert.True(t, hasTime, "expected 'time' field in log entry")
}

func TestWithContainer_AddsContainerID(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("pool")
	l.Logger = l.Output(&buf)

	l.WithContainer("c1").Info().Msg("scoped")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "c1", entry["container_id"])
	assert.Equal(t, "pool", entry["component"])
}

func TestNop_ProducesNoOutput(t *testing.T) {
	l := Nop()
	require.NotNil(t, l)
	l.Error().Msg("discarded")
}
