// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture swaps in a logger writing to a buffer and restores the previous one.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()

	previous := Get()
	t.Cleanup(func() { Set(previous) })

	var buf bytes.Buffer
	Set(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return &buf
}

func TestLogLevels(t *testing.T) {
	buf := capture(t)

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	assert.Equal(t, 4, lines)
	assert.Contains(t, buf.String(), "debug message")
	assert.Contains(t, buf.String(), "error message")
}

func TestFormattedAndStructuredVariants(t *testing.T) {
	buf := capture(t)

	Infof("count is %d", 42)
	Infow("structured", "key", "value")

	decoder := json.NewDecoder(buf)

	var first map[string]any
	require.NoError(t, decoder.Decode(&first))
	assert.Equal(t, "count is 42", first["msg"])

	var second map[string]any
	require.NoError(t, decoder.Decode(&second))
	assert.Equal(t, "structured", second["msg"])
	assert.Equal(t, "value", second["key"])
}

func TestUnstructuredLogsEnv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"unset defaults to text", "", true},
		{"explicit true", "true", true},
		{"explicit false", "false", false},
		{"garbage defaults to text", "not-a-bool", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(string) string { return tt.value }
			assert.Equal(t, tt.want, unstructuredLogs(getenv))
		})
	}
}

func TestInitializeWithGetenvReplacesSingleton(t *testing.T) {
	previous := Get()
	t.Cleanup(func() { Set(previous) })

	InitializeWithGetenv(func(string) string { return "true" })
	assert.NotNil(t, Get())
	assert.NotSame(t, previous, Get())
}
