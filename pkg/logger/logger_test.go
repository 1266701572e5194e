package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewLoggers_SplitsOutput(t *testing.T) {
	var info, errs bytes.Buffer
	loggers, err := NewLoggers("info", &info, &errs)
	require.NoError(t, err)

	loggers.InfoLogger.Debug("hidden")
	loggers.InfoLogger.Info("started", "port", 8080)
	loggers.ErrorLogger.Error("failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(info.Bytes(), &entry))
	assert.Equal(t, "started", entry["msg"])
	assert.EqualValues(t, 8080, entry["port"])

	assert.Contains(t, errs.String(), `"msg":"failed"`)
	assert.NotContains(t, info.String(), "hidden")
}
