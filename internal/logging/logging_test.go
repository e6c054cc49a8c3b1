package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestNew_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := New(Options{Level: slog.LevelWarn, Console: &buf, NoColor: true})
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("form failed", "study", "parabola")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "form failed")
	assert.Contains(t, out, "study=parabola")
}

func TestNew_FileFanout(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "formctl.log")
	opts := DefaultOptions()
	opts.Console = &buf
	opts.NoColor = true
	opts.Level = slog.LevelDebug
	opts.File = path

	logger, closer := New(opts)
	logger.With("study", "linear").WithGroup("result").Info("form converged", "beta", 2.4)
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), "form converged")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "form converged", rec["msg"])
	assert.Equal(t, "linear", rec["study"])
	assert.Equal(t, map[string]any{"beta": 2.4}, rec["result"])
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.False(t, logger.Enabled(t.Context(), slog.LevelError))
}
