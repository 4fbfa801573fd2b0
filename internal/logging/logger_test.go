package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerCarriesRunAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", Output: &buf})
	l.WithRun("run-1").WithPhase("research").Debug("executor turn", "loop_step", 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "run-1", rec["run_id"])
	assert.Equal(t, "research", rec["phase"])
	assert.Equal(t, float64(2), rec["loop_step"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "text", Output: &buf})
	l.Info("dropped")
	assert.Empty(t, buf.String())
	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestSanitizesSecrets(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "text", Output: &buf})
	l.Info("calling provider", "auth", "Bearer abcdefghijklmnopqrstuvwxyz123")
	assert.NotContains(t, buf.String(), "abcdefghijklmnopqrstuvwxyz123")
	assert.Contains(t, buf.String(), "[REDACTED]")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestContextRoundTrip(t *testing.T) {
	l := NewNop().WithMarket("42")
	ctx := IntoContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.Same(t, Default(), FromContext(context.Background()))
}
