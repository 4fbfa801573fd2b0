package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParsePositions(t *testing.T) {
	got, err := parsePositions([]string{"tok-a=10", " tok-b = 2.5 ", "tok-a=1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"tok-a": 11, "tok-b": 2.5}, got)
	assert.Equal(t, "tok-a=11, tok-b=2.5", formatPositions(got))
	assert.Equal(t, "none", formatPositions(nil))

	for _, bad := range []string{"tok", "=3", "tok=", "tok=abc", "tok=-1"} {
		_, err := parsePositions([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestValidateMarketID(t *testing.T) {
	assert.NoError(t, ValidateMarketID("253591"))
	assert.NoError(t, ValidateMarketID("0x"+strings.Repeat("ab", 32)))
	assert.Error(t, ValidateMarketID(""))
	assert.Error(t, ValidateMarketID("will-it-rain"))
	assert.Error(t, ValidateMarketID("0x1234"))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "PolyCortex")
}

func TestConfigShowMasksSecrets(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-1234567890abcdef")
	out, err := execute(t, "--config-dir", t.TempDir(), "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-1234567890abcdef")

	body := out[strings.Index(out, "{"):]
	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &cfg))
	assert.EqualValues(t, 6, cfg["max_loops"])
}

func TestHistoryOnEmptyStore(t *testing.T) {
	out, err := execute(t, "--config-dir", t.TempDir(), "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs")
}

func TestShowUnknownRun(t *testing.T) {
	_, err := execute(t, "--config-dir", t.TempDir(), "show", "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestRunRejectsBadPosition(t *testing.T) {
	_, err := execute(t, "--config-dir", t.TempDir(), "run", "123", "--position", "oops")
	assert.ErrorContains(t, err, "TOKEN_ID=SIZE")
}

func TestConfigSetMergesPatch(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "--config-dir", dir, "config", "set", `{"orderbook_depth": 4}`)
	require.NoError(t, err)
	assert.Contains(t, out, "orderbook_depth")

	out, err = execute(t, "--config-dir", dir, "config", "set", `{"orderbook_depth": 4}`)
	require.NoError(t, err)
	assert.Contains(t, out, "No changes")

	_, err = execute(t, "--config-dir", dir, "config", "set", `{"max_loops": 0}`)
	assert.Error(t, err)
}

func TestRunRejectsMalformedMarketID(t *testing.T) {
	_, err := execute(t, "--config-dir", t.TempDir(), "run", "will-it-rain")
	assert.ErrorContains(t, err, "invalid market id")
}

func TestRunRejectsNonFiniteAmounts(t *testing.T) {
	for _, args := range [][]string{
		{"run", "123", "--funds", "Inf"},
		{"run", "123", "--funds", "NaN"},
		{"run", "123", "--position", "tok=NaN"},
		{"run", "123", "--position", "tok=+Inf"},
	} {
		_, err := execute(t, append([]string{"--config-dir", t.TempDir()}, args...)...)
		assert.ErrorContains(t, err, "finite", args)
	}
}
