package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerRenamesStandardKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "dropd", "test", slog.LevelInfo)
	logger.Info("hello", "method", "tranche_create")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "dropd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "dropd", "", ParseLevel("warn"))
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelError, ParseLevel(" error "))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestSetupWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dropd.log")
	logger := SetupWithOptions("dropd", "test", Options{File: FileOptions{Path: path, MaxSizeMB: 1}})
	logger.Info("to file")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "to file")
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("signature", "0xdead").Value.String())
	require.Equal(t, "tranche_claim", MaskField("method", "tranche_claim").Value.String())
	require.Equal(t, "", MaskField("signature", "").Value.String())
	require.Equal(t, RedactedValue, MaskField("from", "0x01").Value.String())
	require.Equal(t, RedactedValue, MaskField("Claimant", "0x01").Value.String())
	require.Equal(t, "100", MaskField("Amount", "100").Value.String())
}

func TestRedactionAllowlist(t *testing.T) {
	keys := RedactionAllowlist()
	require.IsIncreasing(t, keys)
	require.Contains(t, keys, "root")
	for _, sensitive := range []string{"from", "to", "claimant", "recipient", "account", "signature"} {
		require.NotContains(t, keys, sensitive)
		require.False(t, IsAllowlisted(sensitive))
	}
}
