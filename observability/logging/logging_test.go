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

func TestJSONHandlerRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, Config{Level: "debug"}))
	logger.Debug("pool settled", "height", 12)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "pool settled", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Contains(t, line, "timestamp")
	require.EqualValues(t, 12, line["height"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel(" error "))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestSetupWritesRotatedFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "farmd.log")
	logger, closer := Setup(Config{Service: "farmd", Env: "test", File: path, MaxSizeMB: 1})
	logger.Info("started", "hmac_secret", "secret", "stake_token", "LP")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"service":"farmd"`)
	require.Contains(t, string(data), RedactedValue)
	require.NotContains(t, string(data), `"secret"`)
	require.Contains(t, string(data), `"stake_token":"LP"`)
}

func TestSensitiveKeys(t *testing.T) {
	for key, want := range map[string]bool{
		"Authorization": true,
		"hmac_secret":   true,
		"index_dsn":     true,
		"jwt_token":     true,
		"token":         false,
		"reward_token":  false,
		"caller":        false,
		"error":         false,
	} {
		require.Equal(t, want, Sensitive(key), key)
	}

	require.Equal(t, RedactedValue, redactAttr(nil, slog.String("authorization", "Bearer x")).Value.String())
	require.Equal(t, "", redactAttr(nil, slog.String("authorization", "")).Value.String())
	require.Equal(t, "boom", redactAttr(nil, slog.String("error", "boom")).Value.String())
}
