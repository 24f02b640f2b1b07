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

func TestBuildRenamesCoreKeys(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := build(&buf, Options{Service: "ledgerd", Env: "test"})
	logger.Info("pool updated", slog.String("operation", "stake"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "pool updated", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "ledgerd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestSetupWithFileRotation(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "ledgerd.log")
	logger, closer := SetupWithOptions(Options{Service: "ledgerd", File: path, Level: "debug"})
	logger.Debug("debug line")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "debug line")
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("dsn", "postgres://user:pw@db/ledger").Value.String())
	require.Equal(t, "stake", MaskField("operation", "stake").Value.String())
	require.Equal(t, "", MaskField("secret", "").Value.String())
	require.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestHandlerRedactsCredentials(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := build(&buf, Options{Service: "ledgerd"})
	logger.Info("configured",
		slog.String("hmac_secret", "0123456789abcdef"),
		slog.String("audit_dsn", "postgres://u:p@db/ledger"),
		slog.String("account", "gk1xyz"),
		slog.String("access_token", ""))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, RedactedValue, line["hmac_secret"])
	require.Equal(t, RedactedValue, line["audit_dsn"])
	require.Equal(t, "gk1xyz", line["account"])
	require.Equal(t, "", line["access_token"])
}

func TestIsSensitive(t *testing.T) {
	require.True(t, IsSensitive("Authorization"))
	require.True(t, IsSensitive("keystore_passphrase"))
	require.False(t, IsSensitive("operation"))
}
