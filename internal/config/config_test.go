package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalYAML = `
telegram:
  token: "123:abc"
ingest:
  secret: "s3cret"
`

func TestParseAndDefaults(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	cfg, err := Parse(path)
	require.NoError(t, err)
	cfg.WithDefaults()
	require.NoError(t, cfg.Validate())

	require.Equal(t, "123:abc", cfg.Telegram.Token)
	require.Equal(t, ":3000", cfg.Ingest.Addr)
	require.Equal(t, "./sniper.db", cfg.Feeds.Path)
	require.Equal(t, 20, cfg.Feeds.Max)
	require.Equal(t, "2s", cfg.Limits.CommandCooldown)
	require.Equal(t, "0s", cfg.Dedup.Window)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestUnknownFieldRejected(t *testing.T) {
	path := writeConfig(t, minimalYAML+`
unknown_section:
  x: 1
`)
	_, err := Parse(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-token")
	t.Setenv("SECRET_KEY", "env-secret")

	path := writeConfig(t, `
telegram:
  token: "file-token"
ingest:
  secret: "file-secret"
`)
	cfg, err := Parse(path)
	require.NoError(t, err)
	require.Equal(t, "env-token", cfg.Telegram.Token)
	require.Equal(t, "env-secret", cfg.Ingest.Secret)
}

func TestValidateMissingSecrets(t *testing.T) {
	cfg := (&Config{}).WithDefaults()
	require.Error(t, cfg.Validate())

	cfg.Telegram.Token = "t"
	require.Error(t, cfg.Validate())

	cfg.Ingest.Secret = "s"
	require.NoError(t, cfg.Validate())
}

func TestValidateBadDuration(t *testing.T) {
	cfg := (&Config{}).WithDefaults()
	cfg.Telegram.Token = "t"
	cfg.Ingest.Secret = "s"
	cfg.Limits.CommandCooldown = "soon"
	require.Error(t, cfg.Validate())
}

func TestParseDurationField(t *testing.T) {
	d, err := ParseDurationField("k", "2s")
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, d)

	d, err = ParseDurationField("k", "")
	require.NoError(t, err)
	require.Zero(t, d)

	_, err = ParseDurationField("k", "-1s")
	require.Error(t, err)
}

func TestManagerLoadAndGet(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	m := NewManager(path)
	cfg, err := m.Load()
	require.NoError(t, err)
	require.Same(t, cfg, m.Get())
}
