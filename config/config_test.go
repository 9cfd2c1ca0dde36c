package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleYAML = `
environment: production
relay:
  name: testrelay
  secret_key: c2VjcmV0
  listen_addr: ":7071"
  period: 1h
  initial_ttl: 4
peers:
  - public_key: peerkey1
    endpoint: http://peer1.example:7070
    nickname: one
  - public_key: peerkey2
poem:
  mode: loop
  lines:
    - first line
    - second line
archive:
  backend: postgres
  postgres:
    host: db.example
    user: relay
    password: ${RELAY_TEST_DB_PASSWORD:fallback}
    database: relay
`

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", sampleYAML)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	require.Equal(t, "production", cfg.Environment)
	require.Equal(t, "testrelay", cfg.Relay.Name)
	require.Equal(t, ":7071", cfg.Relay.ListenAddr)
	require.Equal(t, time.Hour, cfg.Relay.Period)
	require.Equal(t, uint8(4), cfg.Relay.InitialTTL)

	// Unset fields pick up defaults.
	require.Equal(t, uint8(8), cfg.Relay.MaxForwardingTTL)
	require.NotNil(t, cfg.Relay.SendOnMinute)
	require.Equal(t, 0, *cfg.Relay.SendOnMinute)
	require.Equal(t, 5432, cfg.Archive.Postgres.Port)
	require.Equal(t, "disable", cfg.Archive.Postgres.SSLMode)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestEnvSubstitution(t *testing.T) {
	t.Setenv("RELAY_TEST_DB_PASSWORD", "hunter2")

	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", sampleYAML)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	SubstituteEnvVarsInConfig(cfg)
	require.Equal(t, "hunter2", cfg.Archive.Postgres.Password)
}

func TestEnvSubstitutionDefault(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", sampleYAML)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	SubstituteEnvVarsInConfig(cfg)
	require.Equal(t, "fallback", cfg.Archive.Postgres.Password)
}

func TestLoaderChainPrefersEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "default.yaml", sampleYAML)
	writeConfig(t, dir, "staging.yaml", `
relay:
  name: staging-relay
  secret_key: c2VjcmV0
peers:
  - public_key: peerkey1
`)

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging"})
	require.NoError(t, err)
	require.Equal(t, "staging-relay", cfg.Relay.Name)
}

func TestLoaderEnvOverrides(t *testing.T) {
	t.Setenv("RELAY_LISTEN_ADDR", ":9999")
	t.Setenv("RELAY_LOG_LEVEL", "debug")

	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", sampleYAML)

	cfg, err := Load(LoaderOptions{ConfigDir: dir})
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Relay.ListenAddr)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsMissingSecretKey(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	errs := ValidateConfiguration(cfg)
	found := false
	for _, e := range errs {
		if e.Field == "relay.secret_key" && e.Level == "error" {
			found = true
		}
	}
	require.True(t, found)
}

func TestValidateRejectsBadPoemMode(t *testing.T) {
	cfg := &Config{
		Relay: &RelayConfig{SecretKey: "x"},
		Poem:  &PoemConfig{Mode: "shuffle"},
	}
	setDefaults(cfg)

	errs := ValidateConfiguration(cfg)
	found := false
	for _, e := range errs {
		if e.Field == "poem.mode" {
			found = true
		}
	}
	require.True(t, found)
}

func TestValidateRejectsOutOfRangeSendOnMinute(t *testing.T) {
	minute := 75
	cfg := &Config{Relay: &RelayConfig{SecretKey: "x", SendOnMinute: &minute}}
	setDefaults(cfg)

	errs := ValidateConfiguration(cfg)
	found := false
	for _, e := range errs {
		if e.Field == "relay.send_on_minute" {
			found = true
		}
	}
	require.True(t, found)
}

func TestValidateWarnsOnNoPeers(t *testing.T) {
	cfg := &Config{Relay: &RelayConfig{SecretKey: "x"}}
	setDefaults(cfg)

	for _, e := range ValidateConfiguration(cfg) {
		if e.Field == "peers" {
			require.Equal(t, "warning", e.Level)
			return
		}
	}
	t.Fatal("expected a peers warning")
}
