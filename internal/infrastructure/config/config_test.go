package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
imap:
  host: imap.example.org
  username: payments@example.org
  password: hunter2
  processed_folder: Reconciled
  sender_filter: notify@payments.interac.ca
  dial_timeout: 15s
matching:
  threshold: 90
  runner_up_margin: 10
scan:
  poll_interval: 5m
  allowed_senders:
    - notify@payments.interac.ca
storage:
  database_path: reconciler.db
`

	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "imap.example.org", cfg.IMAP.Host)
	assert.Equal(t, 993, cfg.IMAP.Port) // defaulted
	assert.Equal(t, "Reconciled", cfg.IMAP.ProcessedFolder)
	assert.Equal(t, 15*time.Second, cfg.IMAP.DialTimeout)
	assert.Equal(t, 90, cfg.Matching.Threshold)
	assert.Equal(t, 10, cfg.Matching.RunnerUpMargin)
	assert.Equal(t, "CAD", cfg.Matching.Currency) // defaulted
	assert.Equal(t, 5*time.Minute, cfg.Scan.PollInterval)
	assert.Equal(t, []string{"notify@payments.interac.ca"}, cfg.Scan.AllowedSenders)
	assert.Equal(t, "reconciler.db", cfg.Storage.DatabasePath)
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("IMAP_HOST", "imap.test.example")
	os.Setenv("IMAP_USERNAME", "box@test.example")
	os.Setenv("IMAP_PASSWORD", "secret")
	os.Setenv("RECONCILER_DB_PATH", "test.db")
	os.Setenv("SCAN_ALLOWED_SENDERS", "a@bank.example, b@bank.example")
	defer func() {
		os.Unsetenv("IMAP_HOST")
		os.Unsetenv("IMAP_USERNAME")
		os.Unsetenv("IMAP_PASSWORD")
		os.Unsetenv("RECONCILER_DB_PATH")
		os.Unsetenv("SCAN_ALLOWED_SENDERS")
	}()

	cfg := LoadFromEnv()
	assert.Equal(t, "imap.test.example", cfg.IMAP.Host)
	assert.Equal(t, "box@test.example", cfg.IMAP.Username)
	assert.Equal(t, "secret", cfg.IMAP.Password)
	assert.Equal(t, "test.db", cfg.Storage.DatabasePath)
	assert.Equal(t, []string{"a@bank.example", "b@bank.example"}, cfg.Scan.AllowedSenders)
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	os.Unsetenv("RECONCILER_DB_PATH")
	os.Unsetenv("MATCH_THRESHOLD")

	cfg := LoadFromEnv()
	assert.Equal(t, "reconciler.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 85, cfg.Matching.Threshold)
	assert.Equal(t, 5, cfg.Matching.RunnerUpMargin)
	assert.Equal(t, "CAD", cfg.Matching.Currency)
	assert.Equal(t, 993, cfg.IMAP.Port)
	assert.Equal(t, "Processed", cfg.IMAP.ProcessedFolder)
	assert.Equal(t, ":8080", cfg.API.ListenAddr)
}

func TestLoadOrEnv_FallbackToEnv(t *testing.T) {
	os.Setenv("RECONCILER_DB_PATH", "fallback.db")
	defer os.Unsetenv("RECONCILER_DB_PATH")

	cfg := LoadOrEnvWithPath("nonexistent.yaml")
	assert.Equal(t, "fallback.db", cfg.Storage.DatabasePath)
}

func TestEnvVarExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
imap:
  host: imap.example.org
  username: payments@example.org
  password: "${TEST_IMAP_PASSWORD}"
`

	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	os.Setenv("TEST_IMAP_PASSWORD", "expanded-secret")
	defer os.Unsetenv("TEST_IMAP_PASSWORD")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "expanded-secret", cfg.IMAP.Password)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := LoadFromEnv()
		cfg.IMAP.Host = "imap.example.org"
		cfg.IMAP.Username = "u"
		cfg.IMAP.Password = "p"
		return cfg
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.IMAP.Host = ""
	err := cfg.Validate()
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "imap.host", cerr.Field)

	cfg = valid()
	cfg.Matching.Threshold = 150
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Matching.Currency = "CANADIAN"
	assert.Error(t, cfg.Validate())
}
