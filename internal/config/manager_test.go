package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
telegram:
  admin_chat_id: -100123
  require_mention: true
logging:
  level: debug
  console: true
reminders:
  file: ./data/reminders.json
checks:
  enabled: true
  timezone: UTC
  rent: { enabled: true }
  payers:
    enabled: true
    parties:
      - name: Marco
      - name: Luis Miguel
        match: luis miguel
notifier:
  workers: 2
  retry_base: 500ms
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadYAMLWithSecretsAndDefaults(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", sampleYAML)
	m := NewManager(path, Secrets{TelegramToken: "tok", BankToken: "bank", AccountID: "acc"})

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.Telegram.Token)
	assert.Equal(t, int64(-100123), cfg.Telegram.AdminChatID)
	assert.Equal(t, "acc", cfg.Bank.AccountID)
	assert.Equal(t, DefaultBankBaseURL, cfg.Bank.BaseURL)
	assert.Equal(t, "09:05", cfg.Checks.Rent.At)
	assert.Equal(t, 10, cfg.Checks.Rent.LookbackDays)
	assert.Equal(t, 800.0, cfg.Checks.Rent.Threshold)
	assert.Equal(t, "09:00", cfg.Checks.Payers.At)
	assert.Equal(t, 20, cfg.Checks.Payers.LookbackDays)
	require.Len(t, cfg.Checks.Payers.Parties, 2)
	assert.Equal(t, "Marco", cfg.Checks.Payers.Parties[0].Match)
	assert.Equal(t, "luis miguel", cfg.Checks.Payers.Parties[1].Match)
	assert.Same(t, cfg, m.Get())
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.json", `{"telegram":{"token":"x","bogus":1}}`)
	_, err := NewManager(path, Secrets{}).Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.json", `{"telegram":{"token":"x"}}{}`)
	_, err := NewManager(path, Secrets{}).Parse()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = "" }, wantErr: "telegram.token"},
		{name: "bad clock", mutate: func(c *Config) { c.Checks.Rent.At = "25:00" }, wantErr: "checks.rent.at"},
		{name: "bad timezone", mutate: func(c *Config) { c.Checks.Timezone = "Mars/Base" }, wantErr: "checks.timezone"},
		{name: "no admin", mutate: func(c *Config) { c.Telegram.AdminChatID = 0 }, wantErr: "admin_chat_id"},
		{name: "bad duration", mutate: func(c *Config) { c.Notifier.RetryBase = "soon" }, wantErr: "notifier.retry_base"},
		{name: "bad driver", mutate: func(c *Config) { c.Storage = &StorageConfig{Driver: "redis"} }, wantErr: "storage.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Telegram: TelegramConfig{Token: "t", AdminChatID: 1},
				Bank:     BankConfig{Token: "b", AccountID: "a"},
				Checks:   ChecksConfig{Enabled: true},
			}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestChanges(t *testing.T) {
	t.Parallel()

	a := &Config{}
	ApplyDefaults(a)
	b := &Config{}
	ApplyDefaults(b)
	b.Logging.Level = "debug"
	b.Checks.Payers.Parties = b.Checks.Payers.Parties[:1]

	assert.Equal(t, []string{"logging", "checks"}, Changes(a, b))
	assert.Empty(t, Changes(a, a))
	assert.True(t, Has(Changes(a, b), "checks"))
}

func TestSecretsMergeAndEnv(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("ADMIN_CHAT_ID", "42")
	t.Setenv("GOCARDLESS_TOKEN", "")

	flags := Secrets{BankToken: "flag-bank"}
	got := flags.Merge(SecretsFromEnv())
	assert.Equal(t, "env-token", got.TelegramToken)
	assert.Equal(t, "flag-bank", got.BankToken)
	assert.Equal(t, int64(42), got.AdminChatID)
}

func TestLoadDotEnvMissingFileIsFine(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "GOCARDLESS_ACCOUNT_ID=abc-123\n")
	t.Setenv("GOCARDLESS_ACCOUNT_ID", "")
	require.NoError(t, os.Unsetenv("GOCARDLESS_ACCOUNT_ID"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "abc-123", SecretsFromEnv().AccountID)
}
