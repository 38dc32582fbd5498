package config

// Config is the whole bot configuration. Secrets (tokens, account id) may be
// left empty here and supplied through the environment or CLI flags.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Reminders RemindersConfig `json:"reminders"`
	Bank      BankConfig      `json:"bank"`
	Checks    ChecksConfig    `json:"checks"`
	Notifier  NotifierConfig  `json:"notifier"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
	// AdminChatID receives recurring check results, retry notices and error reports.
	AdminChatID int64 `json:"admin_chat_id"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout    string `json:"poll_timeout,omitempty"`
	RequireMention bool   `json:"require_mention"`
	Workers        int    `json:"workers,omitempty"`
	// CommandTimeout bounds one command handler, "0s" disables it.
	CommandTimeout string `json:"command_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RemindersConfig locates the reminder file. Timezone names the zone that
// naive datetimes in the file are interpreted in (default: process local).
type RemindersConfig struct {
	File     string `json:"file"`
	Timezone string `json:"timezone,omitempty"`
}

type BankConfig struct {
	BaseURL    string `json:"base_url,omitempty"`
	AccountID  string `json:"account_id,omitempty"`
	Token      string `json:"token,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// ChecksConfig drives the calendar-gated recurring checks.
//
// Example:
//
//	checks:
//	  enabled: true
//	  timezone: Europe/Madrid
//	  rent:   { enabled: true, at: "09:05", lookback_days: 10, threshold: 800 }
//	  payers: { enabled: true, at: "09:00", lookback_days: 20, threshold: 200 }
type ChecksConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`
	// RetryFallback is used when a rate-limited response carries no wait.
	RetryFallback string      `json:"retry_fallback,omitempty"`
	Timeout       string      `json:"timeout,omitempty"`
	Rent          RentCheck   `json:"rent"`
	Payers        PayersCheck `json:"payers"`
}

type RentCheck struct {
	Enabled      bool    `json:"enabled"`
	At           string  `json:"at"`
	LookbackDays int     `json:"lookback_days,omitempty"`
	Threshold    float64 `json:"threshold,omitempty"`
}

type PayersCheck struct {
	Enabled      bool    `json:"enabled"`
	At           string  `json:"at"`
	LookbackDays int     `json:"lookback_days,omitempty"`
	Threshold    float64 `json:"threshold,omitempty"`
	Parties      []Party `json:"parties,omitempty"`
}

// Party is one expected payer. Match is the case-insensitive substring looked
// up in the counterparty name; it defaults to Name.
type Party struct {
	Name  string `json:"name"`
	Match string `json:"match,omitempty"`
}

// NotifierConfig controls the async delivery pipeline.
// All durations are Go duration strings.
type NotifierConfig struct {
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
	DedupWindow   string `json:"dedup_window"`
	PersistDedup  bool   `json:"persist_dedup,omitempty"`
}

// StorageConfig controls the audit/dedup store.
//
//	"storage": { "driver": "file", "path": "./chispitas_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
