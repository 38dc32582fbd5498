package app

import (
	"fmt"
	"strings"
	"time"

	"chispitas/internal/bank"
	"chispitas/internal/checks"
	"chispitas/internal/config"
	"chispitas/internal/notifier"
	"chispitas/internal/storage"
	"chispitas/internal/task/scheduler"
	"chispitas/internal/transport/telegram/adapter"
	"chispitas/internal/transport/telegram/router"
	"chispitas/pkg/logx"
)

const defaultCommandTimeout = 30 * time.Second

func mapLoggingConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapAdapterConfig(cfg *config.Config) (adapter.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return adapter.Config{}, err
	}
	return adapter.Config{Token: cfg.Telegram.Token, PollTimeout: poll}, nil
}

// mapRouterConfig leaves an explicit "0s" command timeout at zero, which
// disables it; an empty value gets the default.
func mapRouterConfig(cfg *config.Config) (router.Config, error) {
	t := cfg.Telegram
	timeout := defaultCommandTimeout
	if strings.TrimSpace(t.CommandTimeout) != "" {
		d, err := config.ParseDurationField("telegram.command_timeout", t.CommandTimeout)
		if err != nil {
			return router.Config{}, err
		}
		timeout = d
	}
	return router.Config{RequireMention: t.RequireMention, Workers: t.Workers, CommandTimeout: timeout}, nil
}

func mapBankConfig(cfg *config.Config) (bank.Config, error) {
	b := cfg.Bank
	timeout, err := config.ParseDurationOrDefault("bank.timeout", b.Timeout, 30*time.Second)
	if err != nil {
		return bank.Config{}, err
	}
	return bank.Config{
		BaseURL:    b.BaseURL,
		AccountID:  b.AccountID,
		Token:      b.Token,
		Timeout:    timeout,
		RatePerSec: b.RatePerSec,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	base, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.ParseDurationField("notifier.dedup_window", n.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	if n.Workers < 0 || n.QueueSize < 0 || n.RetryMax < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: workers, queue_size and retry_max must be >= 0")
	}
	return notifier.Config{
		Workers:       n.Workers,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		DedupWindow:   dedup,
		PersistDedup:  n.PersistDedup,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: cfg.Checks.Timezone}
}

func mapChecksConfig(cfg *config.Config) (checks.Config, error) {
	c := cfg.Checks
	loc, err := config.LoadLocation("checks.timezone", c.Timezone)
	if err != nil {
		return checks.Config{}, err
	}
	fallback, err := config.ParseDurationField("checks.retry_fallback", c.RetryFallback)
	if err != nil {
		return checks.Config{}, err
	}
	timeout, err := config.ParseDurationField("checks.timeout", c.Timeout)
	if err != nil {
		return checks.Config{}, err
	}
	parties := make([]checks.Party, 0, len(c.Payers.Parties))
	for _, p := range c.Payers.Parties {
		parties = append(parties, checks.Party{Name: p.Name, Match: p.Match})
	}
	return checks.Config{
		Enabled:       c.Enabled,
		AdminChatID:   cfg.Telegram.AdminChatID,
		Location:      loc,
		RetryFallback: fallback,
		Timeout:       timeout,
		Rent: checks.RentConfig{
			Enabled:      c.Rent.Enabled,
			At:           c.Rent.At,
			LookbackDays: c.Rent.LookbackDays,
			Threshold:    c.Rent.Threshold,
		},
		Payers: checks.PayersConfig{
			Enabled:      c.Payers.Enabled,
			At:           c.Payers.At,
			LookbackDays: c.Payers.LookbackDays,
			Threshold:    c.Payers.Threshold,
			Parties:      parties,
		},
	}, nil
}

// mapStorageConfig returns ok=false when no store is configured.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}
