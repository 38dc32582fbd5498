package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultRemindersFile = "reminders.json"
	DefaultBankBaseURL   = "https://bankaccountdata.gocardless.com/api/v2"
)

// DefaultParties are the expected payers of the shared flat.
var DefaultParties = []Party{
	{Name: "Marco", Match: "MARCO"},
	{Name: "Alejandro", Match: "ALEJANDRO"},
	{Name: "Luis Miguel", Match: "LUIS MIGUEL"},
}

// ApplyDefaults fills zero values in place.
func ApplyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Reminders.File) == "" {
		cfg.Reminders.File = DefaultRemindersFile
	}
	if strings.TrimSpace(cfg.Bank.BaseURL) == "" {
		cfg.Bank.BaseURL = DefaultBankBaseURL
	}
	r := &cfg.Checks.Rent
	if r.At == "" {
		r.At = "09:05"
	}
	if r.LookbackDays <= 0 {
		r.LookbackDays = 10
	}
	if r.Threshold <= 0 {
		r.Threshold = 800
	}
	p := &cfg.Checks.Payers
	if p.At == "" {
		p.At = "09:00"
	}
	if p.LookbackDays <= 0 {
		p.LookbackDays = 20
	}
	if p.Threshold <= 0 {
		p.Threshold = 200
	}
	if len(p.Parties) == 0 {
		p.Parties = append([]Party(nil), DefaultParties...)
	}
	for i := range p.Parties {
		if strings.TrimSpace(p.Parties[i].Match) == "" {
			p.Parties[i].Match = p.Parties[i].Name
		}
	}
}

// Validate reports every problem found, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add(errors.New("telegram.token: required (file, TELEGRAM_TOKEN or -telegram-token)"))
	}
	_, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	add(err)
	_, err = ParseDurationField("telegram.command_timeout", cfg.Telegram.CommandTimeout)
	add(err)
	_, err = LoadLocation("reminders.timezone", cfg.Reminders.Timezone)
	add(err)
	_, err = ParseDurationField("bank.timeout", cfg.Bank.Timeout)
	add(err)

	if cfg.Checks.Enabled {
		if cfg.Telegram.AdminChatID == 0 {
			add(errors.New("telegram.admin_chat_id: required when checks are enabled"))
		}
		if strings.TrimSpace(cfg.Bank.Token) == "" || strings.TrimSpace(cfg.Bank.AccountID) == "" {
			add(errors.New("bank: token and account_id are required when checks are enabled"))
		}
		_, err = LoadLocation("checks.timezone", cfg.Checks.Timezone)
		add(err)
		_, err = ParseDurationField("checks.retry_fallback", cfg.Checks.RetryFallback)
		add(err)
		_, err = ParseDurationField("checks.timeout", cfg.Checks.Timeout)
		add(err)
		add(validateClock("checks.rent.at", cfg.Checks.Rent.At))
		add(validateClock("checks.payers.at", cfg.Checks.Payers.At))
	}

	n := cfg.Notifier
	for k, v := range map[string]string{
		"notifier.retry_base":      n.RetryBase,
		"notifier.retry_max_delay": n.RetryMaxDelay,
		"notifier.dedup_window":    n.DedupWindow,
	} {
		_, err = ParseDurationField(k, v)
		add(err)
	}

	if cfg.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			add(fmt.Errorf("storage.driver: unknown %q", cfg.Storage.Driver))
		}
		_, err = ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		add(err)
	}
	return errors.Join(errs...)
}

func validateClock(path, at string) error {
	parts := strings.Split(strings.TrimSpace(at), ":")
	if len(parts) != 2 {
		return fmt.Errorf("%s: expected HH:MM, got %q", path, at)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return fmt.Errorf("%s: expected HH:MM, got %q", path, at)
	}
	return nil
}
