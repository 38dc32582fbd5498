package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Secrets carries values that should not live in the config file.
// Empty fields leave the file value untouched.
type Secrets struct {
	TelegramToken string
	BankToken     string
	AccountID     string
	AdminChatID   int64
}

// LoadDotEnv loads a .env file into the process environment. A missing file
// is not an error; variables already set win over the file.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// SecretsFromEnv reads TELEGRAM_TOKEN, GOCARDLESS_TOKEN, GOCARDLESS_ACCOUNT_ID
// and ADMIN_CHAT_ID.
func SecretsFromEnv() Secrets {
	s := Secrets{
		TelegramToken: strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		BankToken:     strings.TrimSpace(os.Getenv("GOCARDLESS_TOKEN")),
		AccountID:     strings.TrimSpace(os.Getenv("GOCARDLESS_ACCOUNT_ID")),
	}
	if v := strings.TrimSpace(os.Getenv("ADMIN_CHAT_ID")); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			s.AdminChatID = id
		}
	}
	return s
}

// Merge returns s with every empty field filled from o.
func (s Secrets) Merge(o Secrets) Secrets {
	if s.TelegramToken == "" {
		s.TelegramToken = o.TelegramToken
	}
	if s.BankToken == "" {
		s.BankToken = o.BankToken
	}
	if s.AccountID == "" {
		s.AccountID = o.AccountID
	}
	if s.AdminChatID == 0 {
		s.AdminChatID = o.AdminChatID
	}
	return s
}

// Apply writes non-empty secrets into cfg.
func (s Secrets) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if s.TelegramToken != "" {
		cfg.Telegram.Token = s.TelegramToken
	}
	if s.BankToken != "" {
		cfg.Bank.Token = s.BankToken
	}
	if s.AccountID != "" {
		cfg.Bank.AccountID = s.AccountID
	}
	if s.AdminChatID != 0 {
		cfg.Telegram.AdminChatID = s.AdminChatID
	}
}
