package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config selects the audit/dedup backend.
//
// Driver values:
//   - "file": JSON lines plus a dedup snapshot/journal next to Path
//   - "sqlite": SQLite database at Path (needs the "sqlite" build tag)
//
// Empty or "none" disables the store.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
}

// AuditEntry is one line of the audit trail: a reminder lifecycle change, a
// recurring check run or a delivery outcome.
type AuditEntry struct {
	At         time.Time `json:"at"`
	Kind       string    `json:"kind"`
	ChatID     int64     `json:"chat_id,omitempty"`
	ReminderID int64     `json:"reminder_id,omitempty"`
	Task       string    `json:"task,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Error      string    `json:"error,omitempty"`
	MetaJSON   string    `json:"meta,omitempty"`
}

// Store is the audit and dedup persistence used by the notifier and the
// audit recorder.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	Close() error
}
