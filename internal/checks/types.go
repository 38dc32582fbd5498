package checks

import (
	"context"
	"time"

	"chispitas/internal/bank"
	"chispitas/internal/task/scheduler"
	"chispitas/internal/transport"
)

const (
	RentTask   = "checks.rent"
	PayersTask = "checks.payers"
)

// Outcomes reported in events and returned by Run.
const (
	OutcomeSkipped     = "skipped"
	OutcomePaid        = "paid"
	OutcomeUnpaid      = "unpaid"
	OutcomeReported    = "reported"
	OutcomeRateLimited = "rate_limited"
	OutcomeFailed      = "failed"
)

type Party struct {
	Name  string
	Match string
}

type RentConfig struct {
	Enabled      bool
	At           string
	LookbackDays int
	Threshold    float64
}

type PayersConfig struct {
	Enabled      bool
	At           string
	LookbackDays int
	Threshold    float64
	Parties      []Party
}

type Config struct {
	Enabled       bool
	AdminChatID   int64
	Location      *time.Location
	RetryFallback time.Duration
	Timeout       time.Duration
	Rent          RentConfig
	Payers        PayersConfig
}

// Bank is the part of *bank.Client the checks query.
type Bank interface {
	Transactions(ctx context.Context, from, to time.Time) (bank.Transactions, error)
}

type Notifier interface {
	Notify(ctx context.Context, n transport.Notification) error
}

// Scheduler is the part of *scheduler.Service the runner registers with.
type Scheduler interface {
	AddDaily(name, atHHMM string, timeout time.Duration, job scheduler.Job) error
	AddOnce(name string, at time.Time, timeout time.Duration, job scheduler.Job) error
	Remove(name string) bool
}

// Event is the payload of check.* bus events.
type Event struct {
	Task    string        `json:"task"`
	RunID   string        `json:"run_id"`
	Ref     time.Time     `json:"ref"`
	Retry   bool          `json:"retry,omitempty"`
	Outcome string        `json:"outcome"`
	Wait    time.Duration `json:"wait,omitempty"`
	Error   string        `json:"error,omitempty"`
}
