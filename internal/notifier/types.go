package notifier

import (
	"context"
	"time"

	"chispitas/internal/transport"
)

type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	DedupWindow   time.Duration
	PersistDedup  bool
}

// Sender is the outbound half of transport.Adapter.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

// Event is the payload of notifier bus events.
type Event struct {
	ChatID   int64  `json:"chat_id"`
	DedupKey string `json:"dedup_key,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error,omitempty"`
}
