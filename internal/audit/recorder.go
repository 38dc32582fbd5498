// Package audit turns bus events into storage audit entries.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"chispitas/internal/checks"
	"chispitas/internal/eventbus"
	"chispitas/internal/notifier"
	"chispitas/internal/reminder"
	"chispitas/internal/storage"
	"chispitas/pkg/logx"
)

const writeTimeout = 2 * time.Second

type Subscriber interface {
	Subscribe(buffer int) (<-chan eventbus.Event, func())
}

// Recorder appends one audit entry per bus event.
type Recorder struct {
	store storage.Store
	log   logx.Logger
}

func NewRecorder(store storage.Store, log logx.Logger) *Recorder {
	return &Recorder{store: store, log: log.With(logx.String("comp", "audit"))}
}

// Run consumes events until ctx ends or the subscription closes.
func (r *Recorder) Run(ctx context.Context, bus Subscriber) error {
	events, unsub := bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.Record(ctx, ev)
		}
	}
}

// Record writes ev. Write errors are logged, never returned.
func (r *Recorder) Record(ctx context.Context, ev eventbus.Event) {
	e, ok := Entry(ev)
	if !ok {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := r.store.AppendAudit(wctx, e); err != nil {
		r.log.Warn("audit write failed", logx.String("kind", e.Kind), logx.Err(err))
	}
}

// Entry maps a known event to an audit entry.
func Entry(ev eventbus.Event) (storage.AuditEntry, bool) {
	e := storage.AuditEntry{At: ev.Time, Kind: ev.Type}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	switch d := ev.Data.(type) {
	case reminder.Reminder:
		e.ChatID = d.ChatID
		e.ReminderID = d.ID
		e.MetaJSON = meta(map[string]any{"run_at": d.RunAt})
	case checks.Event:
		e.Task = d.Task
		e.RunID = d.RunID
		e.Outcome = d.Outcome
		e.Error = d.Error
		m := map[string]any{"ref": d.Ref}
		if d.Retry {
			m["retry"] = true
		}
		if d.Wait > 0 {
			m["wait"] = d.Wait.String()
		}
		e.MetaJSON = meta(m)
	case notifier.Event:
		e.ChatID = d.ChatID
		e.Error = d.Error
		if d.DedupKey != "" || d.Attempts > 0 {
			e.MetaJSON = meta(map[string]any{"dedup_key": d.DedupKey, "attempts": d.Attempts})
		}
	case int:
		e.Outcome = "count"
		e.MetaJSON = meta(map[string]any{"count": d})
	case string:
		e.Error = d
	default:
		return storage.AuditEntry{}, false
	}
	return e, true
}

func meta(m map[string]any) string {
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
