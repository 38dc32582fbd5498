package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chispitas/internal/storage"
	"chispitas/internal/transport"
)

// MaxPending is the hard limit of live reminders accepted by Create.
const MaxPending = 15

type Reminder struct {
	ID      int64
	ChatID  int64
	RunAt   time.Time
	Message string
}

// Created is the answer to a successful Create. Wait is the Spanish
// description of the remaining time ("2 días, 3 horas").
type Created struct {
	Reminder
	Wait string
}

var (
	ErrCapacity = errors.New("too many pending reminders")
	ErrPastDue  = errors.New("run time is not in the future")
	ErrNotFound = errors.New("reminder not found")
	ErrStopped  = errors.New("reminder scheduler stopped")
)

// ValidationError rejects a Create request. It wraps ErrCapacity or ErrPastDue.
type ValidationError struct {
	Err   error
	Limit int
}

func (e *ValidationError) Error() string {
	if errors.Is(e.Err, ErrCapacity) {
		return fmt.Sprintf("%v (limit %d)", e.Err, e.Limit)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PersistenceError is published when the reminder file could not be written.
type PersistenceError struct {
	Pending int
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("save %d reminders: %v", e.Pending, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store persists the complete set of pending reminders.
type Store interface {
	Save(recs []storage.ReminderRecord) error
}

// Sender delivers the reminder text.
type Sender interface {
	Notify(ctx context.Context, n transport.Notification) error
}

// Timer is the part of *time.Timer the scheduler uses.
type Timer interface {
	Stop() bool
}

// AfterFunc arms a timer. The default wraps time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
