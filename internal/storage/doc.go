// Package storage holds the bot's on-disk state.
//
// ReminderFile is the durable set of pending reminders, rewritten as a whole
// on every save. Store is the optional audit trail and notifier dedup state,
// backed by JSON files or SQLite (build tag "sqlite").
package storage
