// Package reminder schedules one-shot chat reminders.
//
// A single event loop owns the live table of pending reminders and their
// timers. Create, Cancel, List and Restore are requests answered by that loop,
// and an expiring timer posts a fire event to the same loop, so the table has
// exactly one writer. Every mutation rewrites the reminder file as a whole; a
// failed write is logged and the in-memory table stays authoritative.
package reminder
