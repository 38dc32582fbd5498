// Package scheduler fires named jobs at wall-clock times: daily triggers on
// robfig/cron and one-shot timers for deferred retries.
//
// Registration is upsert by name. Jobs run on the configured Runner with a
// timeout and are skipped while a previous run of the same name is active.
package scheduler
