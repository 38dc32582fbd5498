// Package checks runs the calendar-gated bank checks.
//
// Each check is registered as a daily trigger. When it fires, a date
// predicate decides whether it acts today; only then is the bank queried and
// the admin chat notified. A rate-limited run notifies the wait and schedules
// exactly one deferred re-run of the same check, which skips the predicate
// and keeps the original reference date.
package checks
