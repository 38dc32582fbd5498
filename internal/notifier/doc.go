// Package notifier delivers outbound chat messages asynchronously.
//
// Notify enqueues; a small worker pool sends through the transport adapter
// under a shared rate limit and retries failed sends with exponential
// backoff and jitter. A notification that carries a DedupKey is suppressed
// while the same key was sent within the dedup window; with persistence
// enabled the window survives restarts through storage.Store.
package notifier
