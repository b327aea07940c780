// Package notifier delivers resolved triggers to registered sinks.
//
// The per-minute runner hands each cycle's trigger set to this pipeline
// and moves on; delivery happens asynchronously behind a bounded queue,
// a worker pool, a rate limiter, and a per-occurrence dedup window. The
// dedup key is (event, day, minute), so an overlapping or repeated cycle
// cannot announce the same occurrence twice.
//
// Sinks are in-process only (structured log, event bus). Pushing audio to
// client devices is explicitly out of scope for the daemon.
package notifier
