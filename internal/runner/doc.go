// Package runner is the periodic invoker around the resolution engine.
//
// A single cron entry fires every clock minute. Each cycle computes
// "today" and the truncated minute exactly once, takes one consistent
// store snapshot, asks the engine what fires, and hands the result to the
// notifier pipeline. Cycles are isolated: one cycle's store error or
// panic never stops the loop.
package runner
