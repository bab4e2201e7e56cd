// Package engine drives the cognitive rhythm: a single timer loop walks the
// five-phase cycle in fixed order, emits boundary events over the bus, and
// fires registered modules when their own periods elapse. There is exactly
// one active phase at any instant and exactly one tick goroutine; module
// callbacks are dispatched to their own goroutines so a slow module cannot
// stall phase progression.
//
// The scheduler is a soft, best-effort cadence generator. Missed ticks
// self-correct on the next heartbeat, backlogged module periods collapse
// into a single firing, and external clock jumps are clamped to at most one
// phase transition plus one catch-up firing round per sync call (an assumed
// policy pending product confirmation; see SyncToExternalClock).
package engine
