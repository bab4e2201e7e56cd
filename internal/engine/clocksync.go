package engine

import "time"

// SyncToExternalClock reconciles the engine's phase-boundary accounting with
// an authoritative external timestamp (milliseconds since the Unix epoch).
//
// The adapter computes the forward drift between the external clock and the
// engine clock and ages the current phase by that amount, clamped to the
// phase's own duration. Combined with the one-transition-per-tick rule and
// the registry's collapsed-firing policy, a single sync call can cause at
// most one phase transition and one round of catch-up module firings — a
// sleep/resume jump of hours never replays hours of cadence.
//
// Backwards drift is ignored: the engine never rewinds phase accounting.
// Syncing a stopped engine is a no-op; the timer is re-anchored on Start
// anyway. The clamp policy is a documented assumption, not observed
// behavior (see package doc).
func (e *Engine) SyncToExternalClock(externalMs int64) {
	now := e.clock()
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	drift := time.UnixMilli(externalMs).Sub(now)
	if drift <= 0 {
		e.mu.Unlock()
		return
	}
	clamped := drift
	if clamped > e.phaseDuration {
		clamped = e.phaseDuration
	}
	e.phaseEnteredAt = e.phaseEnteredAt.Add(-clamped)
	e.mu.Unlock()

	e.registry.Rewind(clamped)
	e.tick(now)
	e.logf("engine: external clock sync applied %s of %s drift", clamped, drift)
}
