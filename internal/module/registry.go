// Package module maintains the registrations that the cycle engine
// multiplexes onto its tick: each module carries its own firing frequency,
// decoupled from phase boundaries.
package module

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrDuplicateModule is returned when an id is registered twice.
	ErrDuplicateModule = errors.New("module already registered")
	// ErrInvalidFrequency is returned for frequencies <= 0.
	ErrInvalidFrequency = errors.New("frequency must be positive")
	// ErrUnknownModule is returned when unregistering an id that was never
	// registered. The registry state is untouched; callers may treat the
	// error as advisory and discard it.
	ErrUnknownModule = errors.New("module not registered")
)

// Callback is the unit of work a module contributes to the rhythm. The
// engine consumes no return value; firing is fire-and-forget.
type Callback func()

// Registration is the read-only view of a registered module.
type Registration struct {
	ID          string
	FrequencyHz float64
	LastFired   time.Time
}

// Period returns the interval between firings implied by the frequency.
func (r Registration) Period() time.Duration {
	if r.FrequencyHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / r.FrequencyHz)
}

type registration struct {
	id          string
	frequencyHz float64
	callback    Callback
	lastFired   time.Time
}

func (r *registration) period() time.Duration {
	return time.Duration(float64(time.Second) / r.frequencyHz)
}

// Registry maps module ids to their registrations. All mutation and the
// engine's due-scan are mutually exclusive behind one mutex, so a module
// unregistered mid-tick can never be handed out for a later firing.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registration
	clock   func() time.Time
}

// Option customizes registry construction.
type Option func(*Registry)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: map[string]*registration{},
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Register installs a module. The registration starts with LastFired set to
// now, so the first firing happens one full period after registration.
func (r *Registry) Register(id string, frequencyHz float64, callback Callback) error {
	if id == "" {
		return fmt.Errorf("module: id is required")
	}
	if frequencyHz <= 0 {
		return fmt.Errorf("module: %s: %g: %w", id, frequencyHz, ErrInvalidFrequency)
	}
	if callback == nil {
		return fmt.Errorf("module: callback is required for %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return fmt.Errorf("module: %s: %w", id, ErrDuplicateModule)
	}
	r.entries[id] = &registration{
		id:          id,
		frequencyHz: frequencyHz,
		callback:    callback,
		lastFired:   r.clock(),
	}
	return nil
}

// Unregister removes a module. Unknown ids return ErrUnknownModule without
// touching any state; once Unregister returns, the id can never fire again.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; !exists {
		return fmt.Errorf("module: %s: %w", id, ErrUnknownModule)
	}
	delete(r.entries, id)
	return nil
}

// Has reports whether the id is currently registered.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Due returns the ids whose period has elapsed at now and stamps their
// LastFired inside the lock. Stamping to now (rather than advancing by one
// period) collapses multiple elapsed periods into a single firing; the
// scheduler is deliberately best-effort, never at-least-once.
func (r *Registry) Due(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []string
	for id, entry := range r.entries {
		if now.Sub(entry.lastFired) >= entry.period() {
			entry.lastFired = now
			due = append(due, id)
		}
	}
	sort.Strings(due)
	return due
}

// Callback hands out the callback for a due id, or reports that the module
// is gone. The engine calls this immediately before dispatch so an
// unregistration between the due-scan and the dispatch wins.
func (r *Registry) Callback(id string) (Callback, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return entry.callback, true
}

// Rewind shifts every LastFired back by d. The clock-sync adapter uses this
// to grant one round of catch-up firings after an external clock jump; the
// collapse rule in Due keeps it to exactly one firing per module.
func (r *Registry) Rewind(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		entry.lastFired = entry.lastFired.Add(-d)
	}
}

// Snapshot returns the registrations sorted by id, without callbacks.
func (r *Registry) Snapshot() []Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Registration, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, Registration{
			ID:          entry.id,
			FrequencyHz: entry.frequencyHz,
			LastFired:   entry.lastFired,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
