// internal/phase/phase.go
//
// The cognitive cycle is a fixed ring of five phases. The engine walks the
// ring in order and wraps reflection back to perception; nothing else in the
// runtime is allowed to reorder or skip phases.

package phase

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase represents one stage of the cognitive cycle.
type Phase int

const (
	Perception Phase = iota
	Analysis
	Decision
	Action
	Reflection
)

// Count is the fixed number of phases in a cycle.
const Count = 5

// ErrUnknown is returned when a phase name does not match any known phase.
var ErrUnknown = errors.New("unknown phase")

// String returns the canonical lowercase name used in events and config files.
func (p Phase) String() string {
	switch p {
	case Perception:
		return "perception"
	case Analysis:
		return "analysis"
	case Decision:
		return "decision"
	case Action:
		return "action"
	case Reflection:
		return "reflection"
	default:
		return "unknown"
	}
}

// FriendlyName returns a short label suitable for dashboard display.
func (p Phase) FriendlyName() string {
	switch p {
	case Perception:
		return "Perceiving"
	case Analysis:
		return "Analyzing"
	case Decision:
		return "Deciding"
	case Action:
		return "Acting"
	case Reflection:
		return "Reflecting"
	default:
		return p.String()
	}
}

// Next returns the following phase, wrapping reflection back to perception.
func (p Phase) Next() Phase {
	if p >= Reflection || p < Perception {
		return Perception
	}
	return p + 1
}

// Valid reports whether p is one of the five cycle phases.
func (p Phase) Valid() bool {
	return p >= Perception && p <= Reflection
}

// Parse resolves a phase by its canonical name.
func Parse(name string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "perception":
		return Perception, nil
	case "analysis":
		return Analysis, nil
	case "decision":
		return Decision, nil
	case "action":
		return Action, nil
	case "reflection":
		return Reflection, nil
	default:
		return Perception, fmt.Errorf("phase: %q: %w", name, ErrUnknown)
	}
}

// All returns the phases in cycle order.
func All() []Phase {
	return []Phase{Perception, Analysis, Decision, Action, Reflection}
}

// Spec holds the timing parameters for a single phase. FrequencyHz is the
// phase's base processing frequency; it is descriptive metadata for
// dashboards and does not drive module scheduling.
type Spec struct {
	Phase       Phase
	Duration    time.Duration
	FrequencyHz float64
}

// defaultSpecs mirrors the cadence observed in the original product.
func defaultSpecs() [Count]Spec {
	return [Count]Spec{
		{Phase: Perception, Duration: 3 * time.Second, FrequencyHz: 2},
		{Phase: Analysis, Duration: 5 * time.Second, FrequencyHz: 1},
		{Phase: Decision, Duration: 2 * time.Second, FrequencyHz: 4},
		{Phase: Action, Duration: 4 * time.Second, FrequencyHz: 1.5},
		{Phase: Reflection, Duration: 6 * time.Second, FrequencyHz: 0.5},
	}
}

// Table is the mutable timing table for the five phases. Reads and writes are
// mutually exclusive so the engine can consult durations from its tick loop
// while callers adjust them.
type Table struct {
	mu    sync.RWMutex
	specs [Count]Spec
}

// NewTable returns a table populated with the default cadence.
func NewTable() *Table {
	return &Table{specs: defaultSpecs()}
}

// Duration returns the configured duration for a phase.
func (t *Table) Duration(p Phase) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !p.Valid() {
		return 0
	}
	return t.specs[p].Duration
}

// SetDuration updates a single phase duration. Durations must be positive.
func (t *Table) SetDuration(p Phase, d time.Duration) error {
	if !p.Valid() {
		return fmt.Errorf("phase: %d: %w", int(p), ErrUnknown)
	}
	if d <= 0 {
		return fmt.Errorf("phase: %s duration must be positive, got %s", p, d)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.specs[p].Duration = d
	return nil
}

// ApplyDurations updates several phase durations atomically. The whole update
// is rejected if any entry is invalid; partial application never happens.
func (t *Table) ApplyDurations(durations map[Phase]time.Duration) error {
	for p, d := range durations {
		if !p.Valid() {
			return fmt.Errorf("phase: %d: %w", int(p), ErrUnknown)
		}
		if d <= 0 {
			return fmt.Errorf("phase: %s duration must be positive, got %s", p, d)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for p, d := range durations {
		t.specs[p].Duration = d
	}
	return nil
}

// TotalDuration sums the five phase durations, i.e. the length of one cycle.
func (t *Table) TotalDuration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total time.Duration
	for _, spec := range t.specs {
		total += spec.Duration
	}
	return total
}

// Specs returns a copy of the current table in cycle order.
func (t *Table) Specs() []Spec {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Spec, Count)
	copy(out, t.specs[:])
	return out
}
