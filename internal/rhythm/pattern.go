package rhythm

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/wavesync/internal/phase"
)

// ErrUnknownPattern is returned when a pattern name has no library entry.
var ErrUnknownPattern = errors.New("unknown rhythm pattern")

// Pattern is a named set of phase-duration overrides. A pattern may cover any
// subset of the five phases; phases it does not name keep their current
// duration when the pattern is enforced.
type Pattern struct {
	Name        string
	Description string
	Durations   map[phase.Phase]time.Duration
}

// Validate ensures the pattern is well-formed before it enters the library.
func (p Pattern) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("rhythm: pattern name is required")
	}
	if len(p.Durations) == 0 {
		return fmt.Errorf("rhythm: pattern %s names no phases", p.Name)
	}
	for ph, d := range p.Durations {
		if !ph.Valid() {
			return fmt.Errorf("rhythm: pattern %s: %d: %w", p.Name, int(ph), phase.ErrUnknown)
		}
		if d <= 0 {
			return fmt.Errorf("rhythm: pattern %s: %s duration must be positive, got %s", p.Name, ph, d)
		}
	}
	return nil
}

// Normalized returns a trimmed copy with a defensively cloned duration map.
func (p Pattern) Normalized() Pattern {
	clone := Pattern{
		Name:        strings.ToLower(strings.TrimSpace(p.Name)),
		Description: strings.TrimSpace(p.Description),
	}
	if len(p.Durations) > 0 {
		clone.Durations = make(map[phase.Phase]time.Duration, len(p.Durations))
		for ph, d := range p.Durations {
			clone.Durations[ph] = d
		}
	}
	return clone
}

// builtins are the presets shipped with the synchronizer.
func builtins() []Pattern {
	return []Pattern{
		{
			Name:        "focus-rest",
			Description: "long action bursts with deep recovery",
			Durations: map[phase.Phase]time.Duration{
				phase.Analysis:   6 * time.Second,
				phase.Action:     8 * time.Second,
				phase.Reflection: 10 * time.Second,
			},
		},
		{
			Name:        "scan-focus",
			Description: "wide perception sweeps, snap decisions",
			Durations: map[phase.Phase]time.Duration{
				phase.Perception: 8 * time.Second,
				phase.Analysis:   6 * time.Second,
				phase.Decision:   1 * time.Second,
			},
		},
		{
			Name:        "learn-act",
			Description: "balanced analysis and execution",
			Durations: map[phase.Phase]time.Duration{
				phase.Analysis: 7 * time.Second,
				phase.Decision: 3 * time.Second,
				phase.Action:   7 * time.Second,
			},
		},
	}
}

// Library holds the known rhythm patterns keyed by name.
type Library struct {
	mu       sync.RWMutex
	patterns map[string]Pattern
}

// NewLibrary returns a library preloaded with the built-in presets.
func NewLibrary() *Library {
	lib := &Library{patterns: map[string]Pattern{}}
	for _, p := range builtins() {
		lib.patterns[p.Name] = p.Normalized()
	}
	return lib
}

// Add installs a custom pattern. Returns an error if the name is taken.
func (l *Library) Add(p Pattern) error {
	normalized := p.Normalized()
	if err := normalized.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.patterns[normalized.Name]; exists {
		return fmt.Errorf("rhythm: pattern %s already registered", normalized.Name)
	}
	l.patterns[normalized.Name] = normalized
	return nil
}

// Get resolves a pattern by name.
func (l *Library) Get(name string) (Pattern, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.patterns[key]
	if !ok {
		return Pattern{}, fmt.Errorf("rhythm: %q: %w", name, ErrUnknownPattern)
	}
	return p.Normalized(), nil
}

// Names returns the registered pattern names in sorted order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.patterns))
	for name := range l.patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
