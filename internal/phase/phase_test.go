package phase

import (
	"errors"
	"testing"
	"time"
)

func TestPhaseOrderWraps(t *testing.T) {
	order := []Phase{Perception, Analysis, Decision, Action, Reflection}
	for i, p := range order {
		want := order[(i+1)%len(order)]
		if got := p.Next(); got != want {
			t.Fatalf("%s.Next() = %s, want %s", p, got, want)
		}
	}
	if Reflection.Next() != Perception {
		t.Fatalf("expected reflection to wrap back to perception")
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, p := range All() {
		parsed, err := Parse(p.String())
		if err != nil {
			t.Fatalf("parse %s: %v", p, err)
		}
		if parsed != p {
			t.Fatalf("parse %s = %s", p, parsed)
		}
	}
	if _, err := Parse("dreaming"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown for bogus phase, got %v", err)
	}
}

func TestTableSetDurationValidates(t *testing.T) {
	table := NewTable()
	if err := table.SetDuration(Action, 500*time.Millisecond); err != nil {
		t.Fatalf("set duration: %v", err)
	}
	if got := table.Duration(Action); got != 500*time.Millisecond {
		t.Fatalf("duration = %s, want 500ms", got)
	}
	if err := table.SetDuration(Action, 0); err == nil {
		t.Fatalf("expected error for zero duration")
	}
	if err := table.SetDuration(Phase(42), time.Second); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}
}

func TestApplyDurationsIsAtomic(t *testing.T) {
	table := NewTable()
	before := table.Specs()
	err := table.ApplyDurations(map[Phase]time.Duration{
		Perception: 2 * time.Second,
		Analysis:   -1,
	})
	if err == nil {
		t.Fatalf("expected rejection for invalid entry")
	}
	for i, spec := range table.Specs() {
		if spec.Duration != before[i].Duration {
			t.Fatalf("%s changed despite rejected update", spec.Phase)
		}
	}
	err = table.ApplyDurations(map[Phase]time.Duration{
		Perception: 2 * time.Second,
		Reflection: 9 * time.Second,
	})
	if err != nil {
		t.Fatalf("apply durations: %v", err)
	}
	if table.Duration(Perception) != 2*time.Second || table.Duration(Reflection) != 9*time.Second {
		t.Fatalf("expected both named phases updated")
	}
	if table.Duration(Decision) != 2*time.Second {
		t.Fatalf("decision duration should keep its default")
	}
}

func TestTotalDuration(t *testing.T) {
	table := NewTable()
	var want time.Duration
	for _, spec := range table.Specs() {
		want += spec.Duration
	}
	if got := table.TotalDuration(); got != want {
		t.Fatalf("total = %s, want %s", got, want)
	}
}
