package module

import (
	"errors"
	"testing"
	"time"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestRegisterValidates(t *testing.T) {
	start := time.Unix(1730000000, 0)
	reg := NewRegistry(WithClock(fixedClock(start)))
	if err := reg.Register("heartbeat", 2, func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("heartbeat", 1, func() {}); !errors.Is(err, ErrDuplicateModule) {
		t.Fatalf("expected ErrDuplicateModule, got %v", err)
	}
	if err := reg.Register("frozen", 0, func() {}); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency for 0Hz, got %v", err)
	}
	if err := reg.Register("reverse", -1, func() {}); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency for negative, got %v", err)
	}
	if err := reg.Register("", 1, func() {}); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if err := reg.Register("silent", 1, nil); err == nil {
		t.Fatalf("expected error for nil callback")
	}
}

func TestUnregisterUnknownIsAdvisory(t *testing.T) {
	reg := NewRegistry()
	err := reg.Unregister("ghost")
	if !errors.Is(err, ErrUnknownModule) {
		t.Fatalf("expected ErrUnknownModule, got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("registry mutated by failed unregister")
	}
	if err := reg.Register("real", 1, func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Unregister("real"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if reg.Has("real") {
		t.Fatalf("module survived unregister")
	}
}

func TestDueStampsAndSorts(t *testing.T) {
	start := time.Unix(1730000000, 0)
	reg := NewRegistry(WithClock(fixedClock(start)))
	for _, id := range []string{"zeta", "alpha"} {
		if err := reg.Register(id, 2, func() {}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	if due := reg.Due(start.Add(250 * time.Millisecond)); len(due) != 0 {
		t.Fatalf("nothing should be due before one period, got %v", due)
	}
	due := reg.Due(start.Add(600 * time.Millisecond))
	if len(due) != 2 || due[0] != "alpha" || due[1] != "zeta" {
		t.Fatalf("unexpected due set: %v", due)
	}
	// LastFired was stamped; the same instant must not fire again.
	if due := reg.Due(start.Add(600 * time.Millisecond)); len(due) != 0 {
		t.Fatalf("due set should be empty immediately after firing, got %v", due)
	}
}

func TestDueCollapsesMissedPeriods(t *testing.T) {
	start := time.Unix(1730000000, 0)
	reg := NewRegistry(WithClock(fixedClock(start)))
	if err := reg.Register("fast", 10, func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Ten periods elapsed, but the module fires once and is re-anchored to now.
	if due := reg.Due(start.Add(time.Second)); len(due) != 1 {
		t.Fatalf("expected single collapsed firing, got %v", due)
	}
	if due := reg.Due(start.Add(time.Second + 50*time.Millisecond)); len(due) != 0 {
		t.Fatalf("backlog must not queue extra firings, got %v", due)
	}
}

func TestCallbackAfterUnregister(t *testing.T) {
	start := time.Unix(1730000000, 0)
	reg := NewRegistry(WithClock(fixedClock(start)))
	if err := reg.Register("doomed", 1, func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}
	due := reg.Due(start.Add(2 * time.Second))
	if len(due) != 1 || due[0] != "doomed" {
		t.Fatalf("unexpected due set: %v", due)
	}
	if err := reg.Unregister("doomed"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if _, ok := reg.Callback("doomed"); ok {
		t.Fatalf("callback handed out after unregister")
	}
}

func TestRewindGrantsOneCatchUpRound(t *testing.T) {
	start := time.Unix(1730000000, 0)
	reg := NewRegistry(WithClock(fixedClock(start)))
	if err := reg.Register("sync", 1, func() {}); err != nil {
		t.Fatalf("register: %v", err)
	}
	now := start.Add(500 * time.Millisecond)
	if due := reg.Due(now); len(due) != 0 {
		t.Fatalf("not due yet, got %v", due)
	}
	reg.Rewind(time.Hour)
	if due := reg.Due(now); len(due) != 1 {
		t.Fatalf("expected one catch-up firing, got %v", due)
	}
	if due := reg.Due(now.Add(100 * time.Millisecond)); len(due) != 0 {
		t.Fatalf("catch-up must collapse to a single firing, got %v", due)
	}
}

func TestSnapshotSorted(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []string{"c", "a", "b"} {
		if err := reg.Register(id, 1, func() {}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	snap := reg.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len(snapshot) = %d", len(snap))
	}
	for i, want := range []string{"a", "b", "c"} {
		if snap[i].ID != want {
			t.Fatalf("snapshot[%d] = %s, want %s", i, snap[i].ID, want)
		}
	}
	if p := snap[0].Period(); p != time.Second {
		t.Fatalf("period = %s, want 1s", p)
	}
}
