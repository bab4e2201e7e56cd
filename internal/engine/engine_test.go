package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/wavesync/internal/events"
	"github.com/kingrea/wavesync/internal/module"
	"github.com/kingrea/wavesync/internal/phase"
	"github.com/kingrea/wavesync/internal/rhythm"
)

// fakeClock lets tests drive simulated time through the engine, the
// registry, and every emitted event.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1730000000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	clock    *fakeClock
	table    *phase.Table
	registry *module.Registry
	bus      *events.Bus
	engine   *Engine
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	clock := newFakeClock()
	table := phase.NewTable()
	registry := module.NewRegistry(module.WithClock(clock.Now))
	bus := events.NewBus()
	base := []Option{
		WithClock(clock.Now),
		WithSynchronousDispatch(),
		// Park the background loop; tests drive tick directly.
		WithTickInterval(time.Hour),
	}
	eng, err := New(table, registry, bus, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(eng.Stop)
	return &harness{clock: clock, table: table, registry: registry, bus: bus, engine: eng}
}

// run advances simulated time in fixed steps, ticking after each step.
func (h *harness) run(step time.Duration, steps int) {
	for i := 0; i < steps; i++ {
		h.clock.Advance(step)
		h.engine.tick(h.clock.Now())
	}
}

func (h *harness) uniformDurations(t *testing.T, d time.Duration) {
	t.Helper()
	durations := make(map[phase.Phase]time.Duration, phase.Count)
	for _, p := range phase.All() {
		durations[p] = d
	}
	if err := h.table.ApplyDurations(durations); err != nil {
		t.Fatalf("apply durations: %v", err)
	}
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(evt events.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) ofType(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, evt := range r.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func subscribeAll(t *testing.T, eng *Engine, rec *recorder) {
	t.Helper()
	for _, typ := range []events.Type{events.TypePhaseStart, events.TypePhaseEnd, events.TypeCycleComplete, events.TypeModuleError} {
		sub := eng.OnEvent(typ, rec.handle)
		t.Cleanup(sub.Close)
	}
}

func TestPhasesAdvanceInFixedOrder(t *testing.T) {
	h := newHarness(t)
	h.uniformDurations(t, time.Second)
	rec := &recorder{}
	subscribeAll(t, h.engine, rec)
	h.engine.Start()
	h.run(500*time.Millisecond, 20) // 10 simulated seconds, two full cycles

	starts := rec.ofType(events.TypePhaseStart)
	want := []string{
		"perception", "analysis", "decision", "action", "reflection",
		"perception", "analysis", "decision", "action", "reflection",
		"perception",
	}
	if len(starts) != len(want) {
		t.Fatalf("phase_start count = %d, want %d", len(starts), len(want))
	}
	for i, evt := range starts {
		if evt.Phase != want[i] {
			t.Fatalf("phase_start[%d] = %s, want %s", i, evt.Phase, want[i])
		}
	}
	if info := h.engine.CycleInfo(); info.CycleCount != 2 {
		t.Fatalf("cycle count = %d, want 2", info.CycleCount)
	}
	if completes := rec.ofType(events.TypeCycleComplete); len(completes) != 2 {
		t.Fatalf("cycle_complete count = %d, want 2", len(completes))
	}
}

func TestHeartbeatFiresAtItsFrequency(t *testing.T) {
	h := newHarness(t)
	fired := 0
	if err := h.engine.RegisterModule("heartbeat", 2, func() { fired++ }); err != nil {
		t.Fatalf("register heartbeat: %v", err)
	}
	h.engine.Start()
	h.run(250*time.Millisecond, 20) // 5 simulated seconds
	if fired < 9 || fired > 11 {
		t.Fatalf("heartbeat fired %d times over 5s at 2Hz, want 9..11", fired)
	}
}

func TestUnregisteredModuleNeverFiresAgain(t *testing.T) {
	h := newHarness(t)
	fired := 0
	if err := h.engine.RegisterModule("pulse", 4, func() { fired++ }); err != nil {
		t.Fatalf("register: %v", err)
	}
	h.engine.Start()
	h.run(250*time.Millisecond, 8)
	before := fired
	if before == 0 {
		t.Fatalf("expected some firings before unregister")
	}
	if err := h.engine.UnregisterModule("pulse"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	h.run(250*time.Millisecond, 40)
	if fired != before {
		t.Fatalf("module fired after unregister: %d -> %d", before, fired)
	}
	if err := h.engine.UnregisterModule("pulse"); !errors.Is(err, module.ErrUnknownModule) {
		t.Fatalf("expected advisory ErrUnknownModule, got %v", err)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.uniformDurations(t, time.Second)
	rec := &recorder{}
	subscribeAll(t, h.engine, rec)
	h.engine.Start()
	h.run(500*time.Millisecond, 12) // into the second cycle
	info := h.engine.CycleInfo()
	current, _ := h.engine.CurrentPhase()
	h.engine.Start()
	again := h.engine.CycleInfo()
	if again.CycleCount != info.CycleCount {
		t.Fatalf("second Start reset cycle count: %d -> %d", info.CycleCount, again.CycleCount)
	}
	if got, _ := h.engine.CurrentPhase(); got != current {
		t.Fatalf("second Start moved phase: %s -> %s", current, got)
	}
	if starts := rec.ofType(events.TypePhaseStart); starts[0].Phase != "perception" {
		t.Fatalf("first phase_start = %s, want perception", starts[0].Phase)
	}
}

func TestStopPreservesStateAndStartResumes(t *testing.T) {
	h := newHarness(t)
	h.uniformDurations(t, time.Second)
	rec := &recorder{}
	subscribeAll(t, h.engine, rec)
	fired := 0
	if err := h.engine.RegisterModule("quiet", 10, func() { fired++ }); err != nil {
		t.Fatalf("register: %v", err)
	}
	h.engine.Start()
	h.run(500*time.Millisecond, 5) // 2.5s in: decision phase, mid-cycle
	h.engine.Stop()
	info := h.engine.CycleInfo()
	if info.Running {
		t.Fatalf("expected stopped engine")
	}
	if info.Phase != phase.Decision {
		t.Fatalf("stop lost current phase: %s", info.Phase)
	}
	firedAtStop := fired
	// Ticks while stopped must not fire modules or advance phases.
	h.run(500*time.Millisecond, 10)
	if fired != firedAtStop {
		t.Fatalf("module fired while stopped")
	}
	if got, _ := h.engine.CurrentPhase(); got != phase.Decision {
		t.Fatalf("phase advanced while stopped: %s", got)
	}
	completesBefore := len(rec.ofType(events.TypeCycleComplete))
	h.engine.Start()
	h.run(500*time.Millisecond, 2)
	if got := len(rec.ofType(events.TypeCycleComplete)); got != completesBefore {
		t.Fatalf("resume emitted spurious cycle_complete: %d -> %d", completesBefore, got)
	}
	if info := h.engine.CycleInfo(); info.CycleCount != 0 {
		t.Fatalf("resume reset or advanced cycle count: %d", info.CycleCount)
	}
}

func TestWraparoundEventOrdering(t *testing.T) {
	h := newHarness(t)
	h.uniformDurations(t, time.Second)
	rec := &recorder{}
	subscribeAll(t, h.engine, rec)
	h.engine.Start()
	h.run(time.Second, 5) // exactly one full cycle
	all := rec.all()
	// Find the wraparound and check strict ordering around it.
	idx := -1
	for i, evt := range all {
		if evt.Type == events.TypeCycleComplete {
			idx = i
			break
		}
	}
	if idx < 2 {
		t.Fatalf("no wraparound observed in %d events", len(all))
	}
	if prev := all[idx-1]; prev.Type != events.TypePhaseStart || prev.Phase != "perception" {
		t.Fatalf("event before cycle_complete = %s/%s, want phase_start/perception", prev.Type, prev.Phase)
	}
	if prev := all[idx-2]; prev.Type != events.TypePhaseEnd || prev.Phase != "reflection" {
		t.Fatalf("event before phase_start = %s/%s, want phase_end/reflection", prev.Type, prev.Phase)
	}
}

func TestAdjustPhaseTimingDefersToNextEntry(t *testing.T) {
	h := newHarness(t)
	h.uniformDurations(t, time.Second)
	rec := &recorder{}
	subscribeAll(t, h.engine, rec)
	h.engine.Start()
	// While perception is active, stretch action. Nothing about the phases
	// before action's next entry may change.
	if err := h.engine.AdjustPhaseTiming("action", 3*time.Second); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	h.run(500*time.Millisecond, 5) // 2.5s: decision active, action untouched
	if got, _ := h.engine.CurrentPhase(); got != phase.Decision {
		t.Fatalf("pre-action phases disturbed, now in %s", got)
	}
	h.run(500*time.Millisecond, 1) // enter action at 3s
	if got, _ := h.engine.CurrentPhase(); got != phase.Action {
		t.Fatalf("expected action, got %s", got)
	}
	h.run(500*time.Millisecond, 4) // 2s into action; old duration would have ended it
	if got, _ := h.engine.CurrentPhase(); got != phase.Action {
		t.Fatalf("action ended early despite 3s duration, now in %s", got)
	}
	h.run(500*time.Millisecond, 2) // 3s into action
	if got, _ := h.engine.CurrentPhase(); got != phase.Reflection {
		t.Fatalf("action failed to end at adjusted duration, now in %s", got)
	}
}

func TestAdjustCurrentPhaseDoesNotTruncateIt(t *testing.T) {
	h := newHarness(t)
	h.uniformDurations(t, 2*time.Second)
	h.engine.Start()
	// Shrink perception while perception is running; the in-progress phase
	// keeps the duration it was entered with.
	if err := h.engine.AdjustPhaseTiming("perception", 500*time.Millisecond); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	h.run(500*time.Millisecond, 2) // 1s elapsed, under the latched 2s
	if got, _ := h.engine.CurrentPhase(); got != phase.Perception {
		t.Fatalf("current phase truncated by adjustment, now in %s", got)
	}
	h.run(500*time.Millisecond, 2) // 2s elapsed
	if got, _ := h.engine.CurrentPhase(); got != phase.Analysis {
		t.Fatalf("expected analysis after latched duration, got %s", got)
	}
}

func TestAdjustPhaseTimingValidates(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.AdjustPhaseTiming("daydream", time.Second); !errors.Is(err, phase.ErrUnknown) {
		t.Fatalf("expected phase.ErrUnknown, got %v", err)
	}
	if err := h.engine.AdjustPhaseTiming("action", 0); err == nil {
		t.Fatalf("expected rejection of non-positive duration")
	}
}

func TestEnforceRhythmPatternAppliesAtomically(t *testing.T) {
	h := newHarness(t)
	before := map[phase.Phase]time.Duration{}
	for _, spec := range h.table.Specs() {
		before[spec.Phase] = spec.Duration
	}
	if err := h.engine.EnforceRhythmPattern("focus-rest"); err != nil {
		t.Fatalf("enforce: %v", err)
	}
	lib := rhythm.NewLibrary()
	pattern, err := lib.Get("focus-rest")
	if err != nil {
		t.Fatalf("get pattern: %v", err)
	}
	for _, spec := range h.table.Specs() {
		if want, named := pattern.Durations[spec.Phase]; named {
			if spec.Duration != want {
				t.Fatalf("%s = %s, want %s", spec.Phase, spec.Duration, want)
			}
		} else if spec.Duration != before[spec.Phase] {
			t.Fatalf("%s changed though the preset does not name it", spec.Phase)
		}
	}
	if err := h.engine.EnforceRhythmPattern("vision-quest"); !errors.Is(err, rhythm.ErrUnknownPattern) {
		t.Fatalf("expected ErrUnknownPattern, got %v", err)
	}
}

func TestModulePanicIsIsolated(t *testing.T) {
	h := newHarness(t)
	rec := &recorder{}
	subscribeAll(t, h.engine, rec)
	steady := 0
	if err := h.engine.RegisterModule("steady", 2, func() { steady++ }); err != nil {
		t.Fatalf("register steady: %v", err)
	}
	if err := h.engine.RegisterModule("volatile", 2, func() { panic("synapse misfire") }); err != nil {
		t.Fatalf("register volatile: %v", err)
	}
	h.engine.Start()
	h.run(250*time.Millisecond, 8) // 2 simulated seconds
	if steady == 0 {
		t.Fatalf("healthy module starved by failing neighbor")
	}
	if got, _ := h.engine.CurrentPhase(); !got.Valid() {
		t.Fatalf("engine lost its phase after module panic")
	}
	failures := rec.ofType(events.TypeModuleError)
	if len(failures) == 0 {
		t.Fatalf("expected module_error events")
	}
	if failures[0].Data["module"] != "volatile" {
		t.Fatalf("module_error names %v, want volatile", failures[0].Data["module"])
	}
}

func TestCycleInfoUptime(t *testing.T) {
	h := newHarness(t)
	h.engine.Start()
	h.clock.Advance(2 * time.Second)
	if got := h.engine.CycleInfo().Uptime; got != 2*time.Second {
		t.Fatalf("uptime = %s, want 2s", got)
	}
	h.engine.Stop()
	h.clock.Advance(time.Minute)
	if got := h.engine.CycleInfo().Uptime; got != 2*time.Second {
		t.Fatalf("uptime advanced while stopped: %s", got)
	}
	h.engine.Start()
	h.clock.Advance(time.Second)
	if got := h.engine.CycleInfo().Uptime; got != 3*time.Second {
		t.Fatalf("uptime after resume = %s, want 3s", got)
	}
}

func TestCurrentPhaseBeforeFirstStart(t *testing.T) {
	h := newHarness(t)
	if _, started := h.engine.CurrentPhase(); started {
		t.Fatalf("engine reports a phase before first start")
	}
	info := h.engine.CycleInfo()
	if info.Started || info.Running {
		t.Fatalf("unexpected lifecycle flags: %+v", info)
	}
	if info.TotalDuration != h.table.TotalDuration() {
		t.Fatalf("total duration mismatch")
	}
}

func TestNewValidatesCollaborators(t *testing.T) {
	bus := events.NewBus()
	registry := module.NewRegistry()
	table := phase.NewTable()
	if _, err := New(nil, registry, bus); err == nil {
		t.Fatalf("expected error for nil table")
	}
	if _, err := New(table, nil, bus); err == nil {
		t.Fatalf("expected error for nil registry")
	}
	if _, err := New(table, registry, nil); err == nil {
		t.Fatalf("expected error for nil bus")
	}
}
