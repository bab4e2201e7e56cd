package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/kingrea/wavesync/internal/events"
	"github.com/kingrea/wavesync/internal/module"
	"github.com/kingrea/wavesync/internal/phase"
	"github.com/kingrea/wavesync/internal/rhythm"
)

// DefaultTickInterval is the internal heartbeat at which phase-elapsed and
// module-due checks run. Finer than the shortest default phase so boundary
// jitter stays well under one phase.
const DefaultTickInterval = 250 * time.Millisecond

// Logger records engine diagnostics. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

// CycleInfo is a read-only snapshot of the engine, recomputed on demand.
type CycleInfo struct {
	Running       bool
	Started       bool
	Phase         phase.Phase
	CycleCount    int
	TotalDuration time.Duration
	Uptime        time.Duration
}

// Engine owns the phase timing table, the module registry handle, and the
// event bus, and coordinates them from one tick loop.
type Engine struct {
	table    *phase.Table
	registry *module.Registry
	bus      *events.Bus
	library  *rhythm.Library
	logger   Logger
	clock    func() time.Time

	tickInterval time.Duration
	dispatch     func(id string, cb module.Callback)

	mu             sync.Mutex
	running        bool
	started        bool
	current        phase.Phase
	phaseEnteredAt time.Time
	phaseDuration  time.Duration
	cycleCount     int
	startedAt      time.Time
	priorUptime    time.Duration
	stopCh         chan struct{}
	loopDone       chan struct{}
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithTickInterval overrides the internal heartbeat.
func WithTickInterval(interval time.Duration) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.tickInterval = interval
		}
	}
}

// WithLogger injects a logger for module failures and sync diagnostics.
func WithLogger(logger Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPatternLibrary overrides the built-in rhythm pattern library.
func WithPatternLibrary(library *rhythm.Library) Option {
	return func(e *Engine) {
		if library != nil {
			e.library = library
		}
	}
}

// WithSynchronousDispatch runs module callbacks inline on the tick instead
// of on their own goroutines. Deterministic harnesses and the bounded
// runner use this to observe exact firing counts.
func WithSynchronousDispatch() Option {
	return func(e *Engine) {
		e.dispatch = func(id string, cb module.Callback) {
			e.runCallback(id, cb)
		}
	}
}

// New wires an engine to its timing table, module registry, and event bus.
func New(table *phase.Table, registry *module.Registry, bus *events.Bus, opts ...Option) (*Engine, error) {
	if table == nil {
		return nil, fmt.Errorf("engine: phase table is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("engine: module registry is required")
	}
	if bus == nil {
		return nil, fmt.Errorf("engine: event bus is required")
	}
	e := &Engine{
		table:        table,
		registry:     registry,
		bus:          bus,
		library:      rhythm.NewLibrary(),
		clock:        time.Now,
		tickInterval: DefaultTickInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.dispatch == nil {
		e.dispatch = func(id string, cb module.Callback) {
			go e.runCallback(id, cb)
		}
	}
	return e, nil
}

// Start transitions the engine from stopped to running and begins tick
// processing. Calling Start while already running is a no-op and never
// resets the cycle count. The very first start enters perception and emits
// its phase_start; a later resume restarts the current phase's timer
// without emitting boundary events.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	now := e.clock()
	var opening *events.Event
	if !e.started {
		e.started = true
		e.current = phase.Perception
		evt := e.event(events.TypePhaseStart, e.current, now)
		opening = &evt
	}
	e.phaseDuration = e.table.Duration(e.current)
	e.phaseEnteredAt = now
	e.startedAt = now
	e.running = true
	e.stopCh = make(chan struct{})
	e.loopDone = make(chan struct{})
	go e.loop(e.stopCh, e.loopDone)
	e.mu.Unlock()
	if opening != nil {
		e.bus.Publish(*opening)
	}
}

// Stop halts tick processing while preserving the cycle count and current
// phase for inspection. Calling Stop while already stopped is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.priorUptime += e.clock().Sub(e.startedAt)
	close(e.stopCh)
	done := e.loopDone
	e.mu.Unlock()
	<-done
}

// CurrentPhase returns the active phase. The second return is false until
// the engine has been started at least once.
func (e *Engine) CurrentPhase() (phase.Phase, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.started
}

// CycleInfo returns the derived snapshot described by the public contract.
func (e *Engine) CycleInfo() CycleInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	info := CycleInfo{
		Running:       e.running,
		Started:       e.started,
		Phase:         e.current,
		CycleCount:    e.cycleCount,
		TotalDuration: e.table.TotalDuration(),
		Uptime:        e.priorUptime,
	}
	if e.running {
		info.Uptime += e.clock().Sub(e.startedAt)
	}
	return info
}

// RegisterModule installs a module callback at its own firing frequency.
func (e *Engine) RegisterModule(id string, frequencyHz float64, callback module.Callback) error {
	return e.registry.Register(id, frequencyHz, callback)
}

// UnregisterModule removes a module. Once it returns, the module never
// fires again; unknown ids yield an advisory module.ErrUnknownModule.
func (e *Engine) UnregisterModule(id string) error {
	return e.registry.Unregister(id)
}

// Modules returns the current registrations for dashboards.
func (e *Engine) Modules() []module.Registration {
	return e.registry.Snapshot()
}

// OnEvent subscribes a handler to one event type. The returned subscription
// must be closed by the caller when the interest ends.
func (e *Engine) OnEvent(t events.Type, handler events.Handler) events.Subscription {
	return e.bus.Subscribe(t, handler)
}

// AdjustPhaseTiming updates one phase duration. The change applies the next
// time that phase is entered; a phase already in progress keeps the
// duration it was entered with.
func (e *Engine) AdjustPhaseTiming(phaseName string, duration time.Duration) error {
	p, err := phase.Parse(phaseName)
	if err != nil {
		return err
	}
	return e.table.SetDuration(p, duration)
}

// EnforceRhythmPattern applies a named preset's duration overrides
// atomically through the same path as AdjustPhaseTiming. Phases the pattern
// does not name are untouched, and module frequencies never change.
func (e *Engine) EnforceRhythmPattern(patternName string) error {
	pattern, err := e.library.Get(patternName)
	if err != nil {
		return err
	}
	return e.table.ApplyDurations(pattern.Durations)
}

// PhaseSpecs exposes the timing table rows for dashboards.
func (e *Engine) PhaseSpecs() []phase.Spec {
	return e.table.Specs()
}

// Patterns exposes the rhythm pattern names for dashboards.
func (e *Engine) Patterns() []string {
	return e.library.Names()
}

func (e *Engine) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.tick(e.clock())
		}
	}
}

// tick runs one heartbeat: at most one phase transition, then a due-scan of
// the registry. Boundary events are published outside the state lock in
// emission order. A tick that arrives late simply transitions on arrival;
// the loop self-corrects rather than accumulating drift.
func (e *Engine) tick(now time.Time) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	var emissions []events.Event
	if now.Sub(e.phaseEnteredAt) >= e.phaseDuration {
		outgoing := e.current
		incoming := outgoing.Next()
		emissions = append(emissions, e.event(events.TypePhaseEnd, outgoing, now))
		e.current = incoming
		e.phaseEnteredAt = now
		e.phaseDuration = e.table.Duration(incoming)
		emissions = append(emissions, e.event(events.TypePhaseStart, incoming, now))
		if incoming == phase.Perception {
			e.cycleCount++
			wrap := events.New(events.TypeCycleComplete, "")
			wrap.Timestamp = now
			wrap.Data = map[string]any{"cycle": e.cycleCount}
			emissions = append(emissions, wrap)
		}
	}
	e.mu.Unlock()
	for _, evt := range emissions {
		e.bus.Publish(evt)
	}
	for _, id := range e.registry.Due(now) {
		// Re-check liveness at dispatch so an unregister that raced the
		// due-scan wins.
		if cb, ok := e.registry.Callback(id); ok {
			e.dispatch(id, cb)
		}
	}
}

// runCallback isolates a module firing: a panicking module is reported via
// a module_error event and a log line, and never disturbs the loop or the
// other modules.
func (e *Engine) runCallback(id string, cb module.Callback) {
	defer func() {
		if r := recover(); r != nil {
			evt := events.New(events.TypeModuleError, "")
			evt.Timestamp = e.clock()
			evt.Data = map[string]any{"module": id, "error": fmt.Sprint(r)}
			e.bus.Publish(evt)
			e.logf("engine: module %s failed: %v", id, r)
		}
	}()
	cb()
}

func (e *Engine) event(t events.Type, p phase.Phase, now time.Time) events.Event {
	evt := events.New(t, p.String())
	evt.Timestamp = now
	return evt
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}
