// cmd/wave-runner/main.go
//
// Headless bounded runner: drives the scheduler for a fixed wall-clock
// window with counting modules and prints a firing report. Useful for
// checking rhythm configurations without the dashboard.

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/wavesync/internal/config"
	"github.com/kingrea/wavesync/internal/engine"
	"github.com/kingrea/wavesync/internal/events"
	"github.com/kingrea/wavesync/internal/module"
	"github.com/kingrea/wavesync/internal/phase"
	"github.com/kingrea/wavesync/internal/rhythm"
)

func main() {
	projectDir := flag.String("project", "", "path to the project directory (defaults to cwd)")
	duration := flag.Duration("duration", 30*time.Second, "how long to run the scheduler")
	pattern := flag.String("pattern", "", "rhythm pattern to apply before starting")
	mods := moduleFlag{}
	flag.Var(&mods, "module", "counting module as id=frequency_hz (repeatable)")
	flag.Parse()

	project := *projectDir
	if project == "" {
		var err error
		project, err = os.Getwd()
		if err != nil {
			die("determine working directory: %v", err)
		}
	}
	absoluteProject, err := filepath.Abs(project)
	if err != nil {
		die("resolve project dir: %v", err)
	}
	if err := config.InitWavesyncDir(absoluteProject); err != nil {
		die("init .wavesync: %v", err)
	}
	cfg, err := config.NewConfig(absoluteProject)
	if err != nil {
		die("load config: %v", err)
	}

	table := phase.NewTable()
	if overrides := cfg.PhaseOverrides(); len(overrides) > 0 {
		if err := table.ApplyDurations(overrides); err != nil {
			die("apply phase overrides: %v", err)
		}
	}
	library := rhythm.NewLibrary()
	if err := library.LoadPatternDir(cfg.PatternsDir()); err != nil {
		die("load rhythm patterns: %v", err)
	}

	registry := module.NewRegistry()
	bus := events.NewBus()
	eng, err := engine.New(table, registry, bus,
		engine.WithTickInterval(cfg.TickInterval()),
		engine.WithPatternLibrary(library),
		// Inline dispatch keeps the firing counts exact for the report.
		engine.WithSynchronousDispatch(),
	)
	if err != nil {
		die("build engine: %v", err)
	}
	if *pattern != "" {
		if err := eng.EnforceRhythmPattern(*pattern); err != nil {
			die("apply pattern %s: %v", *pattern, err)
		}
	}

	counts := &firingCounts{counts: map[string]int{}}
	if len(mods) == 0 {
		mods = moduleFlag{"heartbeat": 1}
	}
	for id, hz := range mods {
		moduleID := id
		if err := eng.RegisterModule(moduleID, hz, func() { counts.bump(moduleID) }); err != nil {
			die("register module %s: %v", moduleID, err)
		}
	}

	eng.OnEvent(events.TypePhaseStart, func(evt events.Event) {
		fmt.Printf("%s phase %s\n", time.Now().Format("15:04:05.000"), evt.Phase)
	})

	fmt.Printf("Running for %s (cycle period %s)...\n", *duration, table.TotalDuration())
	eng.Start()
	time.Sleep(*duration)
	eng.Stop()

	info := eng.CycleInfo()
	fmt.Printf("\nCompleted cycles: %d\n", info.CycleCount)
	fmt.Println("Module firings:")
	for _, line := range counts.report(mods) {
		fmt.Println("  " + line)
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

type firingCounts struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *firingCounts) bump(id string) {
	f.mu.Lock()
	f.counts[id]++
	f.mu.Unlock()
}

func (f *firingCounts) report(mods moduleFlag) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(mods))
	for id := range mods {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf("%-16s %d firings at %.2fHz", id, f.counts[id], mods[id]))
	}
	return lines
}

type moduleFlag map[string]float64

func (m *moduleFlag) String() string {
	if m == nil || len(*m) == 0 {
		return ""
	}
	var pairs []string
	for id, hz := range *m {
		pairs = append(pairs, fmt.Sprintf("%s=%g", id, hz))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ", ")
}

func (m *moduleFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected id=frequency_hz, got %q", value)
	}
	id := strings.TrimSpace(parts[0])
	if id == "" {
		return fmt.Errorf("module id is empty in %q", value)
	}
	hz, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return fmt.Errorf("parse frequency in %q: %w", value, err)
	}
	if *m == nil {
		*m = moduleFlag{}
	}
	(*m)[id] = hz
	return nil
}
