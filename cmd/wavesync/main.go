// cmd/wavesync/main.go
//
// This is the entry point for the wavesync dashboard.
// When you run `wavesync` from any directory, this is what executes.
//
// Flow:
// 1. Initialize the .wavesync folder for the current project
// 2. Wire the scheduler: timing table, module registry, event bus, engine
// 3. Load rhythm patterns and pulse plugins from the project directory
// 4. Optionally start the HTTP bridge, then run the TUI

package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/wavesync/internal/bridge"
	"github.com/kingrea/wavesync/internal/config"
	"github.com/kingrea/wavesync/internal/engine"
	"github.com/kingrea/wavesync/internal/events"
	"github.com/kingrea/wavesync/internal/logbook"
	"github.com/kingrea/wavesync/internal/logging"
	"github.com/kingrea/wavesync/internal/module"
	"github.com/kingrea/wavesync/internal/phase"
	"github.com/kingrea/wavesync/internal/rhythm"
	"github.com/kingrea/wavesync/internal/tui"
	"github.com/kingrea/wavesync/plugins"
)

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting working directory: %v\n", err)
		os.Exit(1)
	}

	if err := config.InitWavesyncDir(cwd); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing .wavesync directory: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.NewConfig(cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	journal, err := logbook.New(cfg.JournalPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening journal: %v\n", err)
		os.Exit(1)
	}

	table := phase.NewTable()
	if overrides := cfg.PhaseOverrides(); len(overrides) > 0 {
		if err := table.ApplyDurations(overrides); err != nil {
			fmt.Fprintf(os.Stderr, "Error applying phase overrides: %v\n", err)
			os.Exit(1)
		}
	}

	library := rhythm.NewLibrary()
	if err := library.LoadPatternDir(cfg.PatternsDir()); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading rhythm patterns: %v\n", err)
		os.Exit(1)
	}

	registry := module.NewRegistry()
	bus := events.NewBus()
	eng, err := engine.New(table, registry, bus,
		engine.WithTickInterval(cfg.TickInterval()),
		engine.WithLogger(logger),
		engine.WithPatternLibrary(library),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building engine: %v\n", err)
		os.Exit(1)
	}

	subscribeJournal(eng, journal)

	if err := plugins.RegisterPulsePlugins(registry, cfg, journal); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading pulse plugins: %v\n", err)
		os.Exit(1)
	}

	settings := bridge.SettingsFromConfig(cfg)
	var srv *bridge.Server
	if settings.Enabled {
		srv = bridge.NewServer(settings, eng, bridge.WithLogger(logger))
		if err := srv.Start(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting bridge: %v\n", err)
			os.Exit(1)
		}
		journal.Info("Bridge listening on %s", srv.Addr())
	}

	eng.Start()
	logger.Printf("wavesync: scheduler started in %s", cwd)

	app, err := tui.NewApp(cfg, eng, journal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building dashboard: %v\n", err)
		os.Exit(1)
	}
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}

	eng.Stop()
	if srv != nil {
		_ = srv.Shutdown(context.Background())
	}
	logger.Printf("wavesync: scheduler stopped")
}

// subscribeJournal turns the scheduler's boundary events into journal lines
// so the dashboard and post-hoc readers share one record.
func subscribeJournal(eng *engine.Engine, journal *logbook.Logbook) {
	eng.OnEvent(events.TypePhaseStart, func(evt events.Event) {
		journal.Info("Phase %s started", evt.Phase)
	})
	eng.OnEvent(events.TypeCycleComplete, func(evt events.Event) {
		journal.Info("Cycle %v complete", evt.Data["cycle"])
	})
	eng.OnEvent(events.TypeModuleError, func(evt events.Event) {
		journal.Error("Module %v failed: %v", evt.Data["module"], evt.Data["error"])
	})
}
