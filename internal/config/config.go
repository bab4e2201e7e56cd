// internal/config/config.go
//
// This package handles configuration and the .wavesync directory structure.
// Every project that uses wavesync gets a .wavesync/ folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/wavesync/internal/phase"
)

const (
	// WavesyncDir is the name of the directory we create in each project
	WavesyncDir = ".wavesync"

	defaultTickIntervalMs = 250
)

const defaultProjectConfigYAML = `# wavesync project configuration
version: 1

# Internal scheduler heartbeat in milliseconds. Keep it finer than your
# shortest phase; the default suits the stock timings.
tick_interval_ms: 250

# Per-phase duration overrides in milliseconds. Phases you omit keep their
# built-in timing (perception 3000, analysis 5000, decision 2000,
# action 4000, reflection 6000).
phases: {}
  # perception: 3000
  # analysis: 5000

# HTTP bridge for external clock sources and remote rhythm control.
bridge:
  enabled: false
  host: 127.0.0.1
  port: 8343
`

// BridgeConfig captures the HTTP bridge block of .wavesync/config.yaml.
type BridgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// ProjectConfig models .wavesync/config.yaml.
type ProjectConfig struct {
	Version        int            `yaml:"version"`
	TickIntervalMs int            `yaml:"tick_interval_ms"`
	Phases         map[string]int `yaml:"phases"`
	Bridge         BridgeConfig   `yaml:"bridge"`
}

// Config holds the runtime configuration for wavesync.
type Config struct {
	// ProjectDir is the directory where the user ran `wavesync` from
	ProjectDir string

	// WavesyncProjectDir is ProjectDir/.wavesync
	WavesyncProjectDir string

	Project ProjectConfig
}

// InitWavesyncDir creates the .wavesync directory structure in the given
// project directory. This is called when the TUI starts up.
//
// Structure created:
// .wavesync/
// ├── logs/         <- Scheduler log and the cycle journal
// ├── state/        <- For persisting state between runs
// ├── patterns/     <- Rhythm pattern presets (*.yaml)
// └── modules/      <- Pulse module definitions (*.yaml, *.go)
func InitWavesyncDir(projectDir string) error {
	wavesyncDir := filepath.Join(projectDir, WavesyncDir)

	dirs := []string{
		filepath.Join(wavesyncDir, "logs"),
		filepath.Join(wavesyncDir, "state"),
		filepath.Join(wavesyncDir, "patterns"),
		filepath.Join(wavesyncDir, "modules"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return ensureProjectConfig(filepath.Join(wavesyncDir, "config.yaml"))
}

// NewConfig creates a new Config instance populated with project settings.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:         projectDir,
		WavesyncProjectDir: filepath.Join(projectDir, WavesyncDir),
		Project:            defaultProjectConfig(),
	}

	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.WavesyncProjectDir, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.WavesyncProjectDir, "state")
}

// PatternsDir returns the directory that holds rhythm pattern presets
func (c *Config) PatternsDir() string {
	return filepath.Join(c.WavesyncProjectDir, "patterns")
}

// ModulesDir returns the directory that holds pulse module definitions
func (c *Config) ModulesDir() string {
	return filepath.Join(c.WavesyncProjectDir, "modules")
}

// LogFilePath returns the scheduler's log file location.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogsDir(), "wavesync.log")
}

// JournalPath returns the cycle journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.LogsDir(), "journal.log")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.WavesyncProjectDir, "config.yaml")
}

// TickInterval returns the configured scheduler heartbeat.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Project.TickIntervalMs) * time.Millisecond
}

// PhaseOverrides returns the configured per-phase durations, keyed by parsed
// phase. Validation happened at load time, so the map is safe to apply.
func (c *Config) PhaseOverrides() map[phase.Phase]time.Duration {
	overrides := make(map[phase.Phase]time.Duration, len(c.Project.Phases))
	for name, ms := range c.Project.Phases {
		p, err := phase.Parse(name)
		if err != nil {
			continue
		}
		overrides[p] = time.Duration(ms) * time.Millisecond
	}
	return overrides
}

// Bridge returns the HTTP bridge block.
func (c *Config) Bridge() BridgeConfig {
	return c.Project.Bridge
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:        1,
		TickIntervalMs: defaultTickIntervalMs,
		Phases:         map[string]int{},
		Bridge: BridgeConfig{
			Host: "127.0.0.1",
			Port: 8343,
		},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.TickIntervalMs == 0 {
		pc.TickIntervalMs = defaultTickIntervalMs
	}
	if pc.Phases == nil {
		pc.Phases = map[string]int{}
	}
	if pc.Bridge.Host == "" {
		pc.Bridge.Host = "127.0.0.1"
	}
	if pc.Bridge.Port == 0 {
		pc.Bridge.Port = 8343
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Bridge.Host = strings.TrimSpace(pc.Bridge.Host)
	normalized := make(map[string]int, len(pc.Phases))
	for name, ms := range pc.Phases {
		normalized[strings.ToLower(strings.TrimSpace(name))] = ms
	}
	pc.Phases = normalized
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.TickIntervalMs < 1 {
		return fmt.Errorf("tick_interval_ms must be >= 1")
	}
	for name, ms := range pc.Phases {
		if _, err := phase.Parse(name); err != nil {
			return fmt.Errorf("phases[%s]: %w", name, err)
		}
		if ms < 1 {
			return fmt.Errorf("phases[%s]: duration must be >= 1ms", name)
		}
	}
	if pc.Bridge.Port < 1 || pc.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port must be in 1..65535")
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
