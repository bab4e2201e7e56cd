package plugins

import (
	"fmt"
	"math"
	"strings"
)

// ModuleDefinition describes a pulse module loaded from a definition file.
//
// The struct mirrors the on-disk schema under .wavesync/modules/*.yaml and is
// intentionally narrow so the scheduler can validate plugin metadata before
// wiring it into the registry.
type ModuleDefinition struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name,omitempty" yaml:"name,omitempty"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	FrequencyHz float64         `json:"frequency_hz" yaml:"frequency_hz"`
	Pulse       PulseDefinition `json:"pulse,omitempty" yaml:"pulse,omitempty"`
}

// Normalized returns a trimmed, copy-on-write variant of the definition.
func (def ModuleDefinition) Normalized() ModuleDefinition {
	return ModuleDefinition{
		ID:          strings.TrimSpace(def.ID),
		Name:        strings.TrimSpace(def.Name),
		Description: strings.TrimSpace(def.Description),
		FrequencyHz: def.FrequencyHz,
		Pulse:       def.Pulse.normalized(),
	}
}

// Validate ensures the plugin definition is well-formed.
func (def ModuleDefinition) Validate() error {
	normalized := def.Normalized()
	if normalized.ID == "" {
		return fmt.Errorf("plugin: id is required")
	}
	if normalized.FrequencyHz <= 0 || math.IsInf(normalized.FrequencyHz, 0) || math.IsNaN(normalized.FrequencyHz) {
		return fmt.Errorf("plugin %s: frequency_hz must be a positive number", normalized.ID)
	}
	if err := normalized.Pulse.Validate(); err != nil {
		return fmt.Errorf("plugin %s: pulse: %w", normalized.ID, err)
	}
	return nil
}

// PulseDefinition declares what a pulse module writes to the journal each
// time it fires. An empty message falls back to the module id.
type PulseDefinition struct {
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	Level   string `json:"level,omitempty" yaml:"level,omitempty"`
}

func (def PulseDefinition) normalized() PulseDefinition {
	return PulseDefinition{
		Message: strings.TrimSpace(def.Message),
		Level:   strings.ToLower(strings.TrimSpace(def.Level)),
	}
}

// Validate ensures the pulse level is a known journal severity.
func (def PulseDefinition) Validate() error {
	switch def.normalized().Level {
	case "", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("level must be info, warn, or error")
	}
}
