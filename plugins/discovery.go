package plugins

import (
	"fmt"

	"github.com/kingrea/wavesync/internal/config"
	"github.com/kingrea/wavesync/internal/module"
)

// RegisterPulsePlugins discovers YAML and Go module definitions under
// .wavesync/modules and registers each as a pulse module at its declared
// frequency.
func RegisterPulsePlugins(reg *module.Registry, cfg *config.Config, journal Recorder) error {
	if reg == nil || cfg == nil || journal == nil {
		return nil
	}
	defs, err := loadAllDefinitionFiles(cfg.ModulesDir())
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return nil
	}
	seen := make(map[string]string)
	for _, file := range defs {
		def := file.Definition
		if existing, ok := seen[def.ID]; ok {
			return fmt.Errorf("plugin: duplicate module id %s (%s and %s)", def.ID, existing, file.Path)
		}
		seen[def.ID] = file.Path
		if err := reg.Register(def.ID, def.FrequencyHz, def.Callback(journal)); err != nil {
			return fmt.Errorf("plugin: register %s from %s: %w", def.ID, file.Path, err)
		}
	}
	return nil
}

func loadAllDefinitionFiles(dir string) ([]DefinitionFile, error) {
	yamlDefs, err := LoadDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	goDefs, err := LoadGoDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	return append(yamlDefs, goDefs...), nil
}
