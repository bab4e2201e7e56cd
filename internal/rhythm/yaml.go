package rhythm

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/wavesync/internal/phase"
)

// patternFile mirrors the on-disk schema under .wavesync/patterns/*.yaml.
// Durations are expressed in milliseconds to match the public API.
type patternFile struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Phases      map[string]int `yaml:"phases"`
}

// ParsePatternYAML decodes and validates a single pattern payload.
func ParsePatternYAML(data []byte) (Pattern, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Pattern{}, fmt.Errorf("rhythm: pattern payload is empty")
	}
	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Pattern{}, fmt.Errorf("rhythm: decode pattern: %w", err)
	}
	pattern := Pattern{
		Name:        file.Name,
		Description: file.Description,
	}
	if len(file.Phases) > 0 {
		pattern.Durations = make(map[phase.Phase]time.Duration, len(file.Phases))
		for name, ms := range file.Phases {
			ph, err := phase.Parse(name)
			if err != nil {
				return Pattern{}, fmt.Errorf("rhythm: pattern %s: %w", file.Name, err)
			}
			pattern.Durations[ph] = time.Duration(ms) * time.Millisecond
		}
	}
	normalized := pattern.Normalized()
	if err := normalized.Validate(); err != nil {
		return Pattern{}, err
	}
	return normalized, nil
}

// LoadPatternDir scans a directory for *.yaml patterns and installs them into
// the library. Missing directories are treated as "no custom patterns".
func (l *Library) LoadPatternDir(dir string) error {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("rhythm: read %s: %w", trimmed, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !isYAMLFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(trimmed, entry.Name()))
	}
	sort.Strings(paths)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("rhythm: read %s: %w", path, err)
		}
		pattern, err := ParsePatternYAML(data)
		if err != nil {
			return fmt.Errorf("rhythm: %s: %w", path, err)
		}
		if err := l.Add(pattern); err != nil {
			return fmt.Errorf("rhythm: %s: %w", path, err)
		}
	}
	return nil
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
