package plugins

import (
	"github.com/kingrea/wavesync/internal/module"
)

// Recorder receives the journal lines pulse modules emit when they fire.
// *logbook.Logbook satisfies it.
type Recorder interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Callback builds the registry callback for a pulse module: each firing
// writes the definition's message to the journal at its configured level.
func (def ModuleDefinition) Callback(journal Recorder) module.Callback {
	normalized := def.Normalized()
	message := normalized.Pulse.Message
	if message == "" {
		message = normalized.ID + " pulse"
	}
	write := journal.Info
	switch normalized.Pulse.Level {
	case "warn":
		write = journal.Warn
	case "error":
		write = journal.Error
	}
	return func() {
		write("%s", message)
	}
}
