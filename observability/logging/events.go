package logging

import (
	"log/slog"
	"sort"

	"vwtips/core/events"
)

type eventLogger struct {
	logger *slog.Logger
}

// EventLogger returns an emitter that writes each event as one log line.
func EventLogger(logger *slog.Logger) events.Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return eventLogger{logger: logger}
}

func (l eventLogger) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	args := []any{slog.String("event", evt.EventType())}
	if typed, ok := evt.(events.Typed); ok {
		if raw := typed.Event(); raw != nil {
			keys := make([]string, 0, len(raw.Attributes))
			for key := range raw.Attributes {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				args = append(args, slog.String(key, raw.Attributes[key]))
			}
		}
	}
	l.logger.Info("contract event", args...)
}
