package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes trace events to an slog.Logger.
// Useful for development when you want to see sync events in console.
type SlogAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given
// slog.Logger at Debug level.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger, level: slog.LevelDebug}
}

// WithLevel returns a copy of the adapter that logs at level.
func (a *SlogAdapter) WithLevel(level slog.Level) *SlogAdapter {
	return &SlogAdapter{logger: a.logger, level: level}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("sub_id", event.SubscriptionID),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	if event.Resource != "" {
		attrs = append(attrs, slog.String("resource", event.Resource))
	}
	if event.Predicate != "" {
		attrs = append(attrs, slog.String("predicate", event.Predicate))
	}

	switch {
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
		if event.StateChange.Attempt > 0 {
			attrs = append(attrs, slog.Int("attempt", event.StateChange.Attempt))
		}
		if event.StateChange.RetryIn != nil {
			attrs = append(attrs, slog.Duration("retry_in", *event.StateChange.RetryIn))
		}
	case event.Change != nil:
		attrs = append(attrs, slog.String("kind", event.Change.Kind))
		if event.Change.Key != "" {
			attrs = append(attrs, slog.String("key", event.Change.Key))
		}
		if len(event.Change.Fields) > 0 {
			attrs = append(attrs, slog.Any("fields", event.Change.Fields))
		}
		if event.Change.Size > 0 {
			attrs = append(attrs, slog.Int("size", event.Change.Size))
		}
	case event.Summary != nil:
		attrs = append(attrs,
			slog.Int("count", event.Summary.Count),
			slog.String("representative_kind", event.Summary.RepresentativeKind),
			slog.Duration("window", event.Summary.Window),
		)
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Truncated {
			attrs = append(attrs, slog.Bool("truncated", true))
		}
	}

	a.logger.LogAttrs(context.Background(), a.level, "sync", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
