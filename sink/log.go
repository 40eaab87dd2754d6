package sink

import (
	"context"
	"log/slog"

	"github.com/teenjuna/sieve"
)

var _ sieve.Sink[any] = (*LogSink[any])(nil)

// LogSink writes every event to a structured logger at debug level, stalls at warn level.
type LogSink[Item any] struct {
	logger *slog.Logger
}

func Log[Item any](logger *slog.Logger) *LogSink[Item] {
	if logger == nil {
		panic("logger can't be nil")
	}
	return &LogSink[Item]{logger: logger.With("component", "sieve")}
}

func (s *LogSink[Item]) Observe(event sieve.Event[Item]) {
	level := slog.LevelDebug
	if event.Kind == sieve.Stalled {
		level = slog.LevelWarn
	}

	// Check first, so disabled levels cost nothing.
	ctx := context.Background()
	if !s.logger.Enabled(ctx, level) {
		return
	}

	attrs := []slog.Attr{
		slog.String("event", event.Kind.String()),
		slog.Int("occupancy", event.Occupancy),
		slog.Int("capacity", event.Capacity),
		slog.Any("contents", event.Contents),
	}
	switch event.Kind {
	case sieve.Inserted:
		attrs = append(attrs, slog.Any("value", event.Value), slog.Int("index", event.Index))
	case sieve.Removed:
		attrs = append(attrs,
			slog.Any("value", event.Value),
			slog.Int("index", event.Index),
			slog.String("consumer", event.Consumer),
		)
	}

	s.logger.LogAttrs(ctx, level, "buffer "+event.Kind.String(), attrs...)
}
