package sieve

import (
	"log/slog"
	"time"
)

type Option[Item any] = func(*config[Item])

// WithCapacity sets the fixed capacity of the buffer.
func WithCapacity[Item any](capacity int) Option[Item] {
	if capacity < 1 {
		panic("capacity can't be < 1")
	}
	return func(c *config[Item]) {
		c.capacity = capacity
	}
}

// WithSink sets the sink that receives buffer events. Pass nil to disable observation.
func WithSink[Item any](sink Sink[Item]) Option[Item] {
	return func(c *config[Item]) {
		c.sink = sink
	}
}

func WithLogger[Item any](logger *slog.Logger) Option[Item] {
	if logger == nil {
		panic("logger can't be nil")
	}
	return func(c *config[Item]) {
		c.logger = logger
	}
}

// WithObserveInterval sets how often the observer takes a snapshot during [Run]. Zero
// disables the observer.
func WithObserveInterval[Item any](interval time.Duration) Option[Item] {
	if interval < 0 {
		panic("observe interval can't be < 0")
	}
	return func(c *config[Item]) {
		c.observeInterval = interval
	}
}

func WithPrometheus[Item any](prometheus *PrometheusConfig) Option[Item] {
	if prometheus == nil {
		panic("prometheus can't be nil")
	}
	return func(c *config[Item]) {
		c.prometheus = prometheus
	}
}

type config[Item any] struct {
	capacity        int
	sink            Sink[Item]
	logger          *slog.Logger
	observeInterval time.Duration
	prometheus      *PrometheusConfig
}

func newConfig[Item any](options ...Option[Item]) *config[Item] {
	options = append([]Option[Item]{
		WithCapacity[Item](5),
		WithLogger[Item](slog.Default()),
		WithObserveInterval[Item](2 * time.Second),
		WithPrometheus[Item](Prometheus(nil)),
	}, options...)

	cfg := config[Item]{}
	for _, opt := range options {
		opt(&cfg)
	}

	return &cfg
}
