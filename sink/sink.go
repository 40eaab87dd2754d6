// This package contains implementations of the [sieve.Sink] interface.
//
// Every sink here honours the sink contract: Observe never blocks the buffer. Sinks that do
// slow work, like [ConsoleSink], are meant to be wrapped with [Async].
package sink

import (
	"github.com/teenjuna/sieve"
)

// Discard returns a sink that drops every event.
func Discard[Item any]() sieve.Sink[Item] {
	return sieve.SinkFunc[Item](func(sieve.Event[Item]) {})
}

// Tee returns a sink that passes every event to each of sinks, in order. Nil sinks are
// skipped.
func Tee[Item any](sinks ...sieve.Sink[Item]) sieve.Sink[Item] {
	return sieve.SinkFunc[Item](func(event sieve.Event[Item]) {
		for _, s := range sinks {
			if s != nil {
				s.Observe(event)
			}
		}
	})
}
