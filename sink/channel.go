package sink

import (
	"sync/atomic"

	"github.com/teenjuna/sieve"
)

var _ sieve.Sink[any] = (*ChannelSink[any])(nil)

// ChannelSink delivers events to a buffered channel. When the channel is full, the event is
// dropped and counted.
type ChannelSink[Item any] struct {
	ch      chan sieve.Event[Item]
	dropped *atomic.Int64
}

func Channel[Item any](size int) *ChannelSink[Item] {
	if size < 0 {
		panic("size can't be < 0")
	}
	return &ChannelSink[Item]{
		ch:      make(chan sieve.Event[Item], size),
		dropped: new(atomic.Int64),
	}
}

func (s *ChannelSink[Item]) Observe(event sieve.Event[Item]) {
	if !notify(s.ch, event) {
		s.dropped.Add(1)
	}
}

// C returns the channel events are delivered to. It is never closed.
func (s *ChannelSink[Item]) C() <-chan sieve.Event[Item] {
	return s.ch
}

// Dropped returns the number of events that didn't fit into the channel.
func (s *ChannelSink[Item]) Dropped() int64 {
	return s.dropped.Load()
}

// Drain returns every event currently queued in the channel without blocking.
func (s *ChannelSink[Item]) Drain() []sieve.Event[Item] {
	events := make([]sieve.Event[Item], 0, len(s.ch))
	for {
		select {
		case event := <-s.ch:
			events = append(events, event)
		default:
			return events
		}
	}
}

func notify[T any](ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
		return false
	}
}
