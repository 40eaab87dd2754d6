package sink

import (
	"sync"
	"sync/atomic"

	"github.com/teenjuna/sieve"
)

var _ sieve.Sink[any] = (*AsyncSink[any])(nil)

// AsyncSink hands events over to a separate goroutine which passes them to the wrapped sink.
// Events that don't fit into the hand-over queue are dropped and counted, so a slow inner sink
// never slows the buffer down.
type AsyncSink[Item any] struct {
	inner   sieve.Sink[Item]
	ch      chan sieve.Event[Item]
	dropped *atomic.Int64
	closing *atomic.Bool
	done    chan struct{}

	// Guards against sending on ch while Close closes it.
	mu sync.RWMutex
}

// Async starts the delivery goroutine. Call Close to stop it.
func Async[Item any](inner sieve.Sink[Item], size int) *AsyncSink[Item] {
	if inner == nil {
		panic("inner sink can't be nil")
	}
	if size < 1 {
		panic("size can't be < 1")
	}

	s := AsyncSink[Item]{
		inner:   inner,
		ch:      make(chan sieve.Event[Item], size),
		dropped: new(atomic.Int64),
		closing: new(atomic.Bool),
		done:    make(chan struct{}),
	}

	go s.worker()

	return &s
}

func (s *AsyncSink[Item]) Observe(event sieve.Event[Item]) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closing.Load() || !notify(s.ch, event) {
		s.dropped.Add(1)
	}
}

// Dropped returns the number of events that were not delivered.
func (s *AsyncSink[Item]) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting events and waits until every queued event was delivered. Calling it
// more than once is safe.
func (s *AsyncSink[Item]) Close() error {
	s.mu.Lock()
	if !s.closing.Swap(true) {
		close(s.ch)
	}
	s.mu.Unlock()

	<-s.done
	return nil
}

func (s *AsyncSink[Item]) worker() {
	defer close(s.done)
	for event := range s.ch {
		s.inner.Observe(event)
	}
}
