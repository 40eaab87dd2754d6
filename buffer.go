package sieve

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	ErrClosed = errors.New("buffer is closed")
)

// Predicate reports whether a consumer accepts an item. It must be pure.
type Predicate[Item any] = func(item Item) bool

// Buffer is a fixed-capacity ordered container with blocking insertion and blocking selective
// removal.
//
// Two counters gate access: slots (free capacity) and items (resident items not being
// scanned). Both are independent of the mutex that guards the sequence itself, so a caller
// waiting for availability never holds the lock.
//
// Note that a Buffer can stall: if it is full and no resident item matches the predicate of
// any waiting consumer, every TakeMatching and every Put block until cancelled. Callers are
// responsible for a collectively exhaustive set of predicates.
type Buffer[Item any] struct {
	cfg     *config[Item]
	metrics *metrics

	mu       sync.Mutex
	items    []Item
	inserted chan struct{}

	slots *semaphore.Weighted
	avail *semaphore.Weighted

	closing *atomic.Bool
	done    context.Context
	stop    func()
}

// New creates an empty buffer. The default capacity is 5.
func New[Item any](options ...Option[Item]) *Buffer[Item] {
	return newBuffer(newConfig(options...))
}

func newBuffer[Item any](cfg *config[Item]) *Buffer[Item] {
	var (
		capacity   = int64(cfg.capacity)
		done, stop = context.WithCancel(context.Background())
		avail      = semaphore.NewWeighted(capacity)
	)

	// The items counter starts empty.
	avail.TryAcquire(capacity)

	b := Buffer[Item]{
		cfg:     cfg,
		metrics: cfg.prometheus.metrics(),

		items:    make([]Item, 0, cfg.capacity),
		inserted: make(chan struct{}),

		slots: semaphore.NewWeighted(capacity),
		avail: avail,

		closing: new(atomic.Bool),
		done:    done,
		stop:    stop,
	}
	b.metrics.capacity.Set(float64(cfg.capacity))

	return &b
}

// Put appends item at the tail, blocking while the buffer is full.
//
// It returns ctx.Err() if ctx is done first and [ErrClosed] if the buffer is closed. In both
// cases the buffer is left unchanged.
func (b *Buffer[Item]) Put(ctx context.Context, item Item) error {
	started := time.Now()
	if err := b.acquire(ctx, b.slots); err != nil {
		return err
	}
	b.metrics.putWait.Observe(time.Since(started).Seconds())

	b.mu.Lock()
	if b.closing.Load() {
		b.mu.Unlock()
		b.slots.Release(1)
		return ErrClosed
	}

	b.items = append(b.items, item)
	index := len(b.items) - 1

	// Wake up everyone who scanned the buffer and found nothing.
	close(b.inserted)
	b.inserted = make(chan struct{})

	b.metrics.itemsPut.Inc()
	b.metrics.occupancy.Set(float64(len(b.items)))
	b.emit(Event[Item]{
		Kind:  Inserted,
		Value: item,
		Index: index,
	})
	b.mu.Unlock()

	b.avail.Release(1)

	return nil
}

// TakeMatching removes and returns the first item, in insertion order, for which match
// returns true. It blocks until such an item is present.
//
// A call that wakes up on an item it can't use hands the notification back before waiting
// for the next insertion, so a consumer with a different predicate can still claim that item.
//
// The consumer name used in [Removed] events is taken from ctx, see [WithConsumer].
func (b *Buffer[Item]) TakeMatching(ctx context.Context, match Predicate[Item]) (Item, error) {
	var (
		zero     Item
		consumer = ConsumerFrom(ctx)
	)
	for {
		if err := b.acquire(ctx, b.avail); err != nil {
			return zero, err
		}

		b.mu.Lock()
		if b.closing.Load() {
			b.mu.Unlock()
			b.avail.Release(1)
			return zero, ErrClosed
		}

		if i := slices.IndexFunc(b.items, match); i >= 0 {
			item := b.items[i]
			b.items = slices.Delete(b.items, i, i+1)

			b.metrics.itemsTaken.WithLabelValues(consumer).Inc()
			b.metrics.occupancy.Set(float64(len(b.items)))
			b.emit(Event[Item]{
				Kind:     Removed,
				Value:    item,
				Index:    i,
				Consumer: consumer,
			})
			b.mu.Unlock()

			b.slots.Release(1)
			return item, nil
		}

		// Nothing here for us. Any insertion after this point closes the captured channel,
		// so waiting on it can't miss an item.
		inserted := b.inserted
		b.mu.Unlock()

		b.avail.Release(1)
		b.metrics.misses.WithLabelValues(consumer).Inc()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-b.done.Done():
			return zero, ErrClosed
		case <-inserted:
		}
	}
}

// Snapshot returns a consistent copy of the buffer contents. It doesn't consume anything.
func (b *Buffer[Item]) Snapshot() Snapshot[Item] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

// Len returns the current occupancy.
func (b *Buffer[Item]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Cap returns the fixed capacity.
func (b *Buffer[Item]) Cap() int {
	return b.cfg.capacity
}

// Close unblocks every pending Put and TakeMatching with [ErrClosed]. The contents are kept
// and can still be read with Snapshot.
func (b *Buffer[Item]) Close() error {
	if b.closing.Swap(true) {
		return ErrClosed
	}
	b.stop()
	return nil
}

// acquire takes one permit from sem, giving up when either ctx or the buffer is done.
func (b *Buffer[Item]) acquire(ctx context.Context, sem *semaphore.Weighted) error {
	if b.closing.Load() {
		return ErrClosed
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	unregister := context.AfterFunc(b.done, func() { cancel(ErrClosed) })
	defer unregister()

	if err := sem.Acquire(ctx, 1); err != nil {
		if errors.Is(context.Cause(ctx), ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// snapshot must be called with b.mu held.
func (b *Buffer[Item]) snapshot() Snapshot[Item] {
	return Snapshot[Item]{
		Items:    slices.Clone(b.items),
		Capacity: b.cfg.capacity,
	}
}

// emit must be called with b.mu held, which keeps events in mutation order.
func (b *Buffer[Item]) emit(event Event[Item]) {
	if b.cfg.sink == nil {
		return
	}
	event.Contents = slices.Clone(b.items)
	event.Occupancy = len(b.items)
	event.Capacity = b.cfg.capacity
	b.cfg.sink.Observe(event)
}

// Snapshot is a point-in-time copy of a buffer's contents.
type Snapshot[Item any] struct {
	// Items holds the resident items in insertion order.
	Items []Item
	// Capacity is the capacity of the buffer the snapshot was taken from.
	Capacity int
}

// Occupancy returns the number of resident items.
func (s Snapshot[Item]) Occupancy() int {
	return len(s.Items)
}

// Slot returns the item at slot i, or false if the slot is free.
func (s Snapshot[Item]) Slot(i int) (Item, bool) {
	if i < 0 || i >= len(s.Items) {
		var zero Item
		return zero, false
	}
	return s.Items[i], true
}

func (s Snapshot[Item]) Full() bool {
	return len(s.Items) == s.Capacity
}

func (s Snapshot[Item]) Empty() bool {
	return len(s.Items) == 0
}

type consumerCtxKey struct{}

// WithConsumer returns a context that names the consumer calling TakeMatching.
func WithConsumer(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, consumerCtxKey{}, name)
}

// ConsumerFrom returns the consumer name stored by [WithConsumer], or an empty string.
func ConsumerFrom(ctx context.Context) string {
	name, _ := ctx.Value(consumerCtxKey{}).(string)
	return name
}
