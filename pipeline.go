package sieve

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teenjuna/sieve/predicate"
)

// Sentinel is the reserved item that tells consumers the producer has no more data. It
// matches every consumer and is never a data value.
const Sentinel = math.MinInt

var (
	ErrNoConsumers       = errors.New("no consumers")
	ErrTooManyConsumers  = errors.New("more consumers than buffer capacity")
	ErrDuplicateConsumer = errors.New("duplicate consumer")
	ErrInvalidConsumer   = errors.New("invalid consumer")
)

// Consumer describes a single consumer of a [Run].
type Consumer struct {
	// Name identifies the consumer in events, metrics and results. Must be unique.
	Name string
	// Match is the consumer's predicate. It doesn't need to accept the [Sentinel], Run takes
	// care of that.
	Match Predicate[int]
}

// DefaultConsumers returns the even, odd and prime consumers.
func DefaultConsumers() []Consumer {
	return []Consumer{
		{Name: "even", Match: predicate.Even},
		{Name: "odd", Match: predicate.Odd},
		{Name: "prime", Match: predicate.Prime},
	}
}

// OrSentinel returns a predicate that accepts the [Sentinel] and everything match accepts.
func OrSentinel(match Predicate[int]) Predicate[int] {
	return func(item int) bool {
		return item == Sentinel || match(item)
	}
}

// ConsumerState is the lifecycle state of a consumer.
type ConsumerState int32

const (
	Running ConsumerState = iota
	Relayed
	Terminated
)

func (s ConsumerState) String() string {
	switch s {
	case Running:
		return "running"
	case Relayed:
		return "relayed"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ConsumerResult is what a consumer reports when it stops.
type ConsumerResult struct {
	Name string
	// Sum of every matched item.
	Sum int
	// Count of matched items.
	Count int
	// Taken holds matched items in the order they were removed.
	Taken []int
	// State the consumer stopped in. Anything but Terminated means it was cancelled.
	State ConsumerState
}

// Report describes a finished (or cancelled) [Run].
type Report struct {
	// Produced is the number of data items the producer put into the buffer.
	Produced int
	// Consumers holds one result per consumer, in declaration order.
	Consumers []ConsumerResult
	// Residual is the buffer contents after every actor stopped. A completed run leaves one
	// relayed sentinel per consumer in it.
	Residual Snapshot[int]
}

// Produce puts every input item into buffer in order, followed by k sentinels.
//
// It returns the number of data items put. On cancellation the buffer holds a prefix of
// input and the error wraps ctx.Err().
func Produce(ctx context.Context, buffer *Buffer[int], input []int, k int) (int, error) {
	for i, item := range input {
		if err := buffer.Put(ctx, item); err != nil {
			return i, fmt.Errorf("put item %d: %w", i, err)
		}
	}
	for i := range k {
		if err := buffer.Put(ctx, Sentinel); err != nil {
			return len(input), fmt.Errorf("put sentinel %d: %w", i, err)
		}
	}
	return len(input), nil
}

// Consume takes items matching the consumer's predicate until it receives the [Sentinel],
// which it puts back for the next consumer.
func Consume(ctx context.Context, buffer *Buffer[int], consumer Consumer) (ConsumerResult, error) {
	state := new(atomic.Int32)
	return consume(ctx, buffer, consumer, state)
}

func consume(
	ctx context.Context,
	buffer *Buffer[int],
	consumer Consumer,
	state *atomic.Int32,
) (result ConsumerResult, err error) {
	match := OrSentinel(consumer.Match)
	result = ConsumerResult{Name: consumer.Name, Taken: make([]int, 0)}
	ctx = WithConsumer(ctx, consumer.Name)

	// The state reached is reported on every return, cancelled or not.
	defer func() {
		result.State = ConsumerState(state.Load())
	}()

	for {
		item, err := buffer.TakeMatching(ctx, match)
		if err != nil {
			return result, fmt.Errorf("take: %w", err)
		}

		if item != Sentinel {
			result.Sum += item
			result.Count += 1
			result.Taken = append(result.Taken, item)
			continue
		}

		state.Store(int32(Relayed))
		if err := buffer.Put(ctx, Sentinel); err != nil {
			return result, fmt.Errorf("relay sentinel: %w", err)
		}
		state.Store(int32(Terminated))

		return result, nil
	}
}

// Run feeds input through a buffer to the consumers and waits until every consumer has
// received the sentinel.
//
// The producer and every consumer run in their own goroutine. If ctx is cancelled, all of
// them are unblocked and Run returns the cancellation error together with a report of the
// state reached. The report is never nil.
//
// Run doesn't check that the consumers' predicates cover every input item. If they don't, the
// buffer eventually stalls and Run blocks until ctx is cancelled.
func Run(
	ctx context.Context,
	input []int,
	consumers []Consumer,
	options ...Option[int],
) (*Report, error) {
	cfg := newConfig(options...)
	report := &Report{
		Consumers: make([]ConsumerResult, len(consumers)),
		Residual:  Snapshot[int]{Items: make([]int, 0), Capacity: cfg.capacity},
	}

	if err := Validate(consumers, cfg.capacity); err != nil {
		return report, err
	}

	var (
		buffer = newBuffer(cfg)
		states = make([]*atomic.Int32, len(consumers))

		workGroup, workCtx = errgroup.WithContext(ctx)

		observeCtx, observeStop = context.WithCancel(ctx)
		observeGroup            = new(errgroup.Group)
	)
	defer observeStop()

	for i := range consumers {
		states[i] = new(atomic.Int32)
	}

	if cfg.observeInterval > 0 {
		o := observer{
			cfg:       cfg,
			buffer:    buffer,
			consumers: consumers,
			states:    states,
		}
		observeGroup.Go(func() error {
			return o.run(observeCtx)
		})
	}

	workGroup.Go(func() error {
		logger := cfg.logger.With("actor", "producer")
		logger.Debug("producer started", "items", len(input), "sentinels", len(consumers))

		produced, err := Produce(workCtx, buffer, input, len(consumers))
		report.Produced = produced
		if err != nil {
			return fmt.Errorf("producer: %w", err)
		}

		logger.Debug("producer finished")
		return nil
	})

	for i, consumer := range consumers {
		workGroup.Go(func() error {
			logger := cfg.logger.With("actor", "consumer", "consumer", consumer.Name)
			logger.Debug("consumer started")

			result, err := consume(workCtx, buffer, consumer, states[i])
			report.Consumers[i] = result
			if err != nil {
				return fmt.Errorf("consumer %s: %w", consumer.Name, err)
			}

			logger.Debug("consumer terminated", "sum", result.Sum, "count", result.Count)
			return nil
		})
	}

	errs := make([]error, 0)
	if err := workGroup.Wait(); err != nil {
		errs = append(errs, err)
	}

	// The observer only stops once everybody else is done.
	observeStop()
	if err := observeGroup.Wait(); err != nil {
		errs = append(errs, fmt.Errorf("observer: %w", err))
	}

	report.Residual = buffer.Snapshot()
	if err := buffer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close buffer: %w", err))
	}

	return report, errors.Join(errs...)
}

// Validate checks the consumers [Run] would be started with: there must be at least one and
// no more than capacity, each with a unique non-blank name and a predicate.
func Validate(consumers []Consumer, capacity int) error {
	if len(consumers) == 0 {
		return ErrNoConsumers
	}
	// Every consumer relays the sentinel it took, so a completed run ends with one sentinel
	// per consumer in the buffer.
	if len(consumers) > capacity {
		return fmt.Errorf("%w: %d > %d", ErrTooManyConsumers, len(consumers), capacity)
	}

	names := make(map[string]struct{}, len(consumers))
	for i, c := range consumers {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: consumer %d has blank name", ErrInvalidConsumer, i)
		}
		if c.Match == nil {
			return fmt.Errorf("%w: consumer %s has nil predicate", ErrInvalidConsumer, c.Name)
		}
		if _, ok := names[c.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateConsumer, c.Name)
		}
		names[c.Name] = struct{}{}
	}

	return nil
}

type observer struct {
	cfg       *config[int]
	buffer    *Buffer[int]
	consumers []Consumer
	states    []*atomic.Int32
}

func (o *observer) run(ctx context.Context) error {
	tick := time.NewTicker(o.cfg.observeInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}

		snapshot := o.buffer.Snapshot()
		o.observe(Event[int]{
			Kind:      Snapshotted,
			Index:     -1,
			Contents:  snapshot.Items,
			Occupancy: snapshot.Occupancy(),
			Capacity:  snapshot.Capacity,
		})

		if o.stalled(snapshot) {
			o.cfg.logger.Warn(
				"buffer is full and no item matches a running consumer",
				"contents", snapshot.Items,
			)
			o.observe(Event[int]{
				Kind:      Stalled,
				Index:     -1,
				Contents:  snapshot.Items,
				Occupancy: snapshot.Occupancy(),
				Capacity:  snapshot.Capacity,
			})
		}
	}
}

func (o *observer) observe(event Event[int]) {
	if o.cfg.sink != nil {
		o.cfg.sink.Observe(event)
	}
}

// stalled reports whether the buffer can't make progress. A consumer blocked on relaying its
// sentinel doesn't count, because it doesn't take anything anymore.
func (o *observer) stalled(snapshot Snapshot[int]) bool {
	if !snapshot.Full() {
		return false
	}
	running := false
	for i, c := range o.consumers {
		if ConsumerState(o.states[i].Load()) != Running {
			continue
		}
		running = true
		match := OrSentinel(c.Match)
		for _, item := range snapshot.Items {
			if match(item) {
				return false
			}
		}
	}
	return running
}
