package sieve_test

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"testing/synctest"

	"github.com/teenjuna/sieve"
	"github.com/teenjuna/sieve/internal/testing/require"
	"github.com/teenjuna/sieve/predicate"
	"github.com/teenjuna/sieve/sink"
)

func TestBufferSelectiveTake(t *testing.T) {
	run(t, func(t *testing.T) {
		buffer := sieve.New(sieve.WithCapacity[int](5))
		require.Equal(t, buffer.Cap(), 5)

		for i := 1; i <= 5; i++ {
			require.Nil(t, buffer.Put(t.Context(), i))
		}
		require.Equal(t, buffer.Len(), 5)

		item, err := buffer.TakeMatching(t.Context(), predicate.Even)
		require.Nil(t, err)
		require.Equal(t, item, 2)

		// Items that stay keep their insertion order.
		require.Equal(t, buffer.Snapshot().Items, []int{1, 3, 4, 5})

		item, err = buffer.TakeMatching(t.Context(), predicate.Even)
		require.Nil(t, err)
		require.Equal(t, item, 4)

		item, err = buffer.TakeMatching(t.Context(), predicate.Prime)
		require.Nil(t, err)
		require.Equal(t, item, 3)

		require.Equal(t, buffer.Snapshot().Items, []int{1, 5})
		require.Equal(t, buffer.Len(), 2)
	})
}

func TestBufferPutBlocksWhenFull(t *testing.T) {
	run(t, func(t *testing.T) {
		buffer := sieve.New(sieve.WithCapacity[int](2))
		require.Nil(t, buffer.Put(t.Context(), 1))
		require.Nil(t, buffer.Put(t.Context(), 2))

		put := make(chan error, 1)
		go func() {
			put <- buffer.Put(t.Context(), 3)
		}()

		synctest.Wait()
		expectEmpty(t, put)
		require.Equal(t, buffer.Len(), 2)

		item, err := buffer.TakeMatching(t.Context(), predicate.Any)
		require.Nil(t, err)
		require.Equal(t, item, 1)

		synctest.Wait()
		require.Nil(t, expect(t, put))
		require.Equal(t, buffer.Snapshot().Items, []int{2, 3})
	})
}

func TestBufferTakeBlocksUntilMatch(t *testing.T) {
	run(t, func(t *testing.T) {
		buffer := sieve.New(sieve.WithCapacity[int](3))

		var (
			taken = make(chan int, 1)
			errs  = make(chan error, 1)
		)
		go func() {
			item, err := buffer.TakeMatching(t.Context(), predicate.Even)
			errs <- err
			taken <- item
		}()

		synctest.Wait()
		expectEmpty(t, taken)

		// Odd items don't wake the consumer up for good.
		require.Nil(t, buffer.Put(t.Context(), 1))
		require.Nil(t, buffer.Put(t.Context(), 3))
		synctest.Wait()
		expectEmpty(t, taken)

		require.Nil(t, buffer.Put(t.Context(), 4))
		synctest.Wait()
		require.Nil(t, expect(t, errs))
		require.Equal(t, expect(t, taken), 4)
		require.Equal(t, buffer.Snapshot().Items, []int{1, 3})
	})
}

func TestBufferNoLostWakeup(t *testing.T) {
	run(t, func(t *testing.T) {
		buffer := sieve.New(sieve.WithCapacity[int](2))

		var (
			even = make(chan int, 10)
			odd  = make(chan int, 10)
		)
		consume := func(name string, match sieve.Predicate[int], out chan<- int) {
			ctx := sieve.WithConsumer(t.Context(), name)
			for {
				item, err := buffer.TakeMatching(ctx, match)
				if err != nil {
					return
				}
				out <- item
			}
		}
		go consume("even", predicate.Even, even)
		go consume("odd", predicate.Odd, odd)
		synctest.Wait()

		// Whoever gets the notification first, the item must end up with the consumer that
		// can use it.
		for _, item := range []int{1, 3, 5, 2, 7, 4} {
			require.Nil(t, buffer.Put(t.Context(), item))
			synctest.Wait()
			require.Equal(t, buffer.Len(), 0)
		}

		require.Equal(t, drain(even), []int{2, 4})
		require.Equal(t, drain(odd), []int{1, 3, 5, 7})

		require.Nil(t, buffer.Close())
		synctest.Wait()
	})
}

func TestBufferPerPredicateFIFO(t *testing.T) {
	run(t, func(t *testing.T) {
		const items = 1000

		buffer := sieve.New(sieve.WithCapacity[int](7))

		var (
			wg      sync.WaitGroup
			results = make([][]int, 3)
			errs    = make(chan error, 3)
			matches = []sieve.Predicate[int]{
				func(n int) bool { return n%3 == 0 },
				func(n int) bool { return n%3 == 1 },
				func(n int) bool { return n%3 == 2 },
			}
		)
		for i, match := range matches {
			wg.Go(func() {
				for range items / 3 {
					item, err := buffer.TakeMatching(t.Context(), match)
					if err != nil {
						errs <- err
						return
					}
					results[i] = append(results[i], item)
				}
			})
		}

		input := make([]int, 0, items)
		for i := range items - items%3 {
			input = append(input, i)
		}
		rand.Shuffle(len(input), func(i, j int) { input[i], input[j] = input[j], input[i] })

		for _, item := range input {
			require.Nil(t, buffer.Put(t.Context(), item))
		}
		wg.Wait()
		expectEmpty(t, errs)

		// Each consumer sees its items in the order they were put.
		for i, match := range matches {
			expected := slices.DeleteFunc(slices.Clone(input), func(n int) bool { return !match(n) })
			require.Equal(t, results[i], expected)
		}
		require.Equal(t, buffer.Len(), 0)
	})
}

func TestBufferCancel(t *testing.T) {
	run(t, func(t *testing.T) {
		buffer := sieve.New(sieve.WithCapacity[int](1))

		// A take that never matches.
		ctx, cancel := context.WithCancel(t.Context())
		take := make(chan error, 1)
		go func() {
			_, err := buffer.TakeMatching(ctx, predicate.Negative)
			take <- err
		}()
		require.Nil(t, buffer.Put(t.Context(), 1))

		// A put into a full buffer.
		putCtx, putCancel := context.WithCancel(t.Context())
		put := make(chan error, 1)
		go func() {
			put <- buffer.Put(putCtx, 2)
		}()

		synctest.Wait()
		expectEmpty(t, take)
		expectEmpty(t, put)

		cancel()
		putCancel()
		synctest.Wait()
		require.ErrorIs(t, expect(t, take), context.Canceled)
		require.ErrorIs(t, expect(t, put), context.Canceled)

		// Cancelled calls leave nothing behind and the buffer is still usable.
		require.Equal(t, buffer.Snapshot().Items, []int{1})
		item, err := buffer.TakeMatching(t.Context(), predicate.Any)
		require.Nil(t, err)
		require.Equal(t, item, 1)
		require.Nil(t, buffer.Put(t.Context(), 3))
		require.Equal(t, buffer.Snapshot().Items, []int{3})

		// Already cancelled context never blocks.
		_, err = buffer.TakeMatching(ctx, predicate.Any)
		require.ErrorIs(t, err, context.Canceled)
		require.ErrorIs(t, buffer.Put(ctx, 4), context.Canceled)
	})
}

func TestBufferClose(t *testing.T) {
	run(t, func(t *testing.T) {
		buffer := sieve.New(sieve.WithCapacity[int](1))
		require.Nil(t, buffer.Put(t.Context(), 1))

		var (
			take = make(chan error, 1)
			put  = make(chan error, 1)
		)
		go func() {
			_, err := buffer.TakeMatching(t.Context(), predicate.Even)
			take <- err
		}()
		go func() {
			put <- buffer.Put(t.Context(), 2)
		}()

		synctest.Wait()
		expectEmpty(t, take)
		expectEmpty(t, put)

		require.Nil(t, buffer.Close())
		synctest.Wait()
		require.ErrorIs(t, expect(t, take), sieve.ErrClosed)
		require.ErrorIs(t, expect(t, put), sieve.ErrClosed)

		require.Equal(t, buffer.Close(), sieve.ErrClosed)
		require.ErrorIs(t, buffer.Put(t.Context(), 3), sieve.ErrClosed)
		_, err := buffer.TakeMatching(t.Context(), predicate.Any)
		require.ErrorIs(t, err, sieve.ErrClosed)

		// Contents survive closing.
		require.Equal(t, buffer.Snapshot().Items, []int{1})
	})
}

func TestBufferEvents(t *testing.T) {
	run(t, func(t *testing.T) {
		events := sink.Channel[int](16)
		buffer := sieve.New(
			sieve.WithCapacity[int](3),
			sieve.WithSink[int](events),
		)

		require.Nil(t, buffer.Put(t.Context(), 1))
		require.Nil(t, buffer.Put(t.Context(), 2))
		_, err := buffer.TakeMatching(sieve.WithConsumer(t.Context(), "even"), predicate.Even)
		require.Nil(t, err)

		got := events.Drain()
		require.Equal(t, got, []sieve.Event[int]{
			{
				Kind:      sieve.Inserted,
				Value:     1,
				Index:     0,
				Contents:  []int{1},
				Occupancy: 1,
				Capacity:  3,
			},
			{
				Kind:      sieve.Inserted,
				Value:     2,
				Index:     1,
				Contents:  []int{1, 2},
				Occupancy: 2,
				Capacity:  3,
			},
			{
				Kind:      sieve.Removed,
				Value:     2,
				Index:     1,
				Consumer:  "even",
				Contents:  []int{1},
				Occupancy: 1,
				Capacity:  3,
			},
		})
	})
}

func TestSnapshot(t *testing.T) {
	buffer := sieve.New(sieve.WithCapacity[string](3))
	require.Nil(t, buffer.Put(t.Context(), "a"))

	snapshot := buffer.Snapshot()
	require.Equal(t, snapshot.Occupancy(), 1)
	require.Equal(t, snapshot.Capacity, 3)
	require.Equal(t, snapshot.Empty(), false)
	require.Equal(t, snapshot.Full(), false)

	item, ok := snapshot.Slot(0)
	require.Equal(t, ok, true)
	require.Equal(t, item, "a")

	item, ok = snapshot.Slot(1)
	require.Equal(t, ok, false)
	require.Equal(t, item, "")

	// Snapshot is a copy.
	snapshot.Items[0] = "b"
	require.Equal(t, buffer.Snapshot().Items, []string{"a"})
}

func TestBufferCapacityInvariant(t *testing.T) {
	run(t, func(t *testing.T) {
		const capacity = 3

		events := sink.Channel[int](4096)
		buffer := sieve.New(
			sieve.WithCapacity[int](capacity),
			sieve.WithSink[int](events),
		)

		var wg sync.WaitGroup
		for _, match := range []sieve.Predicate[int]{predicate.Even, predicate.Odd, predicate.Prime} {
			wg.Go(func() {
				for {
					if _, err := buffer.TakeMatching(t.Context(), match); err != nil {
						return
					}
				}
			})
		}

		for range 500 {
			require.Nil(t, buffer.Put(t.Context(), rand.IntN(100)))
		}
		synctest.Wait()
		require.Equal(t, buffer.Len(), 0)
		require.Nil(t, buffer.Close())
		wg.Wait()

		var inserted, removed int
		for _, event := range events.Drain() {
			require.LessOrEqual(t, event.Occupancy, capacity)
			require.LessOrEqual(t, 0, event.Occupancy)
			require.Equal(t, event.Occupancy, len(event.Contents))
			switch event.Kind {
			case sieve.Inserted:
				inserted += 1
			case sieve.Removed:
				removed += 1
			}
		}
		require.Equal(t, events.Dropped(), int64(0))
		require.Equal(t, inserted, 500)
		require.Equal(t, removed, 500)
	})
}

func run(t *testing.T, fn func(t *testing.T)) {
	t.Helper()
	synctest.Test(t, fn)
}

func expect[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	default:
		t.Fatal("channel is empty")
		panic("unreachable")
	}
}

func expectEmpty[T any](t *testing.T, ch chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("channel is not empty: %v", v)
	default:
	}
}

func drain[T any](ch chan T) []T {
	items := make([]T, 0)
	for {
		select {
		case v := <-ch:
			items = append(items, v)
		default:
			return items
		}
	}
}
