package sieve_test

import (
	"testing"

	"github.com/teenjuna/sieve"
	"github.com/teenjuna/sieve/internal/testing/require"
)

func TestOptions(t *testing.T) {
	require.PanicWithError(t, "capacity can't be < 1", func() {
		_ = sieve.WithCapacity[int](0)
	})

	require.PanicWithError(t, "observe interval can't be < 0", func() {
		_ = sieve.WithObserveInterval[int](-1)
	})

	require.PanicWithError(t, "logger can't be nil", func() {
		_ = sieve.WithLogger[int](nil)
	})

	require.PanicWithError(t, "prometheus can't be nil", func() {
		_ = sieve.WithPrometheus[int](nil)
	})
}

func TestDefaults(t *testing.T) {
	buffer := sieve.New[int]()
	require.Equal(t, buffer.Cap(), 5)
	require.Equal(t, buffer.Len(), 0)

	words := sieve.New(sieve.WithCapacity[string](1), sieve.WithSink[string](nil))
	require.Equal(t, words.Cap(), 1)
}
