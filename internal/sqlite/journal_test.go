package sqlite_test

import (
	"path"
	"strconv"
	"testing"
	"time"

	"github.com/teenjuna/sieve/internal/sqlite"
	"github.com/teenjuna/sieve/internal/testing/require"
)

func TestOpen(t *testing.T) {
	run(t, func(t *testing.T, file string) {
		journal, err := sqlite.Open(sqlite.WithFile(file))
		require.Nil(t, err)
		require.NotNil(t, journal)
		deferClose(t, journal)

		runs, err := journal.Runs(10)
		require.Nil(t, err)
		require.Equal(t, runs, []sqlite.Run{})
	})
}

func TestRecord(t *testing.T) {
	run(t, func(t *testing.T, file string) {
		journal, _ := sqlite.Open(sqlite.WithFile(file))
		deferClose(t, journal)

		started := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
		id, err := journal.Record(sqlite.Run{
			StartedAt:  started,
			FinishedAt: started.Add(time.Second),
			Capacity:   2,
			Input:      4,
			Produced:   4,
			Residual:   []int{-1, -1},
			Consumers: []sqlite.ConsumerResult{
				{Name: "odd", Sum: 4, Count: 2, State: "terminated"},
				{Name: "even", Sum: 6, Count: 2, State: "terminated"},
			},
		})
		require.Nil(t, err)
		require.NotEqual(t, id, "")

		runs, err := journal.Runs(10)
		require.Nil(t, err)
		require.Equal(t, len(runs), 1)

		r := runs[0]
		require.Equal(t, r.ID, id)
		require.True(t, r.StartedAt.Equal(started))
		require.True(t, r.FinishedAt.Equal(started.Add(time.Second)))
		require.Equal(t, r.Capacity, 2)
		require.Equal(t, r.Input, 4)
		require.Equal(t, r.Produced, 4)
		require.Equal(t, r.Err, "")
		require.Equal(t, r.Residual, []int{-1, -1})
		require.Equal(t, r.Consumers, []sqlite.ConsumerResult{
			{Name: "odd", Sum: 4, Count: 2, State: "terminated"},
			{Name: "even", Sum: 6, Count: 2, State: "terminated"},
		})
	})
}

func TestRecordDuplicate(t *testing.T) {
	run(t, func(t *testing.T, file string) {
		journal, _ := sqlite.Open(sqlite.WithFile(file))
		deferClose(t, journal)

		r := sqlite.Run{
			ID:         "run",
			StartedAt:  time.Now(),
			FinishedAt: time.Now(),
			Consumers:  []sqlite.ConsumerResult{{Name: "odd", State: "running"}},
		}
		_, err := journal.Record(r)
		require.Nil(t, err)

		_, err = journal.Record(r)
		require.NotNil(t, err)

		// The failed transaction left nothing behind.
		runs, err := journal.Runs(10)
		require.Nil(t, err)
		require.Equal(t, len(runs), 1)
		require.Equal(t, len(runs[0].Consumers), 1)
	})
}

func TestRuns(t *testing.T) {
	run(t, func(t *testing.T, file string) {
		journal, _ := sqlite.Open(sqlite.WithFile(file))
		deferClose(t, journal)

		start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := range 5 {
			_, err := journal.Record(sqlite.Run{
				ID:         strconv.Itoa(i),
				StartedAt:  start.Add(time.Duration(i) * time.Minute),
				FinishedAt: start.Add(time.Duration(i)*time.Minute + time.Second),
				Input:      i,
				Consumers: []sqlite.ConsumerResult{
					{Name: "even", Sum: i, Count: 1, State: "terminated"},
				},
			})
			require.Nil(t, err)
		}

		runs, err := journal.Runs(3)
		require.Nil(t, err)
		require.Equal(t, len(runs), 3)
		for i, r := range runs {
			expected := 4 - i
			require.Equal(t, r.ID, strconv.Itoa(expected))
			require.Equal(t, r.Input, expected)
			require.Equal(t, r.Residual, []int{})
			require.Equal(t, r.Consumers, []sqlite.ConsumerResult{
				{Name: "even", Sum: expected, Count: 1, State: "terminated"},
			})
		}

		_, err = journal.Runs(0)
		require.NotNil(t, err)
	})
}

func TestClose(t *testing.T) {
	run(t, func(t *testing.T, file string) {
		journal, _ := sqlite.Open(sqlite.WithFile(file))
		require.Nil(t, journal.Close())

		id, err := journal.Record(sqlite.Run{StartedAt: time.Now(), FinishedAt: time.Now()})
		require.Equal(t, err, sqlite.ErrClosed)
		require.Equal(t, id, "")

		runs, err := journal.Runs(1)
		require.Equal(t, err, sqlite.ErrClosed)
		require.Nil(t, runs)
	})
}

func TestReopen(t *testing.T) {
	file := path.Join(t.TempDir(), "journal.db")

	journal, err := sqlite.Open(sqlite.WithFile(file))
	require.Nil(t, err)
	id, err := journal.Record(sqlite.Run{StartedAt: time.Now(), FinishedAt: time.Now()})
	require.Nil(t, err)
	require.Nil(t, journal.Close())

	journal, err = sqlite.Open(sqlite.WithFile(file), func(c *sqlite.Config) {
		c.Durable(true)
		c.Conns(2)
	})
	require.Nil(t, err)
	deferClose(t, journal)

	runs, err := journal.Runs(1)
	require.Nil(t, err)
	require.Equal(t, len(runs), 1)
	require.Equal(t, runs[0].ID, id)
}

func run(t *testing.T, fn func(t *testing.T, file string)) {
	t.Helper()
	t.Run("In file", func(t *testing.T) {
		t.Helper()
		fn(t, path.Join(t.TempDir(), "file"))
	})
	t.Run("In memory", func(t *testing.T) {
		t.Helper()
		fn(t, ":memory:")
	})
}

func deferClose(t *testing.T, journal *sqlite.Journal) {
	t.Cleanup(func() {
		if err := journal.Close(); err != nil {
			t.Fatalf("close journal: %v", err)
		}
	})
}
