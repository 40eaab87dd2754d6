// Package sqlite keeps a journal of finished runs in SQLite. It never stores buffer state.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrClosed is returned by Journal methods when the journal has been closed.
	ErrClosed = errors.New("journal is closed")
)

const (
	memory = ":memory:"
)

// Journal is a history of runs backed by SQLite.
type Journal struct {
	cfg *Config
	db  *sql.DB
}

// Open opens a Journal with the provided configuration functions, creating the schema if it
// doesn't exist yet.
//
// Default configuration:
//   - File: ":memory:" (in-memory database)
//   - Durable: false
//   - Conns: 1
func Open(configFuncs ...ConfigFunc) (*Journal, error) {
	cfg := &Config{}
	cfg.File(memory)
	cfg.Conns(1)
	for _, cf := range configFuncs {
		cf(cfg)
	}

	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	if err := setup(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setup: %w", err)
	}

	journal := Journal{
		cfg: cfg,
		db:  db,
	}

	return &journal, nil
}

// Record stores a finished run together with its consumer results and returns its ID. If
// run.ID is empty, a new one is generated.
//
// Returns [ErrClosed] if the journal has been closed.
func (j *Journal) Record(run Run) (RunID, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Residual == nil {
		run.Residual = make([]int, 0)
	}

	residual, err := json.Marshal(run.Residual)
	if err != nil {
		return "", fmt.Errorf("marshal residual: %w", err)
	}

	tx, err := j.db.Begin()
	if err != nil {
		return "", closed(err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(
		`
		insert into run (
			id,
			started_at,
			finished_at,
			capacity,
			input,
			produced,
			error,
			residual
		) values (
			:id,
			:started_at,
			:finished_at,
			:capacity,
			:input,
			:produced,
			:error,
			:residual
		)
		`,
		sql.Named("id", run.ID),
		sql.Named("started_at", toTimestamp(run.StartedAt)),
		sql.Named("finished_at", toTimestamp(run.FinishedAt)),
		sql.Named("capacity", run.Capacity),
		sql.Named("input", run.Input),
		sql.Named("produced", run.Produced),
		sql.Named("error", run.Err),
		sql.Named("residual", string(residual)),
	); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for i, c := range run.Consumers {
		if _, err := tx.Exec(
			`
			insert into consumer_result (
				run_id,
				position,
				name,
				sum,
				count,
				state
			) values (
				:run_id,
				:position,
				:name,
				:sum,
				:count,
				:state
			)
			`,
			sql.Named("run_id", run.ID),
			sql.Named("position", i),
			sql.Named("name", c.Name),
			sql.Named("sum", c.Sum),
			sql.Named("count", c.Count),
			sql.Named("state", c.State),
		); err != nil {
			return "", fmt.Errorf("insert consumer %s: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	return run.ID, nil
}

// Runs returns up to limit most recent runs, newest first.
//
// Returns [ErrClosed] if the journal has been closed.
func (j *Journal) Runs(limit int) ([]Run, error) {
	if limit < 1 {
		return nil, errors.New("limit can't be < 1")
	}

	rows, err := j.db.Query(
		`
		select
			id,
			started_at,
			finished_at,
			capacity,
			input,
			produced,
			error,
			residual
		from
			run
		order by
			started_at desc,
			id asc
		limit :limit
		`,
		sql.Named("limit", limit),
	)
	if err != nil {
		return nil, closed(err)
	}
	defer rows.Close()

	type rawRun struct {
		ID         string
		StartedAt  int64
		FinishedAt int64
		Capacity   int
		Input      int
		Produced   int
		Err        string
		Residual   string
	}

	var (
		runs  = make([]Run, 0, limit)
		index = make(map[RunID]int, limit)
	)

	for rows.Next() {
		var r rawRun
		if err := rows.Scan(
			&r.ID,
			&r.StartedAt,
			&r.FinishedAt,
			&r.Capacity,
			&r.Input,
			&r.Produced,
			&r.Err,
			&r.Residual,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		residual := make([]int, 0)
		if err := json.Unmarshal([]byte(r.Residual), &residual); err != nil {
			return nil, fmt.Errorf("unmarshal residual of %s: %w", r.ID, err)
		}

		index[r.ID] = len(runs)
		runs = append(runs, Run{
			ID:         r.ID,
			StartedAt:  fromTimestamp(r.StartedAt),
			FinishedAt: fromTimestamp(r.FinishedAt),
			Capacity:   r.Capacity,
			Input:      r.Input,
			Produced:   r.Produced,
			Err:        r.Err,
			Residual:   residual,
			Consumers:  make([]ConsumerResult, 0),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	// Release the connection before the next query, in-memory journals only have one.
	_ = rows.Close()

	if len(runs) == 0 {
		return runs, nil
	}

	ids := make([]RunID, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}

	rows, err = j.db.Query(
		`
		select
			run_id,
			name,
			sum,
			count,
			state
		from
			consumer_result
		where
			run_id in (
				select value from json_each(:ids)
			)
		order by
			run_id,
			position
		`,
		sql.Named("ids", jsonIDs(ids)),
	)
	if err != nil {
		return nil, closed(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id RunID
			c  ConsumerResult
		)
		if err := rows.Scan(&id, &c.Name, &c.Sum, &c.Count, &c.State); err != nil {
			return nil, fmt.Errorf("scan consumer: %w", err)
		}
		i := index[id]
		runs[i].Consumers = append(runs[i].Consumers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan consumer: %w", err)
	}

	return runs, nil
}

// Close closes the underlying SQLite database.
//
// After closing, all methods on Journal will return [ErrClosed].
func (j *Journal) Close() error {
	return j.db.Close()
}

// Run is a finished run.
type Run struct {
	// ID is the unique identifier of this run.
	ID RunID
	// StartedAt is the time when the run started.
	StartedAt time.Time
	// FinishedAt is the time when every actor of the run stopped.
	FinishedAt time.Time
	// Capacity of the buffer.
	Capacity int
	// Input is the number of loaded items.
	Input int
	// Produced is the number of items the producer managed to put.
	Produced int
	// Err is the text of the error the run ended with. Empty on success.
	Err string
	// Residual is the buffer contents after the run.
	Residual []int
	// Consumers in declaration order.
	Consumers []ConsumerResult
}

type RunID = string

// ConsumerResult is the outcome of one consumer of a run.
type ConsumerResult struct {
	Name  string
	Sum   int
	Count int
	State string
}

func open(cfg *Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", cfg.uri(uuid.NewString()))
	if err != nil {
		return nil, err
	}

	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)
	if cfg.memory() {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.conns)
		db.SetMaxIdleConns(cfg.conns)
	}

	return db, nil
}

func setup(db *sql.DB) error {
	// Create table for runs.
	if _, err := db.Exec(
		`
		create table if not exists run (
			id          text primary key,
			started_at  int not null,
			finished_at int not null,
			capacity    int not null,
			input       int not null,
			produced    int not null,
			error       text not null,
			residual    text not null
		) strict
		`,
	); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	// Create table for consumer results.
	if _, err := db.Exec(
		`
		create table if not exists consumer_result (
			run_id   text not null references run (id) on delete cascade,
			position int not null,
			name     text not null,
			sum      int not null,
			count    int not null,
			state    text not null,
			primary key (run_id, position)
		) strict
		`,
	); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	// Create the index for the history listing.
	if _, err := db.Exec(
		`
		create index if not exists idx_run_started_at
		on run (started_at desc, id)
		`,
	); err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	return nil
}

func closed(err error) error {
	if err != nil && err.Error() == "sql: database is closed" {
		return ErrClosed
	}
	return err
}

func jsonIDs(ids []RunID) string {
	jsonIDs, _ := json.Marshal(ids)
	return string(jsonIDs)
}

func toTimestamp(time time.Time) int64 {
	return time.UnixNano()
}

func fromTimestamp(timestamp int64) time.Time {
	return time.Unix(0, timestamp)
}
