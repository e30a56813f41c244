// Package sqlite persists run transcripts in a local SQLite file. The
// modernc.org driver is pure Go, so the store builds without CGO.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/nevindra/kage"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// runCols is the column list shared by every statement touching runs.
const runCols = "id, agent, room, task, answer, actions, clone_depth, started_at, finished_at"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		agent TEXT NOT NULL,
		room TEXT NOT NULL,
		task TEXT NOT NULL,
		answer TEXT NOT NULL,
		actions INTEGER NOT NULL,
		clone_depth INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS runs_started_idx ON runs(started_at)`,
	`CREATE INDEX IF NOT EXISTS runs_agent_idx ON runs(agent)`,
}

// Store writes run transcripts to a SQLite file.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger makes the store log each operation with timing at debug level.
// Without it the store is silent.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

// New opens (or creates) the SQLite file at path. The pool is capped at one
// connection: a root agent and its clones finishing together would otherwise
// race independent connections into SQLITE_BUSY.
func New(path string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		// Reachable only if the driver import disappears.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, log: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(s)
	}
	s.log.Debug("sqlite store opened", "path", path)
	return s
}

// Init applies the schema. Every statement is idempotent.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: init: %w", err)
		}
	}
	return nil
}

// SaveRun upserts one finished run, keyed by record ID.
func (s *Store) SaveRun(ctx context.Context, rec kage.RunRecord) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (`+runCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Agent, rec.Room, rec.Task, rec.Answer, rec.Actions, rec.CloneDepth, rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("sqlite: save run: %w", err)
	}
	s.log.Debug("run saved", "id", rec.ID, "agent", rec.Agent, "took", time.Since(start))
	return nil
}

// Runs lists stored runs, newest first. A limit of zero or less returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]kage.RunRecord, error) {
	q := `SELECT ` + runCols + ` FROM runs ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list runs: %w", err)
	}
	defer rows.Close()

	var runs []kage.RunRecord
	for rows.Next() {
		var r kage.RunRecord
		if err := rows.Scan(&r.ID, &r.Agent, &r.Room, &r.Task, &r.Answer, &r.Actions, &r.CloneDepth, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list runs: %w", err)
	}
	s.log.Debug("runs listed", "count", len(runs), "limit", limit)
	return runs, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ kage.Store = (*Store)(nil)
