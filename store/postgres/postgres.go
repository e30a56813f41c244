// Package postgres implements kage.Store using PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/kage"
)

// Store implements kage.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ kage.Store = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the runs table and indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			agent TEXT NOT NULL,
			room TEXT NOT NULL,
			task TEXT NOT NULL,
			answer TEXT NOT NULL,
			actions INTEGER NOT NULL,
			clone_depth INTEGER NOT NULL,
			started_at BIGINT NOT NULL,
			finished_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS runs_started_idx ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS runs_agent_idx ON runs(agent)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// SaveRun inserts or replaces a run transcript record.
func (s *Store) SaveRun(ctx context.Context, rec kage.RunRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, agent, room, task, answer, actions, clone_depth, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   agent = EXCLUDED.agent,
		   room = EXCLUDED.room,
		   task = EXCLUDED.task,
		   answer = EXCLUDED.answer,
		   actions = EXCLUDED.actions,
		   clone_depth = EXCLUDED.clone_depth,
		   started_at = EXCLUDED.started_at,
		   finished_at = EXCLUDED.finished_at`,
		rec.ID, rec.Agent, rec.Room, rec.Task, rec.Answer, rec.Actions, rec.CloneDepth, rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("postgres: save run: %w", err)
	}
	return nil
}

// Runs returns run records ordered by start time (newest first).
// A limit of zero or less returns all records.
func (s *Store) Runs(ctx context.Context, limit int) ([]kage.RunRecord, error) {
	query := `SELECT id, agent, room, task, answer, actions, clone_depth, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id DESC`

	var rows pgx.Rows
	var err error
	if limit > 0 {
		rows, err = s.pool.Query(ctx, query+` LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []kage.RunRecord
	for rows.Next() {
		var r kage.RunRecord
		if err := rows.Scan(&r.ID, &r.Agent, &r.Room, &r.Task, &r.Answer, &r.Actions, &r.CloneDepth, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate runs: %w", err)
	}
	return runs, nil
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (s *Store) Close() error {
	return nil
}
