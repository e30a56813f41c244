package kage

import "context"

// Store abstracts persistence of run transcripts. Implementations live in
// store/sqlite and store/postgres; pass one to an agent via WithStore.
type Store interface {
	// --- Runs ---
	SaveRun(ctx context.Context, rec RunRecord) error
	Runs(ctx context.Context, limit int) ([]RunRecord, error)

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}
