package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExtractionRun is one manifest row describing a layer's extraction.
type ExtractionRun struct {
	ID           uuid.UUID
	LayerKey     string
	SourcePortal string
	Records      int
	Failures     int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// RunStore records extraction run manifests for auditing.
type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) Record(ctx context.Context, run ExtractionRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extraction_runs (id, layer_key, source_portal, records, failures, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.LayerKey, run.SourcePortal, run.Records, run.Failures,
		run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to record extraction run for %s: %w", run.LayerKey, err)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (s *RunStore) Recent(ctx context.Context, limit int) ([]ExtractionRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, layer_key, source_portal, records, failures, started_at, finished_at
		FROM extraction_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list extraction runs: %w", err)
	}
	defer rows.Close()

	var out []ExtractionRun
	for rows.Next() {
		var run ExtractionRun
		if err := rows.Scan(&run.ID, &run.LayerKey, &run.SourcePortal,
			&run.Records, &run.Failures, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan extraction run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
