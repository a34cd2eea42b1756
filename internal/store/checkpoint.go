package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/permitlink/internal/apperrors"
	"github.com/permitlink/internal/model"
)

// CheckpointStore persists per-layer extraction progress. A commit is a
// single upsert, so a checkpoint is either fully written or absent.
type CheckpointStore struct {
	db *sql.DB
}

func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Load returns a layer's checkpoint, apperrors.ErrNotFound when none
// exists, or a CheckpointCorruptionError when the stored values cannot
// describe a valid resume position.
func (s *CheckpointStore) Load(ctx context.Context, layerKey string) (*model.ExtractionCheckpoint, error) {
	var cp model.ExtractionCheckpoint
	err := s.db.QueryRowContext(ctx, `
		SELECT layer_key, next_offset, records_fetched, last_updated
		FROM extraction_checkpoints WHERE layer_key = $1`,
		layerKey).Scan(&cp.LayerKey, &cp.NextOffset, &cp.RecordsFetched, &cp.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for %s: %w", layerKey, err)
	}
	if cp.NextOffset < 0 || cp.RecordsFetched < 0 {
		return nil, &apperrors.CheckpointCorruptionError{
			LayerKey: layerKey,
			Err:      fmt.Errorf("negative progress: offset=%d fetched=%d", cp.NextOffset, cp.RecordsFetched),
		}
	}
	return &cp, nil
}

// Commit durably records a layer's resume position.
func (s *CheckpointStore) Commit(ctx context.Context, cp model.ExtractionCheckpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extraction_checkpoints (layer_key, next_offset, records_fetched, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (layer_key) DO UPDATE SET
			next_offset = EXCLUDED.next_offset,
			records_fetched = EXCLUDED.records_fetched,
			last_updated = EXCLUDED.last_updated`,
		cp.LayerKey, cp.NextOffset, cp.RecordsFetched, cp.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to commit checkpoint for %s: %w", cp.LayerKey, err)
	}
	return nil
}

// Reset discards a layer's checkpoint so the next run starts from zero.
func (s *CheckpointStore) Reset(ctx context.Context, layerKey string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM extraction_checkpoints WHERE layer_key = $1`, layerKey)
	if err != nil {
		return fmt.Errorf("failed to reset checkpoint for %s: %w", layerKey, err)
	}
	return nil
}
