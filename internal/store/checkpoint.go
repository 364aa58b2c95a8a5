package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultCheckpointKey is the well-known key the batch snapshot lives under.
const DefaultCheckpointKey = "clipforge.batch"

// GetCheckpoint returns the snapshot stored under key.
// found is false when no snapshot exists.
func (s *Store) GetCheckpoint(ctx context.Context, key string) (value []byte, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT value FROM checkpoints WHERE key = ?
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get checkpoint: %w", err)
	}
	return value, true, nil
}

// SetCheckpoint stores a full snapshot under key, replacing any previous one.
// The row's seq increments on every overwrite.
func (s *Store) SetCheckpoint(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (key, value, seq, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			seq = checkpoints.seq + 1,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}

// DeleteCheckpoint removes the snapshot under key. Deleting a missing key is
// not an error.
func (s *Store) DeleteCheckpoint(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// CheckpointSeq returns how many times key has been written since it was
// created, or 0 if absent.
func (s *Store) CheckpointSeq(ctx context.Context, key string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT seq FROM checkpoints WHERE key = ?`, key).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("checkpoint seq: %w", err)
	}
	return seq, nil
}
