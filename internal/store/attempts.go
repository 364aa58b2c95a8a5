package store

import (
	"context"
	"fmt"
)

// Outcome of a single job attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Attempt records one dispatch of one job.
type Attempt struct {
	BatchID  string
	JobIndex int
	JobID    string
	Seq      int64
	Outcome  Outcome
	Artifact string
	Error    string
}

// AppendAttempt writes an attempt to the log.
// Uses ON CONFLICT(batch_id, seq) DO NOTHING so re-writing the same attempt
// after a crash is harmless.
func (s *Store) AppendAttempt(ctx context.Context, a Attempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts
		(batch_id, job_index, job_id, seq, outcome, artifact, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(batch_id, seq) DO NOTHING
	`,
		a.BatchID,
		a.JobIndex,
		a.JobID,
		a.Seq,
		string(a.Outcome),
		a.Artifact,
		a.Error,
	)
	if err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

// Attempts returns every attempt of a batch in seq order.
// Returns an empty slice (not nil) if none exist.
func (s *Store) Attempts(ctx context.Context, batchID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, job_index, job_id, seq, outcome, artifact, error
		FROM attempts
		WHERE batch_id = ?
		ORDER BY seq ASC, id ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	attempts := []Attempt{}
	for rows.Next() {
		var a Attempt
		var outcome string
		if err := rows.Scan(&a.BatchID, &a.JobIndex, &a.JobID, &a.Seq, &outcome, &a.Artifact, &a.Error); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Outcome = Outcome(outcome)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// HasAttempt reports whether a job of a batch was dispatched before.
func (s *Store) HasAttempt(ctx context.Context, batchID string, jobIndex int) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attempts WHERE batch_id = ? AND job_index = ?
	`, batchID, jobIndex).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check attempt: %w", err)
	}
	return count > 0, nil
}

// LastAttemptSeq returns the highest recorded seq of a batch, or 0.
// Used to resume the logical clock.
func (s *Store) LastAttemptSeq(ctx context.Context, batchID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM attempts WHERE batch_id = ?
	`, batchID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last attempt seq: %w", err)
	}
	return seq, nil
}
