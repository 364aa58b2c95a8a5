package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := openTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_CreatesAttemptIndex(t *testing.T) {
	s := openTestStore(t)

	var name string
	err := s.db.QueryRow(`
		SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_attempts_batch_job'
	`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "idx_attempts_batch_job", name)
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, found, err := s.GetCheckpoint(ctx, DefaultCheckpointKey)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetCheckpoint(ctx, DefaultCheckpointKey, []byte(`{"a":1}`)))
	require.NoError(t, s.SetCheckpoint(ctx, DefaultCheckpointKey, []byte(`{"a":2}`)))

	got, found, err := s.GetCheckpoint(ctx, DefaultCheckpointKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"a":2}`, string(got))

	seq, err := s.CheckpointSeq(ctx, DefaultCheckpointKey)
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)
}

func TestCheckpoint_Delete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.SetCheckpoint(ctx, "k", []byte("v")))
	require.NoError(t, s.DeleteCheckpoint(ctx, "k"))
	require.NoError(t, s.DeleteCheckpoint(ctx, "k"))

	_, found, err := s.GetCheckpoint(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	seq, err := s.CheckpointSeq(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, seq)
}

func TestCheckpoint_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.SetCheckpoint(ctx, DefaultCheckpointKey, []byte("snapshot")))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, found, err := s2.GetCheckpoint(ctx, DefaultCheckpointKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "snapshot", string(got))
}

func TestAttempts_AppendAndQuery(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.AppendAttempt(ctx, Attempt{BatchID: "b1", JobIndex: 0, JobID: "j0", Seq: 1, Outcome: OutcomeSuccess, Artifact: "https://cdn/0.mp4"}))
	require.NoError(t, s.AppendAttempt(ctx, Attempt{BatchID: "b1", JobIndex: 1, JobID: "j1", Seq: 2, Outcome: OutcomeFailure, Error: "boom"}))
	require.NoError(t, s.AppendAttempt(ctx, Attempt{BatchID: "b2", JobIndex: 0, JobID: "x", Seq: 1, Outcome: OutcomeSuccess}))

	// Same seq again is ignored.
	require.NoError(t, s.AppendAttempt(ctx, Attempt{BatchID: "b1", JobIndex: 1, JobID: "j1", Seq: 2, Outcome: OutcomeSuccess}))

	attempts, err := s.Attempts(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, OutcomeSuccess, attempts[0].Outcome)
	assert.Equal(t, "https://cdn/0.mp4", attempts[0].Artifact)
	assert.Equal(t, OutcomeFailure, attempts[1].Outcome)
	assert.Equal(t, "boom", attempts[1].Error)

	has, err := s.HasAttempt(ctx, "b1", 1)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasAttempt(ctx, "b1", 5)
	require.NoError(t, err)
	assert.False(t, has)

	seq, err := s.LastAttemptSeq(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)
}

func TestAttempts_EmptyBatch(t *testing.T) {
	s := openTestStore(t)

	attempts, err := s.Attempts(context.Background(), "none")
	require.NoError(t, err)
	assert.NotNil(t, attempts)
	assert.Empty(t, attempts)

	seq, err := s.LastAttemptSeq(context.Background(), "none")
	require.NoError(t, err)
	assert.Zero(t, seq)
}

func TestAttempts_RejectsUnknownOutcome(t *testing.T) {
	s := openTestStore(t)

	err := s.AppendAttempt(context.Background(), Attempt{BatchID: "b", Seq: 1, Outcome: "maybe"})
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	_, found, err := m.GetCheckpoint(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	value := []byte("v1")
	require.NoError(t, m.SetCheckpoint(ctx, "k", value))
	value[0] = 'X'

	got, found, err := m.GetCheckpoint(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v1", string(got), "stored value must not alias the caller's slice")

	require.NoError(t, m.DeleteCheckpoint(ctx, "k"))
	_, found, _ = m.GetCheckpoint(ctx, "k")
	assert.False(t, found)

	require.NoError(t, m.AppendAttempt(ctx, Attempt{BatchID: "b", JobIndex: 3, Seq: 7, Outcome: OutcomeSuccess}))
	require.NoError(t, m.AppendAttempt(ctx, Attempt{BatchID: "b", JobIndex: 3, Seq: 7, Outcome: OutcomeFailure}))

	attempts, err := m.Attempts(ctx, "b")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, OutcomeSuccess, attempts[0].Outcome)

	has, _ := m.HasAttempt(ctx, "b", 3)
	assert.True(t, has)
	seq, _ := m.LastAttemptSeq(ctx, "b")
	assert.Equal(t, int64(7), seq)
}
