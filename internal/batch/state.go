package batch

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/clipforge/internal/clip"
	"github.com/roach88/clipforge/internal/plan"
)

// Status is the externally visible state of a batch.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Cursor points at the next unit of work. JobIndex is the next job to
// attempt; SubIndex is the media item being prepared within it and is only
// informational: a resumed job always restarts from its first item.
type Cursor struct {
	JobIndex int `json:"job_index"`
	SubIndex int `json:"sub_index"`
}

// Failure records one failed job.
type Failure struct {
	Index   int    `json:"index"`
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// BatchState is the durable snapshot of a batch. It carries the planned job
// list so resume never re-runs planning.
type BatchState struct {
	ID             string       `json:"id"`
	Status         Status       `json:"status"`
	IsRunning      bool         `json:"is_running"`
	TotalJobs      int          `json:"total_jobs"`
	CompletedCount int          `json:"completed_count"`
	Outputs        []string     `json:"outputs"`
	Failures       []Failure    `json:"failures,omitempty"`
	Cursor         Cursor       `json:"cursor"`
	Music          clip.ClipRef `json:"music"`
	Jobs           []plan.Job   `json:"jobs"`
}

// Resumable reports whether the snapshot describes an interrupted batch
// worth offering to resume.
func (s *BatchState) Resumable() bool {
	return s != nil && s.IsRunning && s.CompletedCount < s.TotalJobs && s.Cursor.JobIndex < s.TotalJobs
}

// Attempted is the number of jobs that have been tried, successful or not.
func (s *BatchState) Attempted() int {
	return s.Cursor.JobIndex
}

// Ratio is the fraction of jobs attempted, in [0, 1].
func (s *BatchState) Ratio() float64 {
	if s.TotalJobs == 0 {
		return 0
	}
	return float64(s.Cursor.JobIndex) / float64(s.TotalJobs)
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *BatchState) Clone() *BatchState {
	if s == nil {
		return nil
	}
	c := *s
	c.Outputs = slices.Clone(s.Outputs)
	c.Failures = slices.Clone(s.Failures)
	c.Jobs = slices.Clone(s.Jobs)
	return &c
}

// Encode serializes the snapshot for the checkpoint store.
func (s *BatchState) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode batch state: %w", err)
	}
	return data, nil
}

// DecodeState parses a checkpoint written by Encode.
func DecodeState(data []byte) (*BatchState, error) {
	var s BatchState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode batch state: %w", err)
	}
	if s.TotalJobs != len(s.Jobs) {
		return nil, fmt.Errorf("decode batch state: total_jobs %d does not match %d planned jobs", s.TotalJobs, len(s.Jobs))
	}
	if s.Cursor.JobIndex < 0 || s.Cursor.JobIndex > s.TotalJobs {
		return nil, fmt.Errorf("decode batch state: cursor %d out of range", s.Cursor.JobIndex)
	}
	if s.Outputs == nil {
		s.Outputs = []string{}
	}
	return &s, nil
}
