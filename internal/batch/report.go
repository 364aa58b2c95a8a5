package batch

import "time"

// EventKind identifies a progress event.
type EventKind string

const (
	EventStarted          EventKind = "started"
	EventJobStarted       EventKind = "job_started"
	EventJobProgress      EventKind = "job_progress"
	EventJobSucceeded     EventKind = "job_succeeded"
	EventJobFailed        EventKind = "job_failed"
	EventCheckpointFailed EventKind = "checkpoint_failed"
	EventFinished         EventKind = "finished"
)

// Event is one progress notification. Percent is the simulated progress of
// the current job during EventJobProgress and 100 once a job settles.
type Event struct {
	Kind     EventKind
	BatchID  string
	Index    int
	Total    int
	Percent  float64
	Estimate time.Duration
	Artifact string
	Err      error
	Status   Status
}

// Reporter receives progress events one at a time, in order. Most events
// come from the goroutine running the batch loop; EventJobProgress comes
// from the per-job simulation goroutine, which the loop stops and waits for
// before reporting the job's outcome. Implementations must not assume a
// single calling goroutine.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

type nopReporter struct{}

func (nopReporter) Report(Event) {}
