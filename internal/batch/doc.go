// Package batch drives a planned batch of render jobs to completion.
//
// The Orchestrator validates a Spec, plans its jobs, then runs them strictly
// one at a time in index order. Each step prepares the job's media, makes
// one Render Service call, records the attempt and writes a full BatchState
// checkpoint. A failing job is reported and skipped; only precondition and
// planning failures abort a batch.
//
// State machine:
//
//	Idle -> Running -> Completed | Cancelled
//	Running -> (checkpoint) -> Running   via Suspend/Resume
//
// Cancellation is cooperative and polled at job boundaries. Context
// cancellation is treated as the host going away: the state is checkpointed
// with the cursor on the interrupted job and Run returns the context error.
//
// Resume is at-least-once. The Render Service is not assumed idempotent, so
// re-dispatching a job that already has a recorded attempt logs a warning.
package batch
