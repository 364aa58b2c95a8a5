package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/clipforge/internal/clip"
	"github.com/roach88/clipforge/internal/combo"
	"github.com/roach88/clipforge/internal/media"
	"github.com/roach88/clipforge/internal/plan"
	"github.com/roach88/clipforge/internal/render"
	"github.com/roach88/clipforge/internal/store"
)

// DefaultTickInterval is how often simulated progress advances.
const DefaultTickInterval = 250 * time.Millisecond

// CheckpointStore persists the BatchState snapshot under one key.
type CheckpointStore interface {
	GetCheckpoint(ctx context.Context, key string) ([]byte, bool, error)
	SetCheckpoint(ctx context.Context, key string, value []byte) error
	DeleteCheckpoint(ctx context.Context, key string) error
}

// AttemptLog records every job dispatch.
type AttemptLog interface {
	AppendAttempt(ctx context.Context, a store.Attempt) error
	HasAttempt(ctx context.Context, batchID string, jobIndex int) (bool, error)
	LastAttemptSeq(ctx context.Context, batchID string) (int64, error)
}

// Store is the durable side channel of the orchestrator.
// Implemented by *store.Store and *store.MemoryStore.
type Store interface {
	CheckpointStore
	AttemptLog
}

// Renderer dispatches one render request.
type Renderer interface {
	Render(ctx context.Context, req render.Request) (render.Response, error)
}

// Preparer turns a clip reference into one the Render Service can fetch.
type Preparer interface {
	Prepare(ctx context.Context, ref clip.ClipRef) (clip.ClipRef, error)
}

// Spec describes a batch before planning.
type Spec struct {
	Mode plan.Mode

	// Parts feed the exhaustive and sampled modes.
	Parts []clip.Part

	// Media feed the simple mode.
	Media []clip.ClipRef

	Hooks []string
	Music *clip.ClipRef
	Logo  *clip.ClipRef
	Style plan.StyleConfig

	// Count is the requested number of sampled outputs.
	Count int

	// Force enumerates past the overflow guard.
	Force bool
}

// Orchestrator drives a batch: one job at a time, in index order, with a
// checkpoint after every attempt.
//
// Thread-safety model:
//   - Run(), Resume(): at most one at a time (ALREADY_RUNNING otherwise)
//   - Start(): refused with ALREADY_RUNNING while a loop is active; two
//     concurrent Starts with no loop running are last-writer-wins
//   - Cancel(), Suspend(), Snapshot(): safe from any goroutine
//
// The BatchState is owned by the orchestrator; callers only ever see clones.
type Orchestrator struct {
	store     Store
	key       string
	renderer  Renderer
	preparer  Preparer
	guard     combo.Guard
	sampler   *combo.Sampler
	estimator Estimator
	tick      time.Duration
	newTicker TickerFunc
	now       func() time.Time
	newID     func() string
	reporter  Reporter
	metrics   *Metrics
	logger    *slog.Logger

	mu    sync.Mutex
	state *BatchState
	clock *Clock

	running         atomic.Bool
	cancelRequested atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCheckpointKey sets the well-known checkpoint key.
func WithCheckpointKey(key string) Option {
	return func(o *Orchestrator) {
		if key != "" {
			o.key = key
		}
	}
}

// WithPreparer sets the media preparer. Without one, locators are sent as is.
func WithPreparer(p Preparer) Option {
	return func(o *Orchestrator) {
		o.preparer = p
	}
}

// WithGuard sets the exhaustive-mode overflow guard.
func WithGuard(g combo.Guard) Option {
	return func(o *Orchestrator) {
		o.guard = g
	}
}

// WithSampler sets the sampled-mode combination sampler.
func WithSampler(s *combo.Sampler) Option {
	return func(o *Orchestrator) {
		o.sampler = s
	}
}

// WithEstimator sets the progress time model.
func WithEstimator(e Estimator) Option {
	return func(o *Orchestrator) {
		o.estimator = e
	}
}

// WithTicker replaces the simulated-progress ticker and its period.
func WithTicker(f TickerFunc, every time.Duration) Option {
	return func(o *Orchestrator) {
		o.newTicker = f
		if every > 0 {
			o.tick = every
		}
	}
}

// WithNow replaces the wall clock used for simulated progress.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithIDGenerator replaces the batch ID generator.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) {
		o.newID = f
	}
}

// WithReporter receives progress events.
func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.reporter = r
		}
	}
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an orchestrator that persists to s and renders through r.
func New(s Store, r Renderer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     s,
		key:       store.DefaultCheckpointKey,
		renderer:  r,
		guard:     combo.NewGuard(0),
		sampler:   combo.NewSampler(uint64(time.Now().UnixNano())),
		estimator: DefaultEstimator,
		tick:      DefaultTickInterval,
		newTicker: NewTicker,
		now:       time.Now,
		newID:     func() string { return uuid.Must(uuid.NewV7()).String() },
		reporter:  nopReporter{},
		logger:    slog.Default(),
		clock:     NewClock(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Key returns the checkpoint key.
func (o *Orchestrator) Key() string {
	return o.key
}

func (o *Orchestrator) cancelKey() string {
	return o.key + ".cancel"
}

// Running reports whether a batch loop is executing in this process.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Snapshot returns a copy of the current state, or nil when idle.
func (o *Orchestrator) Snapshot() *BatchState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// PlanJobs validates spec and plans its jobs without touching any state.
// All failures are batch-level *Error values.
func (o *Orchestrator) PlanJobs(spec Spec) ([]plan.Job, error) {
	if spec.Music == nil || strings.TrimSpace(spec.Music.Locator) == "" {
		return nil, newError(ErrCodePrecondition, nil, "select a background track")
	}
	hooks := plan.NormalizeHooks(spec.Hooks)

	var mode plan.GenerationMode
	switch spec.Mode {
	case plan.ModeSimple:
		if len(spec.Media) == 0 {
			return nil, newError(ErrCodePrecondition, plan.ErrNoMedia, "select at least one media item")
		}
		for _, m := range spec.Media {
			if err := m.Validate(); err != nil {
				return nil, newError(ErrCodePrecondition, err, "invalid media item")
			}
		}
		mode = plan.Simple{Hooks: hooks, Media: spec.Media}

	case plan.ModeExhaustive:
		if err := clip.ValidateParts(spec.Parts); err != nil {
			return nil, newError(ErrCodePrecondition, err, "parts are incomplete")
		}
		combos, total, err := o.guard.Enumerate(spec.Parts, spec.Force)
		if err != nil {
			var oe *combo.OverflowError
			if errors.As(err, &oe) {
				return nil, newError(ErrCodeOverflow, err, "%s combinations", total)
			}
			return nil, fmt.Errorf("enumerate combinations: %w", err)
		}
		mode = plan.Exhaustive{Combinations: combos, Hooks: hooks}

	case plan.ModeSampled:
		if err := clip.ValidateParts(spec.Parts); err != nil {
			return nil, newError(ErrCodePrecondition, err, "parts are incomplete")
		}
		if spec.Count <= 0 {
			return nil, newError(ErrCodePrecondition, nil, "requested output count must be positive, got %d", spec.Count)
		}
		mode = plan.Sampled{
			Combinations: o.sampler.Sample(spec.Parts, spec.Count),
			Hooks:        hooks,
			Logo:         spec.Logo,
		}

	default:
		return nil, newError(ErrCodePrecondition, nil, "unknown generation mode %q", spec.Mode)
	}

	if spec.Mode == plan.ModeSimple && len(hooks) == 0 {
		return nil, newError(ErrCodePrecondition, plan.ErrNoHooks, "enter at least one hook line")
	}
	if err := spec.Style.Validate(); err != nil {
		return nil, newError(ErrCodePrecondition, err, "invalid hook style")
	}

	jobs, err := plan.Plan(mode, spec.Style)
	if errors.Is(err, plan.ErrNoCombinations) || (err == nil && len(jobs) == 0) {
		return nil, newError(ErrCodeNoCombinations, err, "no valid combinations for the selected parts")
	}
	if err != nil {
		return nil, newError(ErrCodePrecondition, err, "planning failed")
	}
	return jobs, nil
}

// Start validates and plans spec, then persists the initial checkpoint.
// Any validation failure returns before anything is persisted.
func (o *Orchestrator) Start(ctx context.Context, spec Spec) (*BatchState, error) {
	if o.running.Load() {
		return nil, newError(ErrCodeAlreadyRunning, nil, "a batch is already running")
	}

	jobs, err := o.PlanJobs(spec)
	if err != nil {
		return nil, err
	}

	st := &BatchState{
		ID:        o.newID(),
		Status:    StatusRunning,
		IsRunning: true,
		TotalJobs: len(jobs),
		Outputs:   []string{},
		Music:     *spec.Music,
		Jobs:      jobs,
	}

	o.mu.Lock()
	// Checked again under mu: Run reads o.state under mu after taking the
	// running flag, so a loop can never observe a swapped job list.
	if o.running.Load() {
		o.mu.Unlock()
		return nil, newError(ErrCodeAlreadyRunning, nil, "a batch is already running")
	}
	if prev := o.state; prev != nil && prev.IsRunning {
		o.logger.Warn("discarding unfinished batch", "batch", prev.ID, "attempted", prev.Attempted(), "total", prev.TotalJobs)
	}
	o.state = st
	o.clock = NewClock()
	o.mu.Unlock()

	o.cancelRequested.Store(false)
	if err := o.store.DeleteCheckpoint(ctx, o.cancelKey()); err != nil {
		o.logger.Warn("clear cancel marker failed", "error", err)
	}
	o.checkpoint(ctx, st.Clone())

	o.logger.Info("batch started", "batch", st.ID, "mode", spec.Mode, "jobs", st.TotalJobs)
	return st.Clone(), nil
}

// Execute starts spec and runs it to a terminal state.
func (o *Orchestrator) Execute(ctx context.Context, spec Spec) (*BatchState, error) {
	if _, err := o.Start(ctx, spec); err != nil {
		return nil, err
	}
	return o.Run(ctx)
}

// Recover loads a persisted batch. It returns nil when there is nothing to
// resume; stale or cancelled checkpoints are cleared on the way.
func (o *Orchestrator) Recover(ctx context.Context) (*BatchState, error) {
	data, found, err := o.store.GetCheckpoint(ctx, o.key)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if !found {
		return nil, nil
	}

	st, err := DecodeState(data)
	if err != nil {
		o.logger.Warn("discarding unreadable checkpoint", "error", err)
		o.clearCheckpoint(ctx)
		return nil, nil
	}
	if !st.Resumable() {
		o.logger.Info("discarding finished checkpoint", "batch", st.ID)
		o.clearCheckpoint(ctx)
		return nil, nil
	}
	if o.cancelMarked(ctx) {
		o.logger.Info("discarding cancelled checkpoint", "batch", st.ID)
		o.clearCheckpoint(ctx)
		return nil, nil
	}
	return st, nil
}

// Resume re-enters the job loop of a recovered batch at its cursor.
func (o *Orchestrator) Resume(ctx context.Context) (*BatchState, error) {
	if o.running.Load() {
		return nil, newError(ErrCodeAlreadyRunning, nil, "a batch is already running")
	}
	st, err := o.Recover(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, newError(ErrCodeNotResumable, nil, "no interrupted batch to resume")
	}

	// Restarting the clock below the last logged seq would silently drop
	// new attempts, so an unreadable log aborts the resume.
	seq, err := o.store.LastAttemptSeq(ctx, st.ID)
	if err != nil {
		return nil, fmt.Errorf("resume batch %s: read attempt log: %w", st.ID, err)
	}

	st.Cursor.SubIndex = 0
	o.mu.Lock()
	if o.running.Load() {
		o.mu.Unlock()
		return nil, newError(ErrCodeAlreadyRunning, nil, "a batch is already running")
	}
	o.state = st
	o.clock = NewClockAt(seq)
	o.mu.Unlock()
	o.cancelRequested.Store(false)

	o.logger.Info("batch resumed", "batch", st.ID, "from", st.Cursor.JobIndex, "total", st.TotalJobs, "completed", st.CompletedCount)
	return o.Run(ctx)
}

// Decline discards a recovered batch and leaves the orchestrator idle.
func (o *Orchestrator) Decline(ctx context.Context) error {
	if o.running.Load() {
		return newError(ErrCodeAlreadyRunning, nil, "a batch is already running")
	}
	o.mu.Lock()
	o.state = nil
	o.mu.Unlock()

	if err := o.store.DeleteCheckpoint(ctx, o.key); err != nil {
		return fmt.Errorf("decline resume: %w", err)
	}
	if err := o.store.DeleteCheckpoint(ctx, o.cancelKey()); err != nil {
		return fmt.Errorf("decline resume: %w", err)
	}
	o.logger.Info("resume declined")
	return nil
}

// Cancel asks the running batch to stop before its next job. A job already
// in flight always settles first.
func (o *Orchestrator) Cancel() {
	o.cancelRequested.Store(true)
}

// RequestCancel cancels the batch in this process and leaves a durable
// marker so a batch running in another process, or a later resume, stops
// at its next job boundary.
func (o *Orchestrator) RequestCancel(ctx context.Context) error {
	o.Cancel()
	if err := o.store.SetCheckpoint(ctx, o.cancelKey(), []byte("1")); err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	return nil
}

// Suspend writes the current state to the checkpoint store. It is called
// when the host may be torn down; the snapshot is complete, so racing the
// loop's own checkpoint write is harmless.
func (o *Orchestrator) Suspend(ctx context.Context) error {
	st := o.Snapshot()
	if st == nil || !st.IsRunning {
		return nil
	}
	data, err := st.Encode()
	if err != nil {
		return err
	}
	if err := o.store.SetCheckpoint(ctx, o.key, data); err != nil {
		o.metrics.IncCheckpointFailures()
		return fmt.Errorf("suspend: %w", err)
	}
	o.logger.Info("batch suspended", "batch", st.ID, "cursor", st.Cursor.JobIndex, "total", st.TotalJobs)
	return nil
}

// Run executes jobs from the cursor to the end of the batch.
//
// Per-job failures are reported and recorded, never returned. Run returns
// an error only when no batch is loaded, another loop is active, or ctx is
// cancelled; in the last case the state is checkpointed with the cursor on
// the interrupted job so a resume retries it.
func (o *Orchestrator) Run(ctx context.Context) (*BatchState, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, newError(ErrCodeAlreadyRunning, nil, "a batch is already running")
	}
	defer o.running.Store(false)

	st := o.Snapshot()
	if st == nil || !st.IsRunning {
		return nil, newError(ErrCodeNotResumable, nil, "no batch to run")
	}

	o.reporter.Report(Event{Kind: EventStarted, BatchID: st.ID, Index: st.Cursor.JobIndex, Total: st.TotalJobs, Status: StatusRunning})
	o.metrics.SetProgress(st.Ratio())

	for {
		o.mu.Lock()
		idx, total := o.state.Cursor.JobIndex, o.state.TotalJobs
		o.mu.Unlock()

		if idx >= total {
			return o.finish(ctx, StatusCompleted), nil
		}
		if o.shouldCancel(ctx) {
			return o.finish(ctx, StatusCancelled), nil
		}
		if err := ctx.Err(); err != nil {
			return o.interrupt(ctx, err)
		}
		if err := o.step(ctx, idx, total); err != nil {
			return o.interrupt(ctx, err)
		}
	}
}

// step attempts one job and checkpoints the outcome. It returns an error
// only when ctx ended mid-job, in which case nothing is recorded.
func (o *Orchestrator) step(ctx context.Context, idx, total int) error {
	o.mu.Lock()
	job := o.state.Jobs[idx]
	batchID := o.state.ID
	o.mu.Unlock()

	if prior, err := o.store.HasAttempt(ctx, batchID, idx); err != nil {
		o.logger.Warn("read attempt log failed", "batch", batchID, "job", idx+1, "error", err)
	} else if prior {
		o.logger.Warn("re-dispatching job with a recorded attempt; render service may produce a duplicate",
			"batch", batchID,
			"job", idx+1,
			"of", total,
		)
	}

	estimate := o.estimator.Estimate(job)
	o.reporter.Report(Event{Kind: EventJobStarted, BatchID: batchID, Index: idx, Total: total, Estimate: estimate})

	sim := startSimulation(ctx, o.newTicker(o.tick), o.estimator, estimate, o.now(), o.now, func(p float64) {
		o.reporter.Report(Event{Kind: EventJobProgress, BatchID: batchID, Index: idx, Total: total, Percent: p, Estimate: estimate})
	})
	artifact, stage, err := o.attempt(ctx, idx, job)
	sim.Stop()

	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	seq := o.clock.Next()
	a := store.Attempt{BatchID: batchID, JobIndex: idx, JobID: job.ID(), Seq: seq}

	o.mu.Lock()
	if err == nil {
		o.state.Outputs = append(o.state.Outputs, artifact)
		o.state.CompletedCount++
		a.Outcome = store.OutcomeSuccess
		a.Artifact = artifact
	} else {
		o.state.Failures = append(o.state.Failures, Failure{Index: idx, Stage: stage, Message: err.Error()})
		a.Outcome = store.OutcomeFailure
		a.Error = err.Error()
	}
	o.state.Cursor = Cursor{JobIndex: idx + 1}
	snap := o.state.Clone()
	o.mu.Unlock()

	if aerr := o.store.AppendAttempt(ctx, a); aerr != nil {
		o.logger.Warn("append attempt failed", "batch", batchID, "job", idx+1, "error", aerr)
	}

	if err == nil {
		o.logger.Info("job succeeded", "batch", batchID, "job", idx+1, "of", total, "artifact", artifact)
		o.metrics.IncJob(string(store.OutcomeSuccess))
		o.reporter.Report(Event{Kind: EventJobSucceeded, BatchID: batchID, Index: idx, Total: total, Percent: 100, Artifact: artifact})
	} else {
		jerr := &JobError{Index: idx, Total: total, Stage: stage, Err: err}
		o.logger.Error("job failed", "batch", batchID, "job", idx+1, "of", total, "stage", stage, "error", err)
		o.metrics.IncJob(string(store.OutcomeFailure))
		o.reporter.Report(Event{Kind: EventJobFailed, BatchID: batchID, Index: idx, Total: total, Percent: 100, Err: jerr})
	}

	o.metrics.SetProgress(snap.Ratio())
	o.checkpoint(ctx, snap)
	return nil
}

// attempt prepares the job's media and dispatches it.
func (o *Orchestrator) attempt(ctx context.Context, idx int, job plan.Job) (string, Stage, error) {
	music, err := o.prepareMusic(ctx)
	if err != nil {
		return "", StagePrepare, err
	}

	prepared := make([]clip.ClipRef, len(job.Media))
	for i, m := range job.Media {
		o.mu.Lock()
		o.state.Cursor.SubIndex = i
		o.mu.Unlock()

		if prepared[i], err = o.prepare(ctx, m); err != nil {
			return "", StagePrepare, err
		}
	}

	var overlay *clip.ClipRef
	if job.Overlay != nil {
		ov, err := o.prepare(ctx, *job.Overlay)
		if err != nil {
			return "", StagePrepare, err
		}
		overlay = &ov
	}

	o.logger.Debug("dispatching render", "job", idx+1, "media", len(prepared), "hook", job.HasHook())
	resp, err := o.renderer.Render(ctx, render.NewRequest(job, prepared, overlay, music.Locator))
	if err != nil {
		return "", StageRender, err
	}
	return resp.ArtifactLocator, "", nil
}

// prepareMusic makes the batch's track durable once and keeps the result in
// the state so later jobs and resumes reuse it.
func (o *Orchestrator) prepareMusic(ctx context.Context) (clip.ClipRef, error) {
	o.mu.Lock()
	music := o.state.Music
	o.mu.Unlock()

	if media.IsDurable(music.Locator) {
		return music, nil
	}
	prepared, err := o.prepare(ctx, music)
	if err != nil {
		return music, err
	}
	o.mu.Lock()
	o.state.Music = prepared
	o.mu.Unlock()
	return prepared, nil
}

func (o *Orchestrator) prepare(ctx context.Context, ref clip.ClipRef) (clip.ClipRef, error) {
	if o.preparer == nil {
		return ref, nil
	}
	return o.preparer.Prepare(ctx, ref)
}

// shouldCancel checks the in-process flag and the durable marker.
func (o *Orchestrator) shouldCancel(ctx context.Context) bool {
	if o.cancelRequested.Load() {
		return true
	}
	return o.cancelMarked(ctx)
}

func (o *Orchestrator) cancelMarked(ctx context.Context) bool {
	_, found, err := o.store.GetCheckpoint(ctx, o.cancelKey())
	if err != nil {
		o.logger.Debug("read cancel marker failed", "error", err)
		return false
	}
	return found
}

// checkpoint writes snap. Failures are logged and counted, never fatal.
func (o *Orchestrator) checkpoint(ctx context.Context, snap *BatchState) {
	data, err := snap.Encode()
	if err == nil {
		err = o.store.SetCheckpoint(context.WithoutCancel(ctx), o.key, data)
	}
	if err != nil {
		o.logger.Warn("checkpoint write failed; progress since the last checkpoint will be re-attempted on resume",
			"batch", snap.ID,
			"cursor", snap.Cursor.JobIndex,
			"error", err,
		)
		o.metrics.IncCheckpointFailures()
		o.reporter.Report(Event{Kind: EventCheckpointFailed, BatchID: snap.ID, Index: snap.Cursor.JobIndex, Total: snap.TotalJobs, Err: err})
	}
}

func (o *Orchestrator) clearCheckpoint(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := o.store.DeleteCheckpoint(ctx, o.key); err != nil {
		o.logger.Warn("clear checkpoint failed", "error", err)
	}
	if err := o.store.DeleteCheckpoint(ctx, o.cancelKey()); err != nil {
		o.logger.Warn("clear cancel marker failed", "error", err)
	}
}

// finish moves the batch to a terminal state and clears its checkpoint.
func (o *Orchestrator) finish(ctx context.Context, status Status) *BatchState {
	o.mu.Lock()
	o.state.Status = status
	o.state.IsRunning = false
	o.state.Cursor.SubIndex = 0
	snap := o.state.Clone()
	o.mu.Unlock()

	o.clearCheckpoint(ctx)
	o.cancelRequested.Store(false)

	o.metrics.IncBatch(status)
	o.metrics.SetProgress(snap.Ratio())
	o.reporter.Report(Event{Kind: EventFinished, BatchID: snap.ID, Index: snap.Cursor.JobIndex, Total: snap.TotalJobs, Status: status})
	o.logger.Info("batch finished",
		"batch", snap.ID,
		"status", status,
		"completed", snap.CompletedCount,
		"failed", len(snap.Failures),
		"total", snap.TotalJobs,
	)
	return snap
}

// interrupt checkpoints the state after ctx ended so the batch can resume.
func (o *Orchestrator) interrupt(ctx context.Context, cause error) (*BatchState, error) {
	o.mu.Lock()
	o.state.Cursor.SubIndex = 0
	snap := o.state.Clone()
	o.mu.Unlock()

	o.checkpoint(ctx, snap)
	o.logger.Info("batch interrupted", "batch", snap.ID, "cursor", snap.Cursor.JobIndex, "total", snap.TotalJobs)
	return snap, cause
}
