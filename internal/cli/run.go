package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/clipforge/internal/batch"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Force   bool
	Discard bool

	// IDGenerator overrides the batch ID generator (for testing).
	IDGenerator func() string
}

// BatchSummary is the JSON payload of run and resume.
type BatchSummary struct {
	ID        string          `json:"id"`
	Status    batch.Status    `json:"status"`
	Total     int             `json:"total"`
	Completed int             `json:"completed"`
	Failed    int             `json:"failed"`
	Outputs   []string        `json:"outputs"`
	Failures  []batch.Failure `json:"failures,omitempty"`
}

func summarize(st *batch.BatchState) BatchSummary {
	return BatchSummary{
		ID:        st.ID,
		Status:    st.Status,
		Total:     st.TotalJobs,
		Completed: st.CompletedCount,
		Failed:    len(st.Failures),
		Outputs:   st.Outputs,
		Failures:  st.Failures,
	}
}

func (s BatchSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "batch %s %s: %d/%d rendered, %d failed\n", s.ID, s.Status, s.Completed, s.Total, s.Failed)
	for _, o := range s.Outputs {
		fmt.Fprintf(&b, "  %s\n", o)
	}
	for _, f := range s.Failures {
		fmt.Fprintf(&b, "  job %d failed during %s: %s\n", f.Index+1, f.Stage, f.Message)
	}
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <manifest>",
		Short: "Plan a manifest and render every job",
		Long: `Plan a manifest and render its jobs one at a time through the render service.

The batch is checkpointed after every job. If the process is interrupted,
'clipforge resume' continues from the first unattempted job.

Example:
  clipforge run ./versus.cue
  clipforge run --db /tmp/clipforge.db ./batch.yaml --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "enumerate past the combination guard")
	cmd.Flags().BoolVar(&opts.Discard, "discard", false, "discard an interrupted batch instead of refusing to start")

	return cmd
}

func runBatch(opts *RunOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	spec, err := loadSpec(path, opts.Force)
	if err != nil {
		return err
	}

	extra := []batch.Option{batch.WithReporter(newProgressView(out.GetErrWriter(), out.JSON()))}
	if opts.IDGenerator != nil {
		extra = append(extra, batch.WithIDGenerator(opts.IDGenerator))
	}
	rt, err := openRuntime(opts.RootOptions, cmd, extra...)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := withSignals(cmd.Context(), rt)
	defer stop()

	pending, err := rt.orch.Recover(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read checkpoint", err)
	}
	if pending != nil {
		if !opts.Discard {
			return NewExitError(ExitCommandError, fmt.Sprintf(
				"batch %s was interrupted after %d of %d jobs; run 'clipforge resume' or pass --discard",
				pending.ID, pending.Attempted(), pending.TotalJobs))
		}
		if err := rt.orch.Decline(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to discard interrupted batch", err)
		}
		out.VerboseLog("discarded interrupted batch %s", pending.ID)
	}

	st, err := rt.orch.Execute(ctx, spec)
	return finishBatch(out, st, err)
}

// finishBatch prints the outcome of a batch loop and maps it to an exit code.
func finishBatch(out *OutputFormatter, st *batch.BatchState, err error) error {
	if err != nil {
		var be *batch.Error
		switch {
		case errors.As(err, &be):
			return WrapExitError(ExitCommandError, "cannot start batch", err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			if st != nil {
				return NewExitError(ExitFailure, fmt.Sprintf(
					"batch %s interrupted at job %d of %d; run 'clipforge resume' to continue",
					st.ID, st.Cursor.JobIndex+1, st.TotalJobs))
			}
			return WrapExitError(ExitFailure, "batch interrupted", err)
		default:
			return WrapExitError(ExitCommandError, "batch failed", err)
		}
	}

	summary := summarize(st)
	if err := out.Success(st.ID, summary, summary.String()); err != nil {
		return err
	}
	if st.Status != batch.StatusCompleted || len(st.Failures) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("batch %s %s with %d failed jobs", st.ID, st.Status, len(st.Failures)))
	}
	return nil
}

// withSignals returns a context cancelled on SIGINT or SIGTERM. The batch
// state is suspended to the checkpoint store before cancelling.
func withSignals(parent context.Context, rt *runtime) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			rt.log.Info("received signal, suspending batch", slog.String("signal", sig.String()))
			if err := rt.orch.Suspend(context.WithoutCancel(ctx)); err != nil {
				rt.log.Error("suspend failed", "error", err)
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
