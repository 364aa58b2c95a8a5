package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/clipforge/internal/batch"
)

// ResumeOptions holds flags for the resume command.
type ResumeOptions struct {
	*RootOptions
	Yes     bool
	Decline bool
}

// NewResumeCommand creates the resume command.
func NewResumeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResumeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume or discard an interrupted batch",
		Long: `Offer to resume the interrupted batch recorded in the checkpoint store.

Resuming continues at the first unattempted job; jobs already attempted are
never re-run. Declining discards the checkpoint.

Example:
  clipforge resume
  clipforge resume --yes
  clipforge resume --decline`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(opts, cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "resume without asking")
	cmd.Flags().BoolVar(&opts.Decline, "decline", false, "discard the interrupted batch")
	cmd.MarkFlagsMutuallyExclusive("yes", "decline")

	return cmd
}

func runResume(opts *ResumeOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	rt, err := openRuntime(opts.RootOptions, cmd, batch.WithReporter(newProgressView(out.GetErrWriter(), out.JSON())))
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
	if pending == nil {
		return out.Success("", map[string]any{"resumable": false}, "nothing to resume")
	}

	accept := opts.Yes
	if !accept && !opts.Decline {
		prompt := fmt.Sprintf("Batch %s was interrupted after %d of %d jobs (%d rendered). Resume? [y/N] ",
			pending.ID, pending.Attempted(), pending.TotalJobs, pending.CompletedCount)
		accept, err = promptConfirm(cmd.InOrStdin(), out.GetErrWriter(), prompt)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot ask to resume", err)
		}
	}

	if !accept {
		if err := rt.orch.Decline(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to discard batch", err)
		}
		return out.Success(pending.ID, map[string]any{"resumable": true, "declined": true},
			fmt.Sprintf("discarded batch %s", pending.ID))
	}

	st, err := rt.orch.Resume(ctx)
	return finishBatch(out, st, err)
}

// promptConfirm asks a yes/no question on w and reads the answer from r.
func promptConfirm(r io.Reader, w io.Writer, prompt string) (bool, error) {
	fmt.Fprint(w, prompt)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return false, errors.New("confirmation required (rerun with --yes or --decline in non-interactive mode)")
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
