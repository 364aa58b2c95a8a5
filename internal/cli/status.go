package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/clipforge/internal/batch"
	"github.com/roach88/clipforge/internal/store"
)

// StatusResult is the JSON payload of the status command.
type StatusResult struct {
	Batch            *batch.BatchState `json:"batch,omitempty"`
	Attempts         []store.Attempt   `json:"attempts,omitempty"`
	CheckpointWrites int64             `json:"checkpoint_writes,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the checkpointed batch",
		Long: `Show the batch recorded in the checkpoint store without changing it.

Example:
  clipforge status
  clipforge status --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Checkpoint.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	data, found, err := st.GetCheckpoint(ctx, cfg.Checkpoint.Key)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read checkpoint", err)
	}
	if !found {
		return out.Success("", StatusResult{}, "no batch in progress")
	}

	state, err := batch.DecodeState(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "checkpoint is unreadable", err)
	}
	attempts, err := st.Attempts(ctx, state.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read attempts", err)
	}

	writes, err := st.CheckpointSeq(ctx, cfg.Checkpoint.Key)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read checkpoint", err)
	}

	text := renderState(state)
	text += "\n" + mutedStyle.Render(fmt.Sprintf("checkpoint written %d times", writes))
	if _, marked, _ := st.GetCheckpoint(ctx, cfg.Checkpoint.Key+".cancel"); marked {
		text += "\n" + mutedStyle.Render("cancel requested")
	}
	if opts.Verbose {
		for _, a := range attempts {
			text += fmt.Sprintf("\n#%d job %d %s %s%s", a.Seq, a.JobIndex+1, a.Outcome, a.Artifact, a.Error)
		}
	}
	return out.Success(state.ID, StatusResult{Batch: state, Attempts: attempts, CheckpointWrites: writes}, text)
}
