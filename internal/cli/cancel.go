package cli

import (
	"github.com/spf13/cobra"
)

// NewCancelCommand creates the cancel command.
func NewCancelCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Stop the running batch at its next job boundary",
		Long: `Record a cancel request in the checkpoint store. A batch running in another
process stops before its next job; the job in flight still completes.

Example:
  clipforge cancel --db ./clipforge.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			rt, err := openRuntime(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.orch.RequestCancel(cmd.Context()); err != nil {
				return WrapExitError(ExitCommandError, "failed to request cancel", err)
			}
			return out.Success("", map[string]bool{"cancel_requested": true}, "cancel requested")
		},
	}
	return cmd
}
