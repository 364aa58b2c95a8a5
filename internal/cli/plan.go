package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/clipforge/internal/batch"
	"github.com/roach88/clipforge/internal/manifest"
	"github.com/roach88/clipforge/internal/plan"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Force bool
}

// PlanResult is the JSON payload of the plan command.
type PlanResult struct {
	Mode  plan.Mode  `json:"mode"`
	Total int        `json:"total"`
	Jobs  []PlanItem `json:"jobs"`
}

// PlanItem is one planned job with its content identity.
type PlanItem struct {
	ID string `json:"id"`
	plan.Job
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <manifest>",
		Short: "Print the jobs a manifest would render",
		Long: `Validate a manifest and print the planned jobs without rendering anything.

Example:
  clipforge plan ./versus.cue
  clipforge plan ./batch.yaml --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "enumerate past the combination guard")

	return cmd
}

func runPlan(opts *PlanOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	spec, err := loadSpec(path, opts.Force)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	orch := batch.New(nil, nil, orchestratorOptions(cfg, newLogger(opts.RootOptions, cmd, cfg))...)

	jobs, err := orch.PlanJobs(spec)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot plan batch", err)
	}

	result := PlanResult{Mode: spec.Mode, Total: len(jobs), Jobs: make([]PlanItem, len(jobs))}
	for i, j := range jobs {
		result.Jobs[i] = PlanItem{ID: j.ID(), Job: j}
	}

	var text strings.Builder
	fmt.Fprintf(&text, "%d %s jobs\n", len(jobs), spec.Mode)
	text.WriteString(plan.Describe(jobs))
	return out.Success("", result, text.String())
}

// loadSpec loads a manifest file and converts it to a batch spec.
func loadSpec(path string, force bool) (batch.Spec, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return batch.Spec{}, WrapExitError(ExitCommandError, "failed to load manifest", err)
	}
	spec, err := m.Spec()
	if err != nil {
		return batch.Spec{}, WrapExitError(ExitCommandError, "invalid manifest", err)
	}
	if force {
		spec.Force = true
	}
	return spec, nil
}
