package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/harness"
	"github.com/roach88/strata/internal/trace"
)

// RunListing is one stored run in trace command output.
type RunListing struct {
	RunID   string `json:"run_id"`
	Machine string `json:"machine"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trace <db> [run-id]",
		Short: "Inspect stored traces",
		Long: `List the runs stored in a trace database, or print one run's steps.

Without a run id, lists every stored run. With a run id, prints that
run's trace in the same text form 'strata run' produces.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return listRuns(rootOpts, args[0], cmd)
			}
			return showRun(rootOpts, args[0], args[1], cmd)
		},
	}
}

func listRuns(opts *RootOptions, dbPath string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	store, err := trace.Open(dbPath)
	if err != nil {
		_ = f.Fail("E_DB", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	defer store.Close()

	runs, err := store.ListRuns(cmd.Context())
	if err != nil {
		_ = f.Fail("E_DB", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	// The store already orders newest first.
	listings := make([]RunListing, 0, len(runs))
	for _, r := range runs {
		listings = append(listings, RunListing{RunID: r.ID, Machine: r.Machine})
	}

	if f.Format == "json" {
		return f.Success(listings)
	}
	if len(listings) == 0 {
		fmt.Fprintln(f.Writer, "no stored runs")
		return nil
	}
	for _, l := range listings {
		fmt.Fprintf(f.Writer, "%s  %s\n", l.RunID, l.Machine)
	}
	return nil
}

func showRun(opts *RootOptions, dbPath, runID string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	store, err := trace.Open(dbPath)
	if err != nil {
		_ = f.Fail("E_DB", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	defer store.Close()

	steps, err := store.ReadRun(cmd.Context(), runID)
	if err != nil {
		_ = f.Fail("E_DB", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	if len(steps) == 0 {
		msg := fmt.Sprintf("no steps stored for run %s", runID)
		_ = f.Fail("E_NO_RUN", msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	if f.Format == "json" {
		return f.Success(steps)
	}
	f.Writer.Write(harness.RenderTrace(steps))
	return nil
}
