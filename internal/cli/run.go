package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/harness"
	"github.com/roach88/strata/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	StorePath string
}

// RunResult holds run command output.
type RunResult struct {
	Scenario string       `json:"scenario"`
	RunID    string       `json:"run_id,omitempty"`
	Passed   bool         `json:"passed"`
	Steps    []trace.Step `json:"steps"`
	Calls    []string     `json:"calls,omitempty"`
	Failures []string     `json:"failures,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "run <scenario.yaml>",
		Aliases: []string{"simulate"},
		Short:   "Run a scenario and print its trace",
		Long: `Run a scripted scenario against the interpreter and print the trace.

With --store, the trace is also persisted to a SQLite database under a
fresh run id for later inspection with 'strata trace'.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.StorePath, "store", "", "SQLite database to persist the trace to")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	sc, err := harness.LoadScenario(path)
	if err != nil {
		_ = f.Fail("E_SCENARIO", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	res, err := harness.RunFile(path)
	if err != nil {
		_ = f.Fail("E_RUN", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	result := RunResult{
		Scenario: sc.Name,
		Passed:   res.Ok(),
		Steps:    res.Steps,
		Calls:    res.Calls,
		Failures: res.Failures,
	}

	if opts.StorePath != "" {
		runID, err := persistTrace(cmd.Context(), opts.StorePath, sc.Name, res.Steps)
		if err != nil {
			_ = f.Fail("E_STORE", err.Error(), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
		result.RunID = runID
		f.VerboseLog("trace stored as run %s", runID)
	}

	if f.Format == "json" {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		printRun(f, result)
	}

	if !result.Passed {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", sc.Name))
	}
	return nil
}

func persistTrace(ctx context.Context, path, machine string, steps []trace.Step) (string, error) {
	store, err := trace.Open(path)
	if err != nil {
		return "", err
	}
	defer store.Close()

	runID := uuid.NewString()
	if err := store.BeginRun(ctx, runID, machine); err != nil {
		return "", err
	}
	for _, step := range steps {
		if err := store.WriteStep(ctx, runID, step); err != nil {
			return "", err
		}
	}
	return runID, nil
}

func printRun(f *OutputFormatter, result RunResult) {
	f.Writer.Write(harness.RenderTrace(result.Steps))
	if result.RunID != "" {
		fmt.Fprintf(f.Writer, "run id: %s\n", result.RunID)
	}
	if result.Passed {
		fmt.Fprintf(f.Writer, "scenario %s: pass\n", result.Scenario)
		return
	}
	fmt.Fprintf(f.Writer, "scenario %s: FAIL\n", result.Scenario)
	for _, failure := range result.Failures {
		fmt.Fprintf(f.Writer, "  %s\n", failure)
	}
}
