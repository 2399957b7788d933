package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/harness"
)

// TestResult holds the outcome of one scenario within a test run.
type TestResult struct {
	Scenario string   `json:"scenario"`
	Passed   bool     `json:"passed"`
	Failures []string `json:"failures,omitempty"`
}

// TestSummary holds test command output.
type TestSummary struct {
	Total   int          `json:"total"`
	Passed  int          `json:"passed"`
	Failed  int          `json:"failed"`
	Results []TestResult `json:"results"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run every scenario in a directory",
		Long: `Run every scenario file (*.yaml) in a directory and report pass/fail
per scenario. Machine documents referenced by the scenarios resolve
relative to each scenario file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(rootOpts, args[0], cmd)
		},
	}
}

func runTests(opts *RootOptions, dir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	paths, err := scenarioFiles(dir)
	if err != nil {
		_ = f.Fail("E_DIR", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	if len(paths) == 0 {
		msg := fmt.Sprintf("no scenario files in %s", dir)
		_ = f.Fail("E_EMPTY", msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	summary := TestSummary{Total: len(paths)}
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		f.VerboseLog("running %s", path)

		res, err := harness.RunFile(path)
		tr := TestResult{Scenario: name}
		switch {
		case err != nil:
			tr.Failures = []string{err.Error()}
		case res.Ok():
			tr.Passed = true
		default:
			tr.Failures = res.Failures
		}
		if tr.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, tr)
	}

	if f.Format == "json" {
		if err := f.Success(summary); err != nil {
			return err
		}
	} else {
		printSummary(f, summary)
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", summary.Failed, summary.Total))
	}
	return nil
}

// scenarioFiles lists the *.yaml files directly in dir, sorted by name.
// Subdirectories hold machine documents and are not scanned.
func scenarioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func printSummary(f *OutputFormatter, summary TestSummary) {
	for _, r := range summary.Results {
		if r.Passed {
			fmt.Fprintf(f.Writer, "pass %s\n", r.Scenario)
			continue
		}
		fmt.Fprintf(f.Writer, "FAIL %s\n", r.Scenario)
		for _, failure := range r.Failures {
			fmt.Fprintf(f.Writer, "  %s\n", failure)
		}
	}
	fmt.Fprintf(f.Writer, "%d/%d passed\n", summary.Passed, summary.Total)
}
