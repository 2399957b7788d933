package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/analysis"
	"github.com/roach88/strata/internal/loader"
	"github.com/roach88/strata/internal/model"
)

// FaultView is the JSON projection of one compile-time fault.
type FaultView struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	State    string `json:"state,omitempty"`
	Region   string `json:"region,omitempty"`
}

// ValidationResult holds validate command output.
type ValidationResult struct {
	Machine  string      `json:"machine"`
	Valid    bool        `json:"valid"`
	Faults   []FaultView `json:"faults,omitempty"`
	Warnings int         `json:"warnings"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <machine.yaml>",
		Short: "Validate and analyze a machine document",
		Long: `Validate a machine document: structural checks, determinism proofs,
reachability, and deferral cycle detection. A machine that validates here
is accepted by the simulator and by code generation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	m, faults, err := loader.Load(path)
	if err != nil {
		_ = f.Fail("E_LOAD", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	if !faults.HasErrors() {
		f.VerboseLog("document ok: %d states, %d transitions", len(m.States), len(m.Transitions))
		report := analysis.Analyze(m)
		faults = report.Faults
	}

	views, warnings := faultViews(m, faults)
	result := ValidationResult{
		Machine:  m.Name,
		Valid:    !faults.HasErrors(),
		Faults:   views,
		Warnings: warnings,
	}

	if f.Format == "json" {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		printValidation(f, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("machine %s rejected", m.Name))
	}
	return nil
}

func faultViews(m *model.Machine, faults model.FaultList) ([]FaultView, int) {
	var views []FaultView
	warnings := 0
	for _, fault := range faults {
		v := FaultView{
			Code:     string(fault.Code),
			Severity: "error",
			Message:  fault.Message,
		}
		if fault.Severity == model.SeverityWarning {
			v.Severity = "warning"
			warnings++
		}
		if fault.State != model.StateNone && int(fault.State) < len(m.States) {
			v.State = m.States[fault.State].Name
		}
		if fault.Region != model.RegionNone && int(fault.Region) < len(m.Regions) {
			v.Region = m.Regions[fault.Region].Name
		}
		views = append(views, v)
	}
	return views, warnings
}

func printValidation(f *OutputFormatter, result ValidationResult) {
	if result.Valid {
		fmt.Fprintf(f.Writer, "machine %s: ok", result.Machine)
		if result.Warnings > 0 {
			fmt.Fprintf(f.Writer, " (%d warning(s))", result.Warnings)
		}
		fmt.Fprintln(f.Writer)
	} else {
		fmt.Fprintf(f.Writer, "machine %s: rejected\n", result.Machine)
	}
	for _, v := range result.Faults {
		loc := ""
		if v.State != "" {
			loc = " at " + v.State
		} else if v.Region != "" {
			loc = " in " + v.Region
		}
		fmt.Fprintf(f.Writer, "  %s %s%s: %s\n", v.Severity, v.Code, loc, v.Message)
	}
}
