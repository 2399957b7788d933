package analysis

import (
	"github.com/roach88/strata/internal/hierarchy"
	"github.com/roach88/strata/internal/model"
)

// Report is the outcome of one analysis run.
type Report struct {
	// Faults holds every finding, errors and warnings, in discovery order.
	Faults model.FaultList

	// Aborted is set when an abort-class fault (hierarchy undefined)
	// stopped analysis before the remaining checkers ran.
	Aborted bool

	// Resolver is the hierarchy resolver built for the machine, reusable
	// by the dispatch engine. Nil when Aborted.
	Resolver *hierarchy.Resolver

	// Index is the transition index built for the machine, reusable by the
	// dispatch engine. Nil when Aborted.
	Index *Index
}

// Ok reports whether the machine passed: no errors (warnings allowed).
func (r *Report) Ok() bool {
	return !r.Aborted && !r.Faults.HasErrors()
}

// Analyze runs structural validation (if not already done), builds the
// hierarchy resolver, and runs every checker. Faults are collected with
// recoverable continuation; abort-class faults stop the run.
func Analyze(m *model.Machine, opts ...hierarchy.Option) *Report {
	report := &Report{}

	if !m.Validated() {
		report.Faults = m.Validate()
		if report.Faults.HasErrors() {
			for _, f := range report.Faults {
				if f.Aborting() {
					report.Aborted = true
					return report
				}
			}
			return report
		}
	}

	resolver, fault := hierarchy.New(m, opts...)
	if fault != nil {
		report.Faults.Add(fault)
		report.Aborted = true
		return report
	}
	report.Resolver = resolver
	report.Index = NewIndex(m)

	checkDeterminism(m, report.Index, &report.Faults)
	checkStructure(m, resolver, report.Index, &report.Faults)
	reached := checkReachability(m, resolver, report.Index, &report.Faults)
	checkDeferralCycles(m, resolver, report.Index, reached, &report.Faults)

	return report
}
