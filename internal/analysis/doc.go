// Package analysis implements the compile-time analyzers: the determinism
// proof per (state, event), structural fork/join and region-boundary
// checks, unreachable-state detection, and deferral-cycle detection.
//
// Analysis collects faults with recoverable continuation so one run
// surfaces as many findings as possible; only faults that leave the
// hierarchy undefined (bad containment, nesting beyond the maximum) abort.
//
// Ambiguity is never silently resolved. Equal-priority transitions whose
// guards cannot be proven disjoint over the declared field domains are a
// hard fault; overlapping guards with distinct explicit priorities are
// allowed (lowest number wins) and produce an advisory warning noting the
// intentional resolution.
//
// The candidate-selection rule (innermost state wins, ascending priority)
// lives here and is shared by the dispatch engine, so the static proof and
// the runtime selection can never drift apart.
package analysis
