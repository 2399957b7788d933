package model

import (
	"fmt"
	"strings"
)

// FaultCode categorizes compile-time faults raised by validation and the
// analyzers. The diagnostic message catalog is out of scope; consumers key
// off codes, the Message field is advisory.
type FaultCode string

const (
	// FaultDuplicateName indicates two siblings share a name within one scope.
	FaultDuplicateName FaultCode = "DUPLICATE_NAME"

	// FaultMissingInitial indicates a region without exactly one initial target.
	FaultMissingInitial FaultCode = "MISSING_INITIAL"

	// FaultBadContainment indicates a malformed containment tree: dangling
	// handles, a state outside its declared owner, or a parallel state with
	// fewer than two regions. Aborts analysis - hierarchy is undefined.
	FaultBadContainment FaultCode = "BAD_CONTAINMENT"

	// FaultNestingTooDeep indicates the containment tree exceeds the
	// configured maximum depth. Aborts analysis.
	FaultNestingTooDeep FaultCode = "NESTING_TOO_DEEP"

	// FaultDisjointTrees indicates an LCA query over states with no common
	// ancestor. Compile-time only, never reachable in a validated model.
	// Aborts analysis.
	FaultDisjointTrees FaultCode = "DISJOINT_TREES"

	// FaultRegionCrossing indicates a transition whose source/target pair
	// crosses an orthogonal region boundary without going through fork/join.
	FaultRegionCrossing FaultCode = "REGION_CROSSING"

	// FaultNondeterminism indicates equal-priority transitions on the same
	// (state, event) whose guards could not be proven disjoint.
	FaultNondeterminism FaultCode = "NONDETERMINISM"

	// FaultUnconditional flags a tautological guard on a guarded transition.
	FaultUnconditional FaultCode = "UNCONDITIONAL_GUARD"

	// FaultDeadTransition flags a contradictory guard: the transition can
	// never fire.
	FaultDeadTransition FaultCode = "DEAD_TRANSITION"

	// FaultPriorityResolved notes that overlapping guards were resolved by
	// explicit distinct priorities. Advisory.
	FaultPriorityResolved FaultCode = "PRIORITY_RESOLVED"

	// FaultUnreachableState indicates a state never entered from the
	// initial configuration.
	FaultUnreachableState FaultCode = "UNREACHABLE_STATE"

	// FaultDeferralCycle indicates an event that, once deferred, can never
	// be consumed again.
	FaultDeferralCycle FaultCode = "DEFERRAL_CYCLE"

	// FaultForkJoinMismatch indicates a fork or join whose targets/sources
	// do not span the regions of exactly one parallel state.
	FaultForkJoinMismatch FaultCode = "FORK_JOIN_MISMATCH"

	// FaultTypeMismatch indicates a guard comparison against a value
	// outside the field's declared domain, or an operator invalid for the
	// field kind.
	FaultTypeMismatch FaultCode = "TYPE_MISMATCH"
)

// Severity distinguishes hard faults from advisory warnings.
type Severity int

const (
	// SeverityError rejects the model.
	SeverityError Severity = iota + 1
	// SeverityWarning surfaces an intentional but noteworthy resolution.
	SeverityWarning
)

// Fault is one compile-time finding, keyed by stable handles so tooling can
// map it back to source positions.
type Fault struct {
	Code     FaultCode
	Severity Severity
	Message  string

	// Optional handles locating the fault. Negative sentinels mean unset.
	State      StateID
	Region     RegionID
	Transition TransitionID
	Event      EventID
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Errorf builds a fault with a formatted message and unset handles.
func Errorf(code FaultCode, format string, args ...any) *Fault {
	return &Fault{
		Code:       code,
		Severity:   SeverityError,
		Message:    fmt.Sprintf(format, args...),
		State:      StateNone,
		Region:     RegionNone,
		Transition: TransitionNone,
		Event:      EventNone,
	}
}

// Warnf builds a warning with a formatted message and unset handles.
func Warnf(code FaultCode, format string, args ...any) *Fault {
	f := Errorf(code, format, args...)
	f.Severity = SeverityWarning
	return f
}

// At attaches a state handle.
func (f *Fault) At(s StateID) *Fault { f.State = s; return f }

// In attaches a region handle.
func (f *Fault) In(r RegionID) *Fault { f.Region = r; return f }

// On attaches a transition handle.
func (f *Fault) On(t TransitionID) *Fault { f.Transition = t; return f }

// For attaches an event handle.
func (f *Fault) For(e EventID) *Fault { f.Event = e; return f }

// Aborting reports whether the fault makes LCA or hierarchy undefined, in
// which case analysis stops instead of continuing to collect.
func (f *Fault) Aborting() bool {
	switch f.Code {
	case FaultBadContainment, FaultNestingTooDeep, FaultDisjointTrees:
		return true
	default:
		return false
	}
}

// FaultList collects faults with recoverable continuation.
type FaultList []*Fault

// Add appends a fault. Nil faults are ignored.
func (l *FaultList) Add(f *Fault) {
	if f != nil {
		*l = append(*l, f)
	}
}

// HasErrors reports whether any collected fault is SeverityError.
func (l FaultList) HasErrors() bool {
	for _, f := range l {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Error implements the error interface over the whole list.
func (l FaultList) Error() string {
	if len(l) == 0 {
		return "no faults"
	}
	parts := make([]string, len(l))
	for i, f := range l {
		parts[i] = f.Error()
	}
	return strings.Join(parts, "; ")
}
