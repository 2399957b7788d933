package model

// Arena handles. Every element of a validated machine is addressed by a
// small stable integer index into the owning Machine's flat slices. Handles
// survive renames, which keeps recorded traces and history slots valid
// across model edits that do not change topology.

// StateID indexes Machine.States.
type StateID int32

// RegionID indexes Machine.Regions.
type RegionID int32

// TransitionID indexes Machine.Transitions.
type TransitionID int32

// EventID indexes Machine.Events.
type EventID int32

// GuardRef indexes Machine.ExternGuards, the resolved guard capability table.
type GuardRef int32

// ProcRef indexes Machine.ExternActions, the resolved action capability table.
type ProcRef int32

// HistorySlot indexes per-instance history storage. Assigned during
// validation, one slot per history pseudostate.
type HistorySlot int32

// Sentinel values for "no element". The zero value of every handle is a
// real index, so absence is always explicit.
const (
	StateNone      StateID      = -1
	RegionNone     RegionID     = -1
	TransitionNone TransitionID = -1
	EventNone      EventID      = -1
	SlotNone       HistorySlot  = -1
)
