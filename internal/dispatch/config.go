package dispatch

import (
	"github.com/roach88/strata/internal/model"
)

// ActiveConfiguration is the complete per-instance runtime state. All
// storage is sized at construction from the validated model - region
// count, history slots, join widths, queue capacity, timer count - and
// never grows afterwards.
type ActiveConfiguration struct {
	// active holds, per region, the active direct child, or StateNone
	// while the region is inactive. The machine's leaves are found by
	// following cursors downward.
	active []model.StateID

	// history holds the recorded targets per history slot. A shallow slot
	// records one direct child; a deep slot records the active leaves
	// under the history's composite. Empty until first recorded.
	history [][]model.StateID

	// joinArrived holds per-join arrival flags, aligned with the join's
	// declared source list.
	joinArrived map[model.StateID][]bool

	// held stores deferred events per holding state, in arrival order.
	held []heldEvent
}

type heldEvent struct {
	event  Event
	holder model.StateID
}

func newActiveConfiguration(m *model.Machine) *ActiveConfiguration {
	cfg := &ActiveConfiguration{
		active:      make([]model.StateID, len(m.Regions)),
		history:     make([][]model.StateID, m.HistorySlots),
		joinArrived: make(map[model.StateID][]bool),
		held:        make([]heldEvent, 0, m.Queue.Capacity),
	}
	for i := range cfg.active {
		cfg.active[i] = model.StateNone
	}
	for i := range m.States {
		s := &m.States[i]
		if s.Kind == model.Join {
			cfg.joinArrived[s.ID] = make([]bool, len(s.JoinSources))
		}
	}
	return cfg
}

// Active returns the region's active direct child, or StateNone.
func (c *ActiveConfiguration) Active(r model.RegionID) model.StateID {
	return c.active[r]
}

// IsActive reports whether a state is in the active configuration.
func (c *ActiveConfiguration) IsActive(m *model.Machine, s model.StateID) bool {
	cur := s
	for {
		owner := m.States[cur].Owner
		if c.active[owner] != cur {
			return false
		}
		parent := m.Regions[owner].Owner
		if parent == model.StateNone {
			return true
		}
		cur = parent
	}
}

// History returns the recorded targets of a history slot; nil when nothing
// has been recorded yet. Callers must not mutate the returned slice.
func (c *ActiveConfiguration) History(slot model.HistorySlot) []model.StateID {
	if slot == model.SlotNone || int(slot) >= len(c.history) {
		return nil
	}
	return c.history[slot]
}

// HeldCount returns the number of events currently parked in deferral
// holding sets.
func (c *ActiveConfiguration) HeldCount() int {
	return len(c.held)
}
