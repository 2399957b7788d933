package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/model"
	"github.com/roach88/strata/internal/testutil"
	"github.com/roach88/strata/internal/trace"
)

func TestAfter_FiresAtDeadline(t *testing.T) {
	e, _ := newEngine(t, testutil.Heater())
	dispatch(t, e, "start")
	require.Equal(t, []string{"Running"}, e.ActiveNames())

	require.Nil(t, e.Tick(499*time.Millisecond).Fault)
	assert.Equal(t, []string{"Running"}, e.ActiveNames())

	require.Nil(t, e.Tick(1*time.Millisecond).Fault)
	assert.Equal(t, []string{"Faulted"}, e.ActiveNames())
}

func TestAfter_ExitCancelsTimer(t *testing.T) {
	e, _ := newEngine(t, testutil.Heater())
	dispatch(t, e, "start")
	dispatch(t, e, "stop")
	require.Equal(t, []string{"Idle"}, e.ActiveNames())

	require.Nil(t, e.Tick(600*time.Millisecond).Fault)
	assert.Equal(t, []string{"Idle"}, e.ActiveNames(), "canceled timer must not fire")
}

func TestAfter_ReentryRearmsFromZero(t *testing.T) {
	e, _ := newEngine(t, testutil.Heater())
	dispatch(t, e, "start")
	require.Nil(t, e.Tick(400*time.Millisecond).Fault)
	dispatch(t, e, "stop")
	dispatch(t, e, "start")

	// The old 400ms of progress must not carry over.
	require.Nil(t, e.Tick(400*time.Millisecond).Fault)
	assert.Equal(t, []string{"Running"}, e.ActiveNames())
	require.Nil(t, e.Tick(100*time.Millisecond).Fault)
	assert.Equal(t, []string{"Faulted"}, e.ActiveNames())
}

func TestAfter_PendingDeliveryDiscardedAfterExit(t *testing.T) {
	// Expire the timer and exit the owner before the delivery is
	// processed: the queued delivery must be discarded at dequeue.
	e, sink := newEngine(t, testutil.Heater())
	dispatch(t, e, "start")

	// Fill the timer delivery into the queue by advancing exactly to the
	// deadline, but park a competing event in front of it.
	require.Nil(t, e.Enqueue(Event{ID: eventID(t, e, "stop")}))
	require.Nil(t, e.Tick(500*time.Millisecond).Fault)

	assert.Equal(t, []string{"Idle"}, e.ActiveNames(),
		"stop processed first exits Running; the stale delivery is dropped")
	last := sink.Steps()[len(sink.Steps())-1]
	assert.Equal(t, trace.Discarded, last.Disposition)
}

func TestEvery_PeriodicInternalAction(t *testing.T) {
	b := model.NewBuilder("blinker")
	poll := b.ExternAction("poll")
	run := b.State(b.Root(), "Run", model.Simple)
	b.Initial(b.Root(), run)
	b.Transition(model.Transition{Kind: model.Internal, Source: run, Target: model.StateNone,
		Trigger: model.Trigger{Kind: model.TriggerEvery, DelayMs: 100},
		Actions: []model.Action{model.CallExtern{Proc: poll}}})

	m := testutil.MustBuild(t, b)
	polls := 0
	caps := Capabilities{Actions: []ActionFunc{func(*Context, Payload) { polls++ }}}
	e, err := New(m, caps)
	require.NoError(t, err)
	require.Nil(t, e.Init())

	for i := 0; i < 3; i++ {
		require.Nil(t, e.Tick(100*time.Millisecond).Fault)
	}
	assert.Equal(t, 3, polls)

	// A coarse tick covering several periods delivers once and realigns.
	require.Nil(t, e.Tick(250*time.Millisecond).Fault)
	assert.Equal(t, 4, polls)
}

func TestClockAdapter_SeesArmAndCancel(t *testing.T) {
	clock := testutil.NewRecordingClock()
	e, _ := newEngine(t, testutil.Heater(), WithClock(clock))
	dispatch(t, e, "start")

	started := clock.Started()
	require.Len(t, started, 1)
	assert.Equal(t, 500*time.Millisecond, started[0].Duration)

	dispatch(t, e, "stop")
	assert.Len(t, clock.Canceled(), 1)
}

func TestTimerTable_AdvanceOrderIsDeclarationOrder(t *testing.T) {
	tbl := newTimerTable()
	tbl.addSlot(0, 0, 100, 0)
	tbl.addSlot(1, 1, 50, 0)
	tbl.arm(0, 100)
	tbl.arm(1, 50)

	expired := tbl.advance(100)
	require.Equal(t, []int{0, 1}, expired, "table order, not deadline order")
}

func TestTimerTable_CancelWinsUntilDequeue(t *testing.T) {
	tbl := newTimerTable()
	tbl.addSlot(0, 7, 100, 0)
	tbl.arm(7, 100)

	expired := tbl.advance(100)
	require.Len(t, expired, 1)

	_, live := tbl.cancel(7)
	assert.True(t, live)
	assert.False(t, tbl.deliverable(timerHandle(expired[0])))
}
