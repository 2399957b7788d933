package trace

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "traces.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSteps() []Step {
	return []Step{
		{Seq: 1, EventID: model.EventNone, Event: "(init)", Disposition: Consumed,
			Firings:   []Firing{{ID: model.TransitionNone, Transition: "(init)", Entered: []string{"Idle"}}},
			ActiveIDs: []model.StateID{0}, Active: []string{"Idle"}},
		{Seq: 2, EventID: 0, Event: "set", Payload: []string{"30"}, Disposition: Consumed,
			Firings:   []Firing{{ID: 0, Transition: "Idle -> Idle", Actions: []string{"target = 30"}}},
			PreActive: []model.StateID{0}, ActiveIDs: []model.StateID{0},
			Active:    []string{"Idle"}, QueueLen: 1},
		{Seq: 3, EventID: 2, Event: "bad", Disposition: Dropped,
			PreActive: []model.StateID{0}, ActiveIDs: []model.StateID{0}, Active: []string{"Idle"},
			Fault: "QUEUE_OVERFLOW: queue full at capacity 8"},
	}
}

func TestStore_WriteReadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.BeginRun(ctx, "run-1", "thermostat"))
	for _, step := range sampleSteps() {
		require.NoError(t, store.WriteStep(ctx, "run-1", step))
	}

	got, err := store.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, sampleSteps(), got)
}

func TestStore_WriteStepIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.BeginRun(ctx, "run-1", "m"))
	step := sampleSteps()[0]
	require.NoError(t, store.WriteStep(ctx, "run-1", step))
	require.NoError(t, store.WriteStep(ctx, "run-1", step), "replayed write is a no-op")

	got, err := store.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_BeginRunIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.BeginRun(ctx, "run-1", "m"))
	require.NoError(t, store.BeginRun(ctx, "run-1", "m"))

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []RunInfo{{ID: "run-1", Machine: "m"}}, runs)
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.BeginRun(ctx, "run-old", "m"))
	require.NoError(t, store.BeginRun(ctx, "run-mid", "m"))
	require.NoError(t, store.BeginRun(ctx, "run-new", "m"))

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []RunInfo{
		{ID: "run-new", Machine: "m"},
		{ID: "run-mid", Machine: "m"},
		{ID: "run-old", Machine: "m"},
	}, runs)
}

func TestStore_RunsAreIsolated(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.BeginRun(ctx, "run-a", "m"))
	require.NoError(t, store.BeginRun(ctx, "run-b", "m"))
	require.NoError(t, store.WriteStep(ctx, "run-a", sampleSteps()[0]))

	got, err := store.ReadRun(ctx, "run-b")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_ReopenSeesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.BeginRun(ctx, "run-1", "m"))
	require.NoError(t, store.WriteStep(ctx, "run-1", sampleSteps()[0]))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStoreSink_RecordsSteps(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.BeginRun(ctx, "run-1", "m"))

	sink := NewStoreSink(store, "run-1")
	for _, step := range sampleSteps() {
		sink.Record(step)
	}
	require.NoError(t, sink.Err())

	got, err := store.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, sampleSteps(), got)
}
