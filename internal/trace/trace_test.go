package trace

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySink_CollectsInOrder(t *testing.T) {
	var sink MemorySink
	sink.Record(Step{Seq: 1, Event: "a"})
	sink.Record(Step{Seq: 2, Event: "b"})

	steps := sink.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "a", steps[0].Event)
	assert.Equal(t, "b", steps[1].Event)

	sink.Reset()
	assert.Empty(t, sink.Steps())
}

func TestMultiSink_FansOut(t *testing.T) {
	var a, b MemorySink
	multi := MultiSink{&a, &b}
	multi.Record(Step{Seq: 1, Event: "x"})

	require.Len(t, a.Steps(), 1)
	require.Len(t, b.Steps(), 1)
	assert.Equal(t, a.Steps()[0], b.Steps()[0])
}

func TestFormatStep(t *testing.T) {
	cases := map[string]struct {
		step Step
		want string
	}{
		"plain": {
			Step{Event: "go", Disposition: Consumed, Active: []string{"Run"}},
			"go consumed [Run]",
		},
		"payload and firing": {
			Step{Event: "set", Payload: []string{"30"}, Disposition: Consumed,
				Firings: []Firing{{Transition: "Idle -> Idle"}}, Active: []string{"Idle"}},
			"set(30) consumed; Idle -> Idle [Idle]",
		},
		"chain": {
			Step{Event: "tick", Disposition: Consumed,
				Firings: []Firing{{Transition: "A -> B"}, {Transition: "B -> C"}},
				Active:  []string{"C"}},
			"tick consumed; A -> B; B -> C [C]",
		},
		"parallel leaves": {
			Step{Event: "go", Disposition: Consumed, Active: []string{"CapsOff", "NumsOff"}},
			"go consumed [CapsOff NumsOff]",
		},
		"fault": {
			Step{Event: "boom", Disposition: Consumed, Active: []string{"A"},
				Fault: "COMPLETION_OVERFLOW: chain exceeded 100"},
			"boom consumed [A] !COMPLETION_OVERFLOW: chain exceeded 100",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatStep(tc.step))
		})
	}
}

func TestFiringLabels(t *testing.T) {
	assert.Equal(t, "Run (internal)", InternalFiring("Run"))
	assert.Equal(t, "Run -> End", ExternalFiring("Run", "End"))
}

func TestClock_MonotonicFromOne(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestClock_ResumesFromStart(t *testing.T) {
	c := NewClockAt(41)
	assert.Equal(t, int64(42), c.Next())
}

func TestClock_ConcurrentNextIsUnique(t *testing.T) {
	c := NewClock()
	const n = 64
	seen := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seen[i] = c.Next()
		}(i)
	}
	wg.Wait()

	unique := make(map[int64]bool, n)
	for _, v := range seen {
		assert.False(t, unique[v], "duplicate stamp %d", v)
		unique[v] = true
	}
}
