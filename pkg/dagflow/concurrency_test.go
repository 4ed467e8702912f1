package dagflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSchedule_ConcurrentRunsDoNotInterfere(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := NewScheduler(WithSchedulerLogger(discardLogger()), WithWorkers(8))
	require.NoError(t, err)
	defer s.Close()

	g := sampleGraph(t, Parallel)

	const runs = 16
	var wg sync.WaitGroup
	results := make([]*Result, runs)
	errs := make([]error, runs)
	for i := range runs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Schedule(context.Background(), g, fmt.Sprintf("in-%d", i))
		}(i)
	}
	wg.Wait()

	runIDs := make(map[string]bool, runs)
	for i := range runs {
		require.NoError(t, errs[i])
		input := fmt.Sprintf("in-%d", i)
		want := sampleResults(input)

		assert.Equal(t, want["final"], results[i].Output, input)
		require.Len(t, results[i].History, 10, input)
		for _, tr := range results[i].History {
			assert.Equal(t, want[tr.Node.Name], tr.Result, "%s/%s", input, tr.Node.Name)
			assert.Equal(t, results[i].RunID, tr.RunID)
		}
		runIDs[results[i].RunID] = true
	}
	assert.Len(t, runIDs, runs, "every run gets its own id")
	assert.False(t, g.IsScheduling(context.Background()))
}

func TestSchedule_ConcurrentMixedFailures(t *testing.T) {
	s := newTestScheduler(t)
	healthy := sampleGraph(t, Parallel)
	broken := sampleGraph(t, Parallel, "s1", "i2")

	var wg sync.WaitGroup
	var ok, ineffective atomic.Int32
	for i := range 10 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g := healthy
			if i%2 == 1 {
				g = broken
			}
			result, err := s.Schedule(context.Background(), g, "X")
			if !assert.NoError(t, err) {
				return
			}
			switch {
			case result.Err == nil && result.Output == sampleResults("X")["final"]:
				ok.Add(1)
			case assert.ErrorIs(t, result.Err, ErrNodeIneffective):
				ineffective.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(5), ok.Load())
	assert.Equal(t, int32(5), ineffective.Load())
}

func TestSchedule_EachNodeRunsOncePerRun(t *testing.T) {
	s := newTestScheduler(t)
	g := NewGraph(Parallel, WithObserver(NopObserver{}))

	var calls atomic.Int32
	root, _ := g.AddNode(Root[string]())
	a, _ := g.AddNode(countingUnit("a", &calls))
	b, _ := g.AddNode(countingUnit("b", &calls))
	join, _ := g.AddNode(countingUnit("join", &calls))
	require.NoError(t, g.AddEdge(a, root))
	require.NoError(t, g.AddEdge(b, root))
	require.NoError(t, g.AddEdge(join, a))
	require.NoError(t, g.AddEdge(join, b))

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Schedule(context.Background(), g, "X")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(15), calls.Load())
}
