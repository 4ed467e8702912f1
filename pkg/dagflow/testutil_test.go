package dagflow

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected failure")

// stringUnit appends its name to every parameter and joins them with ";".
func stringUnit(name string, fail bool) Unit {
	return NewUnit(name, func(_ Context, p Params) (any, error) {
		if fail {
			return nil, errInjected
		}
		parts := make([]string, len(p))
		for i, param := range p {
			parts[i] = fmt.Sprintf("%v+%s", param.Value, name)
		}
		return strings.Join(parts, ";"), nil
	})
}

// numberUnit returns sqrt(|sum|) of its parameters. Non-numeric values
// contribute the FNV-32a hash of their string form.
func numberUnit(name string, fail bool) Unit {
	return NewUnit(name, func(_ Context, p Params) (any, error) {
		if fail {
			return nil, errInjected
		}
		sum := 0.0
		for _, v := range p.Values() {
			sum += numericValue(v)
		}
		return math.Sqrt(math.Abs(sum)), nil
	})
}

func numericValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		h := fnv.New32a()
		_, _ = io.WriteString(h, fmt.Sprint(v))
		return float64(h.Sum32())
	}
}

// sleepUnit returns its first parameter after d.
func sleepUnit(name string, d time.Duration) Unit {
	return NewUnit(name, func(ctx Context, p Params) (any, error) {
		time.Sleep(d)
		v, _ := p.First()
		return v, nil
	})
}

// countingUnit counts Run calls and passes its first parameter through.
func countingUnit(name string, calls *atomic.Int32) Unit {
	return NewUnit(name, func(_ Context, p Params) (any, error) {
		calls.Add(1)
		v, _ := p.First()
		return v, nil
	})
}

// sampleGraph builds the ten node graph:
//
//	s1 -> root, i1 -> root, s2 -> s1, s3 -> s1, s4 -> i1, i2 -> i1,
//	s5 -> s3, s5 -> s4, s6 -> s2, s6 -> s5, s6 -> i2, final -> s6
//
// Names listed in failing return errInjected.
func sampleGraph(t testing.TB, mode Mode, failing ...string) *Graph {
	t.Helper()
	fails := make(map[string]bool, len(failing))
	for _, name := range failing {
		fails[name] = true
	}

	g := NewGraph(mode, WithObserver(NopObserver{}))
	units := []Unit{
		Root[string](),
		stringUnit("s1", fails["s1"]),
		stringUnit("s2", fails["s2"]),
		stringUnit("s3", fails["s3"]),
		stringUnit("s4", fails["s4"]),
		stringUnit("s5", fails["s5"]),
		stringUnit("s6", fails["s6"]),
		numberUnit("i1", fails["i1"]),
		numberUnit("i2", fails["i2"]),
		Terminal[string](),
	}
	for _, u := range units {
		_, err := g.AddNode(u)
		require.NoError(t, err)
	}

	edges := [][2]string{
		{"s1", RootName}, {"i1", RootName},
		{"s2", "s1"}, {"s3", "s1"},
		{"s4", "i1"}, {"i2", "i1"},
		{"s5", "s3"}, {"s5", "s4"},
		{"s6", "s2"}, {"s6", "s5"}, {"s6", "i2"},
		{TerminalName, "s6"},
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdgeByName(e[0], e[1]))
	}
	return g
}

// sampleResults returns every node's parallel-mode result of sampleGraph for
// input. Parameters reach each unit sorted by producer name.
func sampleResults(input string) map[string]any {
	i1 := math.Sqrt(math.Abs(numericValue(input)))
	i2 := math.Sqrt(math.Abs(i1))
	s1 := input + "+s1"
	s2 := s1 + "+s2"
	s3 := s1 + "+s3"
	s4 := fmt.Sprintf("%v+s4", i1)
	s5 := s3 + "+s5;" + s4 + "+s5"
	s6 := strings.Join([]string{fmt.Sprintf("%v+s6", i2), s2 + "+s6", s5 + "+s6"}, ";")
	return map[string]any{
		"root":  input,
		"s1":    s1,
		"s2":    s2,
		"s3":    s3,
		"s4":    s4,
		"s5":    s5,
		"s6":    s6,
		"i1":    i1,
		"i2":    i2,
		"final": s6,
	}
}

func newTestScheduler(t testing.TB, opts ...SchedulerOption) *Scheduler {
	t.Helper()
	opts = append([]SchedulerOption{WithSchedulerLogger(discardLogger())}, opts...)
	s, err := NewScheduler(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runCtx returns a context addressing a fresh run overlay on every node.
func runCtx(t testing.TB, nodes ...*Node) Context {
	t.Helper()
	ctx := NewContext(context.Background(), WithLogger(discardLogger()))
	for _, n := range nodes {
		require.True(t, n.BeginRun(ctx))
	}
	t.Cleanup(func() {
		for _, n := range nodes {
			n.EndRun(ctx)
		}
	})
	return ctx
}
