package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/randalmurphal/dagflow/pkg/dagflow"
	"github.com/randalmurphal/dagflow/pkg/dagflow/history"
)

func newScheduler(b *testing.B, opts ...dagflow.SchedulerOption) *dagflow.Scheduler {
	b.Helper()
	s, err := dagflow.NewScheduler(opts...)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = s.Close() })
	return s
}

func schedule(b *testing.B, s *dagflow.Scheduler, g *dagflow.Graph) {
	b.Helper()
	ctx := context.Background()
	for b.Loop() {
		r, err := s.Schedule(ctx, g, 1)
		if err != nil {
			b.Fatal(err)
		}
		if r.Err != nil {
			b.Fatal(r.Err)
		}
	}
}

func BenchmarkSchedule_Chain_5(b *testing.B) {
	schedule(b, newScheduler(b), buildChain(5))
}

func BenchmarkSchedule_Chain_50(b *testing.B) {
	schedule(b, newScheduler(b), buildChain(50))
}

func BenchmarkSchedule_Fan_10(b *testing.B) {
	schedule(b, newScheduler(b), buildFan(dagflow.Parallel, 10))
}

func BenchmarkSchedule_Fan_100(b *testing.B) {
	schedule(b, newScheduler(b), buildFan(dagflow.Parallel, 100))
}

func BenchmarkSchedule_FanSwitch_100(b *testing.B) {
	schedule(b, newScheduler(b), buildFan(dagflow.Switch, 100))
}

func BenchmarkSchedule_Workers(b *testing.B) {
	for _, workers := range []int{1, 4, 24} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			schedule(b, newScheduler(b, dagflow.WithWorkers(workers)), buildFan(dagflow.Parallel, 50))
		})
	}
}

func BenchmarkSchedule_Concurrent(b *testing.B) {
	s := newScheduler(b)
	g := buildFan(dagflow.Parallel, 20)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := s.Schedule(context.Background(), g, 1); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkSchedule_WithMemoryHistory(b *testing.B) {
	schedule(b, newScheduler(b, dagflow.WithHistoryStore(history.NewMemoryStore())), buildChain(10))
}

func BenchmarkNewContext(b *testing.B) {
	bg := context.Background()
	for b.Loop() {
		dagflow.NewContext(bg)
	}
}
