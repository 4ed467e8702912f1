package dagflow

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/dagflow/pkg/dagflow/config"
	"github.com/randalmurphal/dagflow/pkg/dagflow/history"
	"github.com/randalmurphal/dagflow/pkg/dagflow/observability"
)

// Scheduler defaults.
const (
	DefaultWorkers      = 24
	DefaultQueueSize    = 1024
	DefaultAwaitTimeout = 2 * time.Second
	DefaultAwaitGrace   = 500 * time.Millisecond
)

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithWorkers sets the pool size. It bounds how many nodes can be waiting or
// running at once across all runs.
// Default: 24
func WithWorkers(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueueSize sets how many submitted nodes may wait for a worker before
// Schedule blocks.
// Default: 1024
func WithQueueSize(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n >= 0 {
			s.queueSize = n
		}
	}
}

// WithAwaitTimeout sets how long Schedule waits for a graph without a
// timeout.
// Default: 2s
func WithAwaitTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.awaitTimeout = d
		}
	}
}

// WithAwaitGrace sets the slack added to a graph's timeout when awaiting it.
// Default: 500ms
func WithAwaitGrace(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d >= 0 {
			s.awaitGrace = d
		}
	}
}

// WithSchedulerLogger sets the logger runs are logged to.
// Default: slog.Default()
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables OpenTelemetry metrics using the global meter provider.
// Default: disabled
func WithMetrics(enabled bool) SchedulerOption {
	return func(s *Scheduler) {
		if enabled {
			s.metrics = observability.NewMetricsRecorder()
		} else {
			s.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OpenTelemetry spans using the global tracer provider.
// Default: disabled
func WithTracing(enabled bool) SchedulerOption {
	return func(s *Scheduler) {
		if enabled {
			s.spans = observability.NewSpanManager()
		} else {
			s.spans = observability.NoopSpanManager{}
		}
	}
}

// WithHistoryStore persists every run's Result to store. The caller keeps
// ownership; Close does not close it.
func WithHistoryStore(store history.Store) SchedulerOption {
	return func(s *Scheduler) {
		s.history = store
		s.ownsHistory = false
	}
}

// WithConfig applies config keys workers, queue_size, await_timeout,
// await_grace, metrics and tracing. A "history" section opens a store with
// history.Open that the scheduler owns and closes.
//
// Options after WithConfig override it.
func WithConfig(cfg config.Config) SchedulerOption {
	return func(s *Scheduler) {
		WithWorkers(cfg.Int("workers", s.workers))(s)
		WithQueueSize(cfg.Int("queue_size", s.queueSize))(s)
		WithAwaitTimeout(cfg.Duration("await_timeout", s.awaitTimeout))(s)
		WithAwaitGrace(cfg.Duration("await_grace", s.awaitGrace))(s)
		if cfg.Has("metrics") {
			WithMetrics(cfg.Bool("metrics", false))(s)
		}
		if cfg.Has("tracing") {
			WithTracing(cfg.Bool("tracing", false))(s)
		}
		if cfg.Has("history") {
			sub := cfg.Sub("history")
			s.historyConfig = &sub
		}
	}
}

type runConfig struct {
	runID string
}

// RunOption configures one Schedule call.
type RunOption func(*runConfig)

// WithRunID sets the run id instead of generating one, or inheriting the one
// carried by the context.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}
