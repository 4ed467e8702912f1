// Package observability provides logging, metrics, and tracing helpers for
// dagflow runs.
//
// Logging goes through log/slog. Metrics and spans go through OpenTelemetry
// using the global providers. Metrics and tracing are opt-in and fall back to
// no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger returns logger with graph and run fields attached.
func EnrichLogger(logger *slog.Logger, graphID, runID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("graph_id", graphID),
		slog.String("run_id", runID),
	)
}

// LogRunStart logs the start of a scheduled run.
func LogRunStart(logger *slog.Logger, runID, mode string, nodeCount int) {
	if logger == nil {
		return
	}
	logger.Info("graph run starting",
		slog.String("run_id", runID),
		slog.String("mode", mode),
		slog.Int("nodes", nodeCount),
	)
}

// LogRunComplete logs the end of a run. pending counts tasks that did not
// report before the await deadline.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, traced, pending int) {
	if logger == nil {
		return
	}
	logger.Info("graph run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes_traced", traced),
		slog.Int("nodes_pending", pending),
	)
}

// LogRunError logs a run whose terminal output is a failure.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Warn("graph run produced no output",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogWave logs one dispatch wave.
func LogWave(logger *slog.Logger, wave int, nodes []string) {
	if logger == nil {
		return
	}
	logger.Debug("dispatching wave",
		slog.Int("wave", wave),
		slog.Any("nodes", nodes),
	)
}

// LogAwaitTimeout logs tasks left behind when the await deadline passed.
func LogAwaitTimeout(logger *slog.Logger, runID string, timeout time.Duration, pending int) {
	if logger == nil {
		return
	}
	logger.Warn("await deadline exceeded",
		slog.String("run_id", runID),
		slog.Duration("timeout", timeout),
		slog.Int("pending", pending),
	)
}

// LogNodeState logs a node state transition.
func LogNodeState(logger *slog.Logger, node, from, to string) {
	if logger == nil {
		return
	}
	logger.Debug("node state changed",
		slog.String("node", node),
		slog.String("from", from),
		slog.String("to", to),
	)
}

// LogNodeComplete logs a node that reached SUCCESS.
func LogNodeComplete(logger *slog.Logger, node string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node", node),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs a node that finished without a result.
func LogNodeError(logger *slog.Logger, node, state string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("node finished without result",
		slog.String("node", node),
		slog.String("state", state),
		slog.String("error", err.Error()),
	)
}

// LogHistorySaved logs a persisted run record.
func LogHistorySaved(logger *slog.Logger, runID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("run history saved",
		slog.String("run_id", runID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogHistoryError logs a history failure. It never fails the run.
func LogHistoryError(logger *slog.Logger, runID, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("run history failed",
		slog.String("run_id", runID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation returns a function reporting the milliseconds elapsed since
// TimedOperation was called.
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
