// Package metrics holds the process-global atomic counters tracking
// tool-call transformation outcomes and timings (spec §4.7). Writes are
// wait-free; Snapshot reads each counter independently with relaxed
// ordering, so a snapshot is approximate across fields, never torn
// within one.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ToolMetrics is the counter set. The zero value is ready to use.
type ToolMetrics struct {
	totalCalls                 atomic.Uint64
	successfulTransformations  atomic.Uint64
	failedTransformations      atomic.Uint64
	toolResultsProcessed       atomic.Uint64
	stateLookupFailures        atomic.Uint64
	totalTransformTimeMicros   atomic.Uint64
}

// New returns a fresh, zeroed counter set.
func New() *ToolMetrics { return &ToolMetrics{} }

// RecordTransformation records one successful tool-schema transformation
// that took d.
func (m *ToolMetrics) RecordTransformation(d time.Duration) {
	m.totalCalls.Add(1)
	m.successfulTransformations.Add(1)
	m.totalTransformTimeMicros.Add(uint64(d.Microseconds()))
}

// RecordFailure records a failed transformation attempt.
func (m *ToolMetrics) RecordFailure() {
	m.totalCalls.Add(1)
	m.failedTransformations.Add(1)
}

// RecordToolResult records one tool-result block processed by the
// transformer.
func (m *ToolMetrics) RecordToolResult() {
	m.toolResultsProcessed.Add(1)
}

// RecordStateLookupFailure records a correlation-store miss during
// ToolResult → FunctionResponse translation (spec §4.2 step 2).
func (m *ToolMetrics) RecordStateLookupFailure() {
	m.stateLookupFailures.Add(1)
}

// AvgTransformTimeMicros returns the mean transform duration in
// microseconds, or 0 if no transformations have been recorded.
func (m *ToolMetrics) AvgTransformTimeMicros() float64 {
	total := m.totalCalls.Load()
	if total == 0 {
		return 0
	}
	return float64(m.totalTransformTimeMicros.Load()) / float64(total)
}

// SuccessRate returns the percentage (0-100) of calls that succeeded.
func (m *ToolMetrics) SuccessRate() float64 {
	total := m.totalCalls.Load()
	if total == 0 {
		return 0
	}
	return float64(m.successfulTransformations.Load()) / float64(total) * 100
}

// Snapshot is a consistent-enough point-in-time view of the counters.
type Snapshot struct {
	TotalCalls                uint64
	SuccessfulTransformations uint64
	FailedTransformations     uint64
	ToolResultsProcessed      uint64
	StateLookupFailures       uint64
	AvgTransformTimeMicros    float64
	SuccessRate               float64
}

// Snapshot reads every counter once and derives the averages.
func (m *ToolMetrics) Snapshot() Snapshot {
	return Snapshot{
		TotalCalls:                m.totalCalls.Load(),
		SuccessfulTransformations: m.successfulTransformations.Load(),
		FailedTransformations:     m.failedTransformations.Load(),
		ToolResultsProcessed:      m.toolResultsProcessed.Load(),
		StateLookupFailures:       m.stateLookupFailures.Load(),
		AvgTransformTimeMicros:    m.AvgTransformTimeMicros(),
		SuccessRate:               m.SuccessRate(),
	}
}

// String formats a human-readable summary, mirroring the original
// crate's Display impl for its snapshot type.
func (s Snapshot) String() string {
	return fmt.Sprintf(
		"calls=%d success=%d failed=%d tool_results=%d lookup_failures=%d avg_us=%.1f success_rate=%.1f%%",
		s.TotalCalls, s.SuccessfulTransformations, s.FailedTransformations,
		s.ToolResultsProcessed, s.StateLookupFailures, s.AvgTransformTimeMicros, s.SuccessRate,
	)
}

// Reset zeroes every counter.
func (m *ToolMetrics) Reset() {
	m.totalCalls.Store(0)
	m.successfulTransformations.Store(0)
	m.failedTransformations.Store(0)
	m.toolResultsProcessed.Store(0)
	m.stateLookupFailures.Store(0)
	m.totalTransformTimeMicros.Store(0)
}
