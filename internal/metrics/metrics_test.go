package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordTransformationAndSuccessRate(t *testing.T) {
	m := New()
	m.RecordTransformation(10 * time.Millisecond)
	m.RecordTransformation(20 * time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.TotalCalls)
	assert.Equal(t, uint64(2), snap.SuccessfulTransformations)
	assert.Equal(t, float64(100), snap.SuccessRate)
	assert.Greater(t, snap.AvgTransformTimeMicros, float64(0))
}

func TestRecordFailureAffectsSuccessRate(t *testing.T) {
	m := New()
	m.RecordTransformation(time.Millisecond)
	m.RecordFailure()

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.TotalCalls)
	assert.Equal(t, uint64(1), snap.FailedTransformations)
	assert.Equal(t, float64(50), snap.SuccessRate)
}

func TestRecordToolResultAndStateLookupFailure(t *testing.T) {
	m := New()
	m.RecordToolResult()
	m.RecordToolResult()
	m.RecordStateLookupFailure()

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.ToolResultsProcessed)
	assert.Equal(t, uint64(1), snap.StateLookupFailures)
}

func TestZeroValueHasNoDivideByZero(t *testing.T) {
	m := New()
	snap := m.Snapshot()
	assert.Equal(t, float64(0), snap.SuccessRate)
	assert.Equal(t, float64(0), snap.AvgTransformTimeMicros)
}

func TestReset(t *testing.T) {
	m := New()
	m.RecordTransformation(time.Millisecond)
	m.RecordFailure()
	m.Reset()

	snap := m.Snapshot()
	assert.Equal(t, uint64(0), snap.TotalCalls)
	assert.Equal(t, uint64(0), snap.FailedTransformations)
}

func TestSnapshotString(t *testing.T) {
	m := New()
	m.RecordTransformation(time.Millisecond)
	s := m.Snapshot().String()
	assert.Contains(t, s, "calls=1")
	assert.Contains(t, s, "success_rate=100.0%")
}

func TestConcurrentRecording(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordTransformation(time.Microsecond)
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(100), m.Snapshot().TotalCalls)
}
