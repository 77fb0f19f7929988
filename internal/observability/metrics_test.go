package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordJob("done")
	m.RecordJob("done")
	m.RecordJob("dead")
	m.ObserveStep("classify", 10*time.Millisecond)
	m.ObserveStep("classify", 30*time.Millisecond)
	m.RecordRequest("/tickets", "POST", 201, time.Millisecond)
	m.RecordError("/tickets", "POST", "VALIDATION_FAILED")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Jobs["done"])
	assert.Equal(t, int64(1), snap.Jobs["dead"])
	assert.Equal(t, int64(1), snap.Requests["/tickets|POST|201"])
	assert.Equal(t, int64(1), snap.Errors["/tickets|POST|VALIDATION_FAILED"])
	assert.Equal(t, LatencySummary{Count: 2, AvgMs: 20, MaxMs: 30, TotalMs: 40}, snap.Steps["classify"])
	assert.Equal(t, []string{"classify", "http"}, snap.StepNames())

	m.RecordJob("done")
	assert.Equal(t, int64(2), snap.Jobs["done"], "snapshot is a copy")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordJob("done")
	m.ObserveStep("draft", time.Second)
	assert.Empty(t, m.Snapshot().Jobs)
}
