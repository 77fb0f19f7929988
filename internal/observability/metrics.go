package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	jobCount     map[string]int64
	stepLatency  map[string]*latency
}

type latency struct {
	count int64
	total time.Duration
	max   time.Duration
}

// LatencySummary aggregates observed durations of one step.
type LatencySummary struct {
	Count   int64   `json:"count"`
	AvgMs   float64 `json:"avgMs"`
	MaxMs   int64   `json:"maxMs"`
	TotalMs int64   `json:"totalMs"`
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Requests map[string]int64          `json:"requests"`
	Errors   map[string]int64          `json:"errors"`
	Jobs     map[string]int64          `json:"jobs"`
	Steps    map[string]LatencySummary `json:"steps"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		jobCount:     make(map[string]int64),
		stepLatency:  make(map[string]*latency),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.observe("http", duration)
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordJob counts a triage job outcome: done, retried or dead.
func (m *Metrics) RecordJob(outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobCount[outcome]++
}

// ObserveStep records how long one pipeline step took.
func (m *Metrics) ObserveStep(step string, d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(step, d)
}

func (m *Metrics) observe(key string, d time.Duration) {
	l, ok := m.stepLatency[key]
	if !ok {
		l = &latency{}
		m.stepLatency[key] = l
	}
	l.count++
	l.total += d
	if d > l.max {
		l.max = d
	}
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Requests: map[string]int64{},
		Errors:   map[string]int64{},
		Jobs:     map[string]int64{},
		Steps:    map[string]LatencySummary{},
	}
	if m == nil {
		return snap
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copyCounts(snap.Requests, m.requestCount)
	copyCounts(snap.Errors, m.errorCount)
	copyCounts(snap.Jobs, m.jobCount)
	for k, l := range m.stepLatency {
		snap.Steps[k] = LatencySummary{
			Count:   l.count,
			AvgMs:   float64(l.total.Milliseconds()) / float64(l.count),
			MaxMs:   l.max.Milliseconds(),
			TotalMs: l.total.Milliseconds(),
		}
	}
	return snap
}

// StepNames lists the observed steps in order.
func (s Snapshot) StepNames() []string {
	names := make([]string, 0, len(s.Steps))
	for k := range s.Steps {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func copyCounts(dst, src map[string]int64) {
	for k, v := range src {
		dst[k] = v
	}
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
