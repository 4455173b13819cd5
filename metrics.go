package kokia

import "sync"

// Metrics accumulates session-lifetime counters, the way the teacher's
// SummaryAccumulator accumulates per-process message/region counts: a
// small set of named counters, initialized to zero, incremented as
// events are applied, and exposed as a single map for reporting.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

const (
	MetricResyncs         = "resyncs"
	MetricScopeMismatches = "scope_mismatches"
	MetricTasksCreated    = "tasks_created"
	MetricTasksCompleted  = "tasks_completed"
	MetricEdgesCreated    = "edges_created"
	MetricOptimizedOut    = "optimized_out_reads"
	MetricBudgetExceeded  = "budget_exceeded"
	MetricSkippedTypes    = "skipped_generator_types"
)

func newMetrics() *Metrics {
	return &Metrics{counters: make(map[string]int64)}
}

func (m *Metrics) incr(name string) {
	m.mu.Lock()
	m.counters[name]++
	m.mu.Unlock()
}

// toMap returns a snapshot of every non-zero counter, suitable for
// JSON marshaling or a diagnostics query.
func (m *Metrics) toMap() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}
