package outbox

import (
	"sync"
	"time"
)

// MetricsCollector defines the interface for collecting outbox metrics
type MetricsCollector interface {
	RecordEventProcessed(eventType string, success bool, duration time.Duration)
	RecordBatchProcessed(count int, duration time.Duration)
	RecordOutboxLag(lag int)
	RecordPublishAttempt(eventType string, attempt int, success bool)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordEventProcessed(eventType string, success bool, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordBatchProcessed(count int, duration time.Duration)                    {}
func (n *NoOpMetricsCollector) RecordOutboxLag(lag int)                                                   {}
func (n *NoOpMetricsCollector) RecordPublishAttempt(eventType string, attempt int, success bool)          {}

// CounterMetrics keeps running totals in memory for the /metrics endpoint.
type CounterMetrics struct {
	mu         sync.Mutex
	published  map[string]uint64
	failed     map[string]uint64
	retries    uint64
	batches    uint64
	lastLag    int
	publishDur time.Duration
}

func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{
		published: make(map[string]uint64),
		failed:    make(map[string]uint64),
	}
}

func (m *CounterMetrics) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.published[eventType]++
		m.publishDur += duration
		return
	}
	m.failed[eventType]++
}

func (m *CounterMetrics) RecordBatchProcessed(count int, duration time.Duration) {
	m.mu.Lock()
	m.batches++
	m.mu.Unlock()
}

func (m *CounterMetrics) RecordOutboxLag(lag int) {
	m.mu.Lock()
	m.lastLag = lag
	m.mu.Unlock()
}

func (m *CounterMetrics) RecordPublishAttempt(eventType string, attempt int, success bool) {
	if attempt <= 1 {
		return
	}
	m.mu.Lock()
	m.retries++
	m.mu.Unlock()
}

// MetricsSnapshot is a point-in-time copy of CounterMetrics.
type MetricsSnapshot struct {
	Published map[string]uint64
	Failed    map[string]uint64
	Retries   uint64
	Batches   uint64
	Lag       int
}

func (m *CounterMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := MetricsSnapshot{
		Published: make(map[string]uint64, len(m.published)),
		Failed:    make(map[string]uint64, len(m.failed)),
		Retries:   m.retries,
		Batches:   m.batches,
		Lag:       m.lastLag,
	}
	for k, v := range m.published {
		s.Published[k] = v
	}
	for k, v := range m.failed {
		s.Failed[k] = v
	}
	return s
}
