package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

type HealthStatus struct {
	Healthy         bool      `json:"healthy"`
	LastEventTime   time.Time `json:"last_event_time"`
	EventsProcessed uint64    `json:"events_processed"`
	PendingEvents   int       `json:"pending_events"`
	BusConnected    bool      `json:"bus_connected"`
	WorkerActive    bool      `json:"worker_active"`
	Errors          []string  `json:"errors"`
}

type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// RelayHealthChecker reports on a Worker, its source and the bus connection.
type RelayHealthChecker struct {
	worker    *Worker
	pending   PendingCounter
	connected func() bool
	threshold time.Duration // How long without events before unhealthy
	clock     clockwork.Clock
}

// NewRelayHealthChecker builds a checker. pending and connected may be nil.
func NewRelayHealthChecker(worker *Worker, pending PendingCounter, connected func() bool, threshold time.Duration) *RelayHealthChecker {
	return &RelayHealthChecker{
		worker:    worker,
		pending:   pending,
		connected: connected,
		threshold: threshold,
		clock:     worker.clock,
	}
}

func (h *RelayHealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:      true,
		BusConnected: true,
		Errors:       []string{},
	}

	status.EventsProcessed, status.LastEventTime = h.worker.Stats()

	if h.connected != nil {
		status.BusConnected = h.connected()
		if !status.BusConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	status.WorkerActive = h.worker.Running()
	if !status.WorkerActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "worker not active")
	}

	if h.pending != nil {
		pending, err := h.pending.CountPending(ctx)
		if err != nil {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
			if pending > 1000 {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	// Stuck only matters while there is something to send.
	if status.PendingEvents > 0 && !status.LastEventTime.IsZero() && h.threshold > 0 {
		since := h.clock.Since(status.LastEventTime)
		if since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events processed for %s", since))
		}
	}

	return status
}

// HTTP handler helper
func (h *RelayHealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// PrometheusExporter renders health and counters in the Prometheus text format.
type PrometheusExporter struct {
	checker HealthChecker
	metrics *CounterMetrics
}

func NewPrometheusExporter(checker HealthChecker, metrics *CounterMetrics) *PrometheusExporter {
	return &PrometheusExporter{checker: checker, metrics: metrics}
}

func (e *PrometheusExporter) Export(ctx context.Context) string {
	status := e.checker.Check(ctx)

	var b strings.Builder
	gauge := func(name, help string, v any) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %v\n\n", name, help, name, name, v)
	}
	gauge("outbox_healthy", "Whether the outbox relay is healthy", boolInt(status.Healthy))
	gauge("outbox_pending_events", "Current number of pending events", status.PendingEvents)
	gauge("outbox_nats_connected", "Whether NATS is connected", boolInt(status.BusConnected))
	gauge("outbox_worker_active", "Whether the relay worker is running", boolInt(status.WorkerActive))
	gauge("outbox_last_event_timestamp", "Unix timestamp of last processed event", status.LastEventTime.Unix())

	fmt.Fprintf(&b, "# HELP outbox_events_processed_total Total number of events processed\n# TYPE outbox_events_processed_total counter\noutbox_events_processed_total %d\n", status.EventsProcessed)

	if e.metrics != nil {
		snap := e.metrics.Snapshot()
		b.WriteString("\n# HELP outbox_events_published_total Events published by type\n# TYPE outbox_events_published_total counter\n")
		for _, t := range sortedKeys(snap.Published) {
			fmt.Fprintf(&b, "outbox_events_published_total{event_type=%q} %d\n", t, snap.Published[t])
		}
		b.WriteString("\n# HELP outbox_events_failed_total Events that exhausted retries by type\n# TYPE outbox_events_failed_total counter\n")
		for _, t := range sortedKeys(snap.Failed) {
			fmt.Fprintf(&b, "outbox_events_failed_total{event_type=%q} %d\n", t, snap.Failed[t])
		}
		fmt.Fprintf(&b, "\n# HELP outbox_publish_retries_total Publish retries\n# TYPE outbox_publish_retries_total counter\noutbox_publish_retries_total %d\n", snap.Retries)
	}
	return b.String()
}

func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(e.Export(r.Context())))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
