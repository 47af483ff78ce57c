package telemetry

import (
	"encoding/json"
	"net/http"
	"time"

	metrics "github.com/hashicorp/go-metrics"
)

// Metrics wraps a go-metrics instance backed by an in-memory sink, so the
// counters can be served over HTTP without an external collector.
type Metrics struct {
	m    *metrics.Metrics
	sink *metrics.InmemSink
}

// New builds a Metrics for service. Intervals are one minute, kept for ten.
func New(service string) (*Metrics, error) {
	sink := metrics.NewInmemSink(time.Minute, 10*time.Minute)
	conf := metrics.DefaultConfig(service)
	conf.EnableHostname = false
	conf.EnableRuntimeMetrics = false
	m, err := metrics.New(conf, sink)
	if err != nil {
		return nil, err
	}
	return &Metrics{m: m, sink: sink}, nil
}

// Incr bumps a counter. A nil receiver is a no-op so components can run
// without telemetry in tests.
func (t *Metrics) Incr(key ...string) {
	if t == nil {
		return
	}
	t.m.IncrCounter(key, 1)
}

// IncrWithReason bumps a counter labelled with reason.
func (t *Metrics) IncrWithReason(reason string, key ...string) {
	if t == nil {
		return
	}
	t.m.IncrCounterWithLabels(key, 1, []metrics.Label{{Name: "reason", Value: reason}})
}

// MeasureSince records the time elapsed since start.
func (t *Metrics) MeasureSince(start time.Time, key ...string) {
	if t == nil {
		return
	}
	t.m.MeasureSince(key, start)
}

// Counter returns the count of key summed over the retained intervals.
// Labels are not matched; this is meant for tests and health checks.
func (t *Metrics) Counter(key string) int {
	if t == nil {
		return 0
	}
	total := 0
	for _, interval := range t.sink.Data() {
		interval.RLock()
		if v, ok := interval.Counters[key]; ok {
			total += v.Count
		}
		interval.RUnlock()
	}
	return total
}

// ServeHTTP writes the sink's current summary as JSON.
func (t *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t == nil {
		http.Error(w, "metrics disabled", http.StatusNotFound)
		return
	}
	summary, err := t.sink.DisplayMetrics(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}
