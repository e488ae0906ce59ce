// Package metric exposes Prometheus counters for event submissions and a
// gauge tracking event store latency.
package metric

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appLog "clickcal/internal/log"
)

// Pinger measures the latency of an empty store read.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Metrics implements schedule.Recorder.
type Metrics struct {
	gatherer prometheus.Gatherer

	created      prometheus.Counter
	updated      prometheus.Counter
	deleted      prometheus.Counter
	overlaps     prometheus.Counter
	storeLatency prometheus.Gauge
}

// New registers the collectors on reg. A nil reg uses a fresh registry so
// tests and repeated wiring never hit duplicate registration.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	m := &Metrics{
		gatherer: reg,
		created: f.NewCounter(prometheus.CounterOpts{
			Name: "clickcal_events_created_total",
			Help: "Events created through the event form",
		}),
		updated: f.NewCounter(prometheus.CounterOpts{
			Name: "clickcal_events_updated_total",
			Help: "Events edited through the event form",
		}),
		deleted: f.NewCounter(prometheus.CounterOpts{
			Name: "clickcal_events_deleted_total",
			Help: "Events deleted",
		}),
		overlaps: f.NewCounter(prometheus.CounterOpts{
			Name: "clickcal_overlap_warnings_total",
			Help: "Submissions rejected pending overlap confirmation",
		}),
		storeLatency: f.NewGauge(prometheus.GaugeOpts{
			Name: "clickcal_store_latency_microsec",
			Help: "The latency of an empty event store read in microseconds",
		}),
	}
	m.storeLatency.Set(0)
	return m
}

func (m *Metrics) EventCreated()  { m.created.Inc() }
func (m *Metrics) EventUpdated()  { m.updated.Inc() }
func (m *Metrics) EventDeleted()  { m.deleted.Inc() }
func (m *Metrics) OverlapWarned() { m.overlaps.Inc() }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// SampleStore records one store latency reading.
func (m *Metrics) SampleStore(ctx context.Context, p Pinger) error {
	latency, err := p.Ping(ctx)
	if err != nil {
		return err
	}
	m.storeLatency.Set(float64(latency.Microseconds()))
	return nil
}

// WatchStore samples store latency every interval until ctx is done.
func (m *Metrics) WatchStore(ctx context.Context, p Pinger, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			appLog.Debug("store latency watcher stopped")
			return
		case <-ticker.C:
			if err := m.SampleStore(ctx, p); err != nil {
				appLog.Error("can't get store latency", err)
			}
		}
	}
}
