package metrics

import (
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// API
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Count of HTTP requests."},
		[]string{"handler", "method", "code"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms..~10s
		},
		[]string{"handler", "method"},
	)

	// Dispatch
	BatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_batch_total", Help: "Batches by outcome."},
		[]string{"result"}, // ok | rejected | error
	)
	BatchContacts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_batch_contacts",
			Help:    "Contacts per accepted batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11), // 1..1024
		},
	)
	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "dispatch_inflight_contacts", Help: "Contacts being processed in this process."},
	)
	DeliveryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_delivery_total", Help: "Delivery attempt outcomes."},
		[]string{"channel", "outcome"}, // sent | failed | timeout
	)
	SendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_send_duration_seconds",
			Help:    "Channel send latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms..~40s
		},
		[]string{"channel"},
	)
	GuestResolveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "guest_resolve_total", Help: "Guest registry resolutions."},
		[]string{"result"}, // matched | created | conflict_refetch
	)
	AssetLocateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "asset_locate_total", Help: "Invitation image location strategy used."},
		[]string{"strategy"}, // absolute | relative | hosted | fallback
	)
	SoftFailureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_soft_failure_total", Help: "Best-effort side effects that failed."},
		[]string{"op"},
	)
)

var registerOnce sync.Once

// MustRegister registers the default and dispatch collectors once per process.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequests, HTTPDuration,
			BatchTotal, BatchContacts, InFlight,
			DeliveryTotal, SendDuration,
			GuestResolveTotal, AssetLocateTotal, SoftFailureTotal,
		)
	})
}

// PGXPoolStats exports pgxpool statistics.
type PGXPoolStats struct {
	pool *pgxpool.Pool

	conns        prometheus.Gauge
	idle         prometheus.Gauge
	acquireCount prometheus.Gauge
	acquireTime  prometheus.Gauge
}

func NewPGXPoolStats(pool *pgxpool.Pool) *PGXPoolStats {
	m := &PGXPoolStats{
		pool: pool,
		conns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_conns", Help: "Total connections in pool.",
		}),
		idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_idle_conns", Help: "Idle connections in pool.",
		}),
		acquireCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_acquires", Help: "Cumulative pool acquires.",
		}),
		acquireTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "db_pool_acquire_seconds", Help: "Cumulative acquire latency.",
		}),
	}
	prometheus.MustRegister(m.conns, m.idle, m.acquireCount, m.acquireTime)
	return m
}

// Start samples the pool every interval until stop is closed. pgxpool reports
// cumulative counters, so they are exported as gauges.
func (m *PGXPoolStats) Start(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s := m.pool.Stat()
			m.conns.Set(float64(s.TotalConns()))
			m.idle.Set(float64(s.IdleConns()))
			m.acquireCount.Set(float64(s.AcquireCount()))
			m.acquireTime.Set(s.AcquireDuration().Seconds())
		}
	}
}
