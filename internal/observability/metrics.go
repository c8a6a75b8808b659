// Package observability provides Prometheus instrumentation for repo selection
// and the backing key-value store.
package observability

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"reboosty/internal/kvstore"
	"reboosty/internal/selector"
)

// Metrics holds the collectors shared by the selector hooks and the store wrapper.
type Metrics struct {
	resolutions      *prometheus.CounterVec
	registryRebuilds prometheus.Counter
	registrySize     prometheus.Gauge
	storeDuration    *prometheus.HistogramVec
}

// NewMetrics registers collectors with reg. Registering twice against the same
// registerer reuses the existing collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reboosty_resolutions_total",
			Help: "Repo resolutions by operation (resolve, lookup) and outcome (hit, selected, default, degraded)",
		}, []string{"operation", "outcome"}),
		registryRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reboosty_registry_rebuilds_total",
			Help: "Number of times the registry snapshot was rebuilt from selection mappings",
		}),
		registrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reboosty_registry_size",
			Help: "Number of candidate repos in the most recently rebuilt registry snapshot",
		}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reboosty_store_operation_duration_seconds",
			Help:    "Latency of key-value store operations",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation", "status"}),
	}

	m.resolutions = register(reg, m.resolutions)
	m.registryRebuilds = register(reg, m.registryRebuilds)
	m.registrySize = register(reg, m.registrySize)
	m.storeDuration = register(reg, m.storeDuration)

	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Hooks returns selector hooks backed by these metrics.
func (m *Metrics) Hooks() selector.Hooks {
	return prometheusHooks{m: m}
}

type prometheusHooks struct {
	m *Metrics
}

func (h prometheusHooks) Resolved(op selector.Operation, res selector.Resolution) {
	h.m.resolutions.WithLabelValues(string(op), string(res.Outcome)).Inc()
}

func (h prometheusHooks) RegistryRebuilt(size int) {
	h.m.registryRebuilds.Inc()
	h.m.registrySize.Set(float64(size))
}

// InstrumentStore wraps store so every call is timed and labeled by status.
func (m *Metrics) InstrumentStore(store kvstore.Store) kvstore.Store {
	return &instrumentedStore{next: store, m: m}
}

type instrumentedStore struct {
	next kvstore.Store
	m    *Metrics
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.m.storeDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

func (s *instrumentedStore) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	v, ok, err := s.next.Get(ctx, key)
	s.observe("get", start, err)
	return v, ok, err
}

func (s *instrumentedStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	start := time.Now()
	err := s.next.SetWithExpiry(ctx, key, value, ttl)
	s.observe("set", start, err)
	return err
}

func (s *instrumentedStore) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := s.next.KeysByPrefix(ctx, prefix)
	s.observe("keys", start, err)
	return keys, err
}

func (s *instrumentedStore) MultiGet(ctx context.Context, keys []string) ([]string, error) {
	start := time.Now()
	values, err := s.next.MultiGet(ctx, keys)
	s.observe("mget", start, err)
	return values, err
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}
