package router

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/streamroute/internal/runtime/stream"
)

// Metrics counts routed records, group matches and decode failures. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	mu         sync.Mutex
	registered bool

	registerer     prometheus.Registerer
	recordsTotal   *prometheus.CounterVec
	matchesTotal   *prometheus.CounterVec
	decodeFailures prometheus.Counter
}

// NewMetrics creates routing collectors under namespace. A nil registerer
// falls back to prometheus.DefaultRegisterer.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer: registerer,
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "records_total",
			Help:      "Stream records normalized by the router, by event kind",
		}, []string{"kind"}),
		matchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "matches_total",
			Help:      "Handler group matches produced by the router",
		}, []string{"group"}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "decode_failures_total",
			Help:      "Stream records whose images could not be decoded",
		}),
	}
}

// Register registers the collectors. Safe to call multiple times. When an
// equivalent collector is already registered, it is adopted instead.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	recordsTotal, err := registerCollector(m.registerer, m.recordsTotal)
	if err != nil {
		return err
	}
	matchesTotal, err := registerCollector(m.registerer, m.matchesTotal)
	if err != nil {
		return err
	}
	decodeFailures, err := registerCollector(m.registerer, m.decodeFailures)
	if err != nil {
		return err
	}
	m.recordsTotal = recordsTotal
	m.matchesTotal = matchesTotal
	m.decodeFailures = decodeFailures
	m.registered = true
	return nil
}

func (m *Metrics) recordSeen(kind stream.Kind) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) groupMatched(group string) {
	if m == nil {
		return
	}
	m.matchesTotal.WithLabelValues(group).Inc()
}

func (m *Metrics) decodeFailed() {
	if m == nil {
		return
	}
	m.decodeFailures.Inc()
}

// registerCollector registers c, or returns the collector already registered
// under the same descriptor so every user of the registry shares one series.
func registerCollector[T prometheus.Collector](registerer prometheus.Registerer, c T) (T, error) {
	err := registerer.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, err
}
