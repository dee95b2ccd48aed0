package dispatch

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics tracks handler invocations. A nil *Metrics records nothing.
type Metrics struct {
	mu         sync.Mutex
	registered bool

	registerer  prometheus.Registerer
	invocations *prometheus.CounterVec
	retries     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics creates dispatch collectors under namespace. A nil registerer
// falls back to prometheus.DefaultRegisterer.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer: registerer,
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "invocations_total",
			Help:      "Handler invocations by group and final outcome",
		}, []string{"group", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "retries_total",
			Help:      "Handler attempts beyond the first, by group",
		}, []string{"group"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "invocation_duration_seconds",
			Help:      "Time spent in a handler including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"group"}),
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
	invocations, err := registerCollector(m.registerer, m.invocations)
	if err != nil {
		return err
	}
	retries, err := registerCollector(m.registerer, m.retries)
	if err != nil {
		return err
	}
	duration, err := registerCollector(m.registerer, m.duration)
	if err != nil {
		return err
	}
	m.invocations = invocations
	m.retries = retries
	m.duration = duration
	m.registered = true
	return nil
}

func (m *Metrics) observe(group string, attempts int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	m.invocations.WithLabelValues(group, outcome).Inc()
	if attempts > 1 {
		m.retries.WithLabelValues(group).Add(float64(attempts - 1))
	}
	m.duration.WithLabelValues(group).Observe(elapsed.Seconds())
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
