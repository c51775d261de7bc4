package host

import (
	stderrors "errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

type metrics struct {
	invocations  *prometheus.CounterVec
	applySeconds *prometheus.HistogramVec
}

// newMetrics creates the host collectors and registers them with reg.
// Collectors already registered by another Runtime on the same registry are
// shared. A nil reg leaves the collectors unregistered.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wasm_transform",
			Name:      "invocations_total",
			Help:      "Protocol calls issued to transform plugins.",
		}, []string{"plugin", "op", "result"}),
		applySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wasm_transform",
			Name:      "apply_seconds",
			Help:      "Duration of apply calls.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"plugin"}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.invocations, err = register(reg, m.invocations); err != nil {
		return nil, err
	}
	if m.applySeconds, err = register(reg, m.applySeconds); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if stderrors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *metrics) observe(plugin, op string, err error) {
	result := resultOK
	if err != nil {
		result = resultError
	}
	m.invocations.WithLabelValues(plugin, op, result).Inc()
}

func (m *metrics) observeApply(plugin string, start time.Time) {
	m.applySeconds.WithLabelValues(plugin).Observe(time.Since(start).Seconds())
}
