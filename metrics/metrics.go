// Package metrics exposes prometheus collectors for RPC backend traffic.
package metrics

import (
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values besides the error kinds reported by the backend.
const (
	OutcomeOK       = "ok"
	OutcomeCanceled = "canceled"
)

// Metrics holds the collectors for one backend. A nil *Metrics records
// nothing, so callers need not check whether metrics are enabled.
type Metrics struct {
	RequestTotal    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseBytes   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Collectors that
// are already registered, e.g. by another backend sharing reg, are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipfs",
			Subsystem: "rpc_backend",
			Name:      "requests_total",
			Help:      "Total number of RPC requests by path and outcome.",
		}, []string{"path", "outcome"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ipfs",
			Subsystem: "rpc_backend",
			Name:      "request_duration_seconds",
			Help:      "Time from sending an RPC request until its response was consumed.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"path"}),

		ResponseBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipfs",
			Subsystem: "rpc_backend",
			Name:      "response_bytes_total",
			Help:      "Response body bytes read by path.",
		}, []string{"path"}),
	}

	var err error
	if m.RequestTotal, err = register(reg, m.RequestTotal); err != nil {
		return nil, err
	}
	if m.RequestDuration, err = register(reg, m.RequestDuration); err != nil {
		return nil, err
	}
	if m.ResponseBytes, err = register(reg, m.ResponseBytes); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordRequest records one finished request.
func (m *Metrics) RecordRequest(path, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestTotal.WithLabelValues(path, outcome).Inc()
	m.RequestDuration.WithLabelValues(path).Observe(d.Seconds())
}

// MeterBody counts the bytes read from body against path.
func (m *Metrics) MeterBody(body io.ReadCloser, path string) io.ReadCloser {
	if m == nil {
		return body
	}
	return newMeteredBody(body, m.ResponseBytes.WithLabelValues(path))
}
