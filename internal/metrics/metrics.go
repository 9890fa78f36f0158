// Package metrics exports edit, storage and transaction metrics to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	edits           *prometheus.CounterVec
	editDuration    prometheus.Histogram
	storageOps      *prometheus.CounterVec
	storageDuration *prometheus.HistogramVec
	transactions    *prometheus.CounterVec
}

// New registers the collectors on reg (the default registerer when nil).
// Collectors that are already registered are reused.
func New(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "posts"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{}
	var err error
	if m.edits, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "edits_total",
		Help:      "Post edits by final state.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if m.editDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "edit_duration_seconds",
		Help:      "End-to-end latency of post edits.",
		Buckets:   prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if m.storageOps, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_operations_total",
		Help:      "Object storage operations by kind and result.",
	}, []string{"operation", "result"})); err != nil {
		return nil, err
	}
	if m.storageDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "storage_operation_duration_seconds",
		Help:      "Latency of object storage operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})); err != nil {
		return nil, err
	}
	if m.transactions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_total",
		Help:      "Relational transactions by reason and result.",
	}, []string{"reason", "result"})); err != nil {
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
		var zero C
		return zero, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveEdit(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.edits.WithLabelValues(outcome).Inc()
	m.editDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveStorage(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.storageOps.WithLabelValues(op, result(err)).Inc()
	m.storageDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveTransaction(reason string, err error) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(reason, result(err)).Inc()
}
