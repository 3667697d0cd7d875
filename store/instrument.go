package store

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for gateway calls.
type Metrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Items      *prometheus.CounterVec
}

// NewMetrics creates the gateway collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_operations_total",
				Help:      "Total number of storage gateway operations",
			},
			[]string{"operation", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_operation_duration_seconds",
				Help:      "Storage gateway operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		Items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_items_total",
				Help:      "Items read or written through the storage gateway",
			},
			[]string{"operation"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Operations, m.Duration, m.Items)
	}
	return m
}

// Instrumented is a Gateway that records metrics for every call.
type Instrumented struct {
	next    Gateway
	metrics *Metrics
}

// Instrument wraps next so that its calls are recorded in m.
func Instrument(next Gateway, m *Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

func (g *Instrumented) observe(op string, start time.Time, items int, err error) {
	g.metrics.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	g.metrics.Operations.WithLabelValues(op, outcome(err)).Inc()
	if items > 0 {
		g.metrics.Items.WithLabelValues(op).Add(float64(items))
	}
}

// outcome classifies err into a low-cardinality label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransaction):
		return "rejected"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	}
	return "error"
}

func (g *Instrumented) Scan(ctx context.Context) ([]Item, error) {
	start := time.Now()
	items, err := g.next.Scan(ctx)
	g.observe("scan", start, len(items), err)
	return items, err
}

func (g *Instrumented) Query(ctx context.Context, partition string, filter *Filter) ([]Item, error) {
	start := time.Now()
	items, err := g.next.Query(ctx, partition, filter)
	g.observe("query", start, len(items), err)
	return items, err
}

func (g *Instrumented) GetItem(ctx context.Context, key Key, consistent bool) (Item, error) {
	start := time.Now()
	item, err := g.next.GetItem(ctx, key, consistent)
	n := 0
	if item != nil {
		n = 1
	}
	g.observe("get", start, n, err)
	return item, err
}

func (g *Instrumented) PutItem(ctx context.Context, item Item) error {
	start := time.Now()
	err := g.next.PutItem(ctx, item)
	g.observe("put", start, 1, err)
	return err
}

func (g *Instrumented) TransactWrite(ctx context.Context, writes []Write) error {
	start := time.Now()
	err := g.next.TransactWrite(ctx, writes)
	g.observe("transact_write", start, len(writes), err)
	return err
}

func (g *Instrumented) SoftDelete(ctx context.Context, key Key, ttl int64) error {
	start := time.Now()
	err := g.next.SoftDelete(ctx, key, ttl)
	g.observe("soft_delete", start, 1, err)
	return err
}
