package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("notebook: storage temporarily unavailable")

// BreakerConfig holds configuration for the gateway circuit breaker.
type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// FailureThreshold is the failure ratio that trips the breaker.
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns a default configuration for the breaker.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// Breaker is a Gateway that stops calling the wrapped gateway while it
// keeps failing. Only ErrGateway failures count; not-found results and
// rejected transactions are answers, not faults. It never retries.
type Breaker struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next with a circuit breaker.
func NewBreaker(next Gateway, config BreakerConfig, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("storage circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrGateway)
		},
	})
	return &Breaker{next: next, cb: cb}
}

// State returns the breaker's current state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) execute(fn func() (any, error)) (any, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return res, err
}

func (b *Breaker) Scan(ctx context.Context) ([]Item, error) {
	res, err := b.execute(func() (any, error) { return b.next.Scan(ctx) })
	items, _ := res.([]Item)
	return items, err
}

func (b *Breaker) Query(ctx context.Context, partition string, filter *Filter) ([]Item, error) {
	res, err := b.execute(func() (any, error) { return b.next.Query(ctx, partition, filter) })
	items, _ := res.([]Item)
	return items, err
}

func (b *Breaker) GetItem(ctx context.Context, key Key, consistent bool) (Item, error) {
	res, err := b.execute(func() (any, error) { return b.next.GetItem(ctx, key, consistent) })
	item, _ := res.(Item)
	return item, err
}

func (b *Breaker) PutItem(ctx context.Context, item Item) error {
	_, err := b.execute(func() (any, error) { return nil, b.next.PutItem(ctx, item) })
	return err
}

func (b *Breaker) TransactWrite(ctx context.Context, writes []Write) error {
	_, err := b.execute(func() (any, error) { return nil, b.next.TransactWrite(ctx, writes) })
	return err
}

func (b *Breaker) SoftDelete(ctx context.Context, key Key, ttl int64) error {
	_, err := b.execute(func() (any, error) { return nil, b.next.SoftDelete(ctx, key, ttl) })
	return err
}
