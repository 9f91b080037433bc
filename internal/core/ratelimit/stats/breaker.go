package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerRecorder guards a Recorder with a circuit breaker so a failing
// backend is skipped until the breaker half-opens.
type BreakerRecorder struct {
	inner   Recorder
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerRecorder trips after maxFailures consecutive failures and stays
// open for timeout.
func NewBreakerRecorder(inner Recorder, name string, timeout time.Duration, maxFailures uint32) *BreakerRecorder {
	if maxFailures == 0 {
		maxFailures = 5
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
	return &BreakerRecorder{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *BreakerRecorder) Record(ctx context.Context, ev Event) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.inner.Record(ctx, ev)
	})
	if err != nil {
		return fmt.Errorf("breaker (%s): %w", b.breaker.Name(), err)
	}
	return nil
}

// Snapshot passes through to the wrapped recorder when it supports it.
func (b *BreakerRecorder) Snapshot(ctx context.Context) (Snapshot, error) {
	s, ok := b.inner.(Snapshotter)
	if !ok {
		return Snapshot{Backend: "unknown"}, nil
	}
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return s.Snapshot(ctx)
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("breaker (%s): %w", b.breaker.Name(), err)
	}
	return out.(Snapshot), nil
}

// State reports the breaker state ("closed", "half-open" or "open").
func (b *BreakerRecorder) State() string {
	return b.breaker.State().String()
}
