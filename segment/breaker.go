package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerSettings configures the circuit breaker around the engine.
type BreakerSettings struct {
	Name string
	// ConsecutiveFailures opens the circuit once reached.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open before probing again.
	OpenTimeout time.Duration
	// OnStateChange is called on every transition, e.g. to update metrics.
	OnStateChange func(name string, from, to gobreaker.State)
}

// Breaker stops calling a failing engine for a while instead of letting
// every user wait out its timeout.
type Breaker struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker[Result]
}

var _ Gateway = (*Breaker)(nil)

// NewBreaker wraps next in a circuit breaker.
func NewBreaker(next Gateway, s BreakerSettings) *Breaker {
	if s.Name == "" {
		s.Name = "segmentation"
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	threshold := s.ConsecutiveFailures
	onChange := s.OnStateChange

	cb := gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("segmentation circuit breaker state change",
				"name", name, "from", from.String(), "to", to.String())
			if onChange != nil {
				onChange(name, from, to)
			}
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) RemoveBackground(ctx context.Context, img []byte) (Result, error) {
	res, err := b.cb.Execute(func() (Result, error) {
		return b.next.RemoveBackground(ctx, img)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{}, fmt.Errorf("%w: %w", ErrSegmentation, ErrUnavailable)
		}
		return Result{}, failure(err)
	}
	return res, nil
}

// State returns the breaker's current state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
