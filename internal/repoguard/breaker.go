// Package repoguard wraps repository calls with a circuit breaker so
// a failing repository trips open and the attempt pipeline surfaces
// core.ErrPersistenceFailure instead of hanging or retrying forever.
package repoguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/telemetry"
)

// Guard wraps a named operation with a circuit breaker.
type Guard struct {
	breaker *gobreaker.CircuitBreaker
	name    string
	metrics *telemetry.Registry
}

// New constructs a Guard: trip after 3 consecutive failures, or after
// 20+ requests with a >5% failure rate; half-open after 60s.
func New(name string) *Guard {
	return NewWithMetrics(name, nil)
}

// NewWithMetrics constructs a Guard that also counts each breaker
// transition to the open state in reg's BreakerTrips counter.
func NewWithMetrics(name string, reg *telemetry.Registry) *Guard {
	g := &Guard{name: name, metrics: reg}
	settings := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen && g.metrics != nil {
				g.metrics.BreakerTrips.WithLabelValues(name).Inc()
			}
		},
	}
	g.breaker = gobreaker.NewCircuitBreaker(settings)
	return g
}

// Run executes fn through the breaker. A breaker trip (open circuit)
// or any error from fn that isn't already a core error kind is wrapped
// as core.ErrPersistenceFailure.
func (g *Guard) Run(ctx context.Context, fn func(context.Context) error) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: circuit open: %w", g.name, core.ErrPersistenceFailure)
	}

	if isCoreErrorKind(err) {
		return err
	}

	return fmt.Errorf("%s: %w: %v", g.name, core.ErrPersistenceFailure, err)
}

func isCoreErrorKind(err error) bool {
	for _, kind := range []error{
		core.ErrInvalidInput, core.ErrNotFound, core.ErrInvalidScope,
		core.ErrConflict, core.ErrPersistenceFailure,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
