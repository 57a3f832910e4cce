package resilience

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Guard runs collaborator calls through a per-service breaker and retry
// policy, and maps final failures onto model.ErrExternalUnavailable.
type Guard struct {
	retry    RetryConfig
	breakers *ServiceBreakers
}

// NewGuard builds a Guard from retry and breaker settings.
func NewGuard(retry RetryConfig, breaker CircuitBreakerConfig) *Guard {
	if breaker.ShouldTrip == nil {
		// Lookups that miss and rejected input say nothing about service health.
		breaker.ShouldTrip = func(err error) bool {
			return !eris.Is(err, model.ErrNotFound) && !eris.Is(err, model.ErrValidation)
		}
	}
	return &Guard{retry: retry, breakers: NewServiceBreakers(breaker)}
}

// Breakers exposes the breaker registry for health reporting.
func (g *Guard) Breakers() *ServiceBreakers { return g.breakers }

// Call runs fn for service/op with retries inside the service breaker.
func (g *Guard) Call(ctx context.Context, service, op string, fn func(ctx context.Context) error) error {
	_, err := GuardVal(ctx, g, service, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// GuardVal is Guard.Call for calls that return a value.
func GuardVal[T any](ctx context.Context, g *Guard, service, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg := g.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = RetryLogger(service, op)
	}
	cb := g.breakers.Get(service)
	val, err := ExecuteVal(ctx, cb, func(ctx context.Context) (T, error) {
		return DoVal(ctx, cfg, fn)
	})
	if err != nil {
		var zero T
		return zero, Unavailable(service, err)
	}
	return val, nil
}
