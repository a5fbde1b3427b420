package quote

import (
	"context"

	"etrade-trader/internal/models"
	"etrade-trader/internal/resilience"
)

// GuardedSource wraps a Source with a circuit breaker so a dead data source
// stops burning a timeout per symbol per tick. While the breaker is open,
// fetches fail fast with resilience.ErrCircuitOpen; callers already treat any
// fetch failure as "skip this symbol this tick".
type GuardedSource struct {
	inner   Source
	breaker *resilience.CircuitBreaker
}

// WithBreaker wraps a source with a circuit breaker.
func WithBreaker(inner Source, cfg resilience.CircuitBreakerConfig) *GuardedSource {
	return &GuardedSource{
		inner:   inner,
		breaker: resilience.NewCircuitBreaker(inner.Name(), cfg),
	}
}

// Name returns the wrapped source's name.
func (g *GuardedSource) Name() string { return g.inner.Name() }

// State exposes the breaker state for logging.
func (g *GuardedSource) State() resilience.CircuitState { return g.breaker.State() }

// FetchQuote fetches through the breaker.
func (g *GuardedSource) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	var q *models.Quote
	err := g.breaker.Do(func() error {
		var err error
		q, err = g.inner.FetchQuote(ctx, symbol)
		return err
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}
