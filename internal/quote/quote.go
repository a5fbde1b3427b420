// Package quote provides live price lookup for watched symbols.
package quote

import (
	"context"

	"etrade-trader/internal/models"
)

// Source supplies a current price for a symbol. Implementations return an
// error rather than panicking; the polling loop branches on the error and
// skips the symbol for that tick.
type Source interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (*models.Quote, error)
}
