// Package broker provides brokerage integration interfaces and implementations.
package broker

import (
	"context"

	"etrade-trader/internal/models"
)

// Broker defines the preview-then-place brokerage order contract. An order is
// first previewed, yielding a preview confirmation id, then placed by
// resubmitting the same spec with that id.
type Broker interface {
	IsAuthenticated() bool

	// GetAccounts returns the account references available to the session.
	GetAccounts(ctx context.Context) ([]string, error)

	// PreviewOrder submits an order preview and returns the broker's preview
	// confirmation id.
	PreviewOrder(ctx context.Context, accountRef string, spec models.OrderSpec) (string, error)

	// PlaceOrder places a previously previewed order and returns the
	// broker-assigned order id.
	PlaceOrder(ctx context.Context, accountRef string, spec models.OrderSpec, previewID string) (string, error)

	// GetOrders returns the account's most recent orders, newest first.
	GetOrders(ctx context.Context, accountRef string, count int) ([]models.BrokerOrder, error)
}
