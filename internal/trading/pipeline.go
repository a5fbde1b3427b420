package trading

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"etrade-trader/internal/broker"
	"etrade-trader/internal/errors"
	"etrade-trader/internal/models"
)

// Pipeline submits equity orders through the broker's preview-then-place
// protocol and verifies their acceptance. It holds no memory of prior orders;
// fill-state ordering is enforced by its callers.
type Pipeline struct {
	broker         broker.Broker
	logger         zerolog.Logger
	orderListCount int

	// onVerifyMismatch fires when a placed order is not yet visible in the
	// broker's order list. Listing can lag placement, so this is advisory.
	onVerifyMismatch func(orderID string)
}

// NewPipeline creates an order pipeline.
func NewPipeline(b broker.Broker, logger zerolog.Logger, orderListCount int) *Pipeline {
	if orderListCount <= 0 {
		orderListCount = 25
	}
	return &Pipeline{
		broker:         b,
		logger:         logger,
		orderListCount: orderListCount,
	}
}

// SetOnVerifyMismatch sets a callback for verification misses.
func (p *Pipeline) SetOnVerifyMismatch(fn func(orderID string)) {
	p.onVerifyMismatch = fn
}

// BuyReceipt identifies a successfully placed BUY.
type BuyReceipt struct {
	AccountRef string
	OrderID    string
}

// PlaceBuy submits a good-until-cancelled limit BUY via preview-then-place
// and verifies, best effort, that the broker lists the new order. Broker
// rejections propagate untouched; the caller decides whether to surface them
// or treat a credential failure as a re-authentication trigger.
func (p *Pipeline) PlaceBuy(ctx context.Context, symbol string, qty int, limitPrice float64) (*BuyReceipt, error) {
	accounts, err := p.broker.GetAccounts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing accounts")
	}
	if len(accounts) == 0 {
		return nil, errors.ErrNoAccounts
	}
	accountRef := accounts[0]

	spec, err := models.NewLimitOrder(symbol, models.OrderSideBuy, qty, limitPrice, models.TermGoodUntilCancel)
	if err != nil {
		return nil, err
	}

	orderID, err := p.submit(ctx, accountRef, spec)
	if err != nil {
		return nil, err
	}

	p.verify(ctx, accountRef, orderID)
	return &BuyReceipt{AccountRef: accountRef, OrderID: orderID}, nil
}

// PlaceExitOrders submits the protective pair for a confirmed fill: a limit
// SELL at takeProfit and a stop SELL at stopLoss, both for qty shares. Only
// ever called after the BUY reached EXECUTED; that ordering is the fill
// monitor's responsibility.
func (p *Pipeline) PlaceExitOrders(ctx context.Context, accountRef, symbol string, qty int, takeProfit, stopLoss float64) (string, string, error) {
	tpSpec, err := models.NewLimitOrder(symbol, models.OrderSideSell, qty, takeProfit, models.TermGoodUntilCancel)
	if err != nil {
		return "", "", err
	}
	slSpec, err := models.NewStopOrder(symbol, models.OrderSideSell, qty, stopLoss, models.TermGoodUntilCancel)
	if err != nil {
		return "", "", err
	}

	tpID, err := p.submit(ctx, accountRef, tpSpec)
	if err != nil {
		return "", "", errors.Wrap(err, "placing take-profit sell")
	}

	slID, err := p.submit(ctx, accountRef, slSpec)
	if err != nil {
		// The take-profit leg is already working; report its id alongside
		// the failure so the caller can tell the user what remains.
		return tpID, "", errors.NewOrderError(tpID, symbol, string(models.OrderSideSell),
			"stop-loss leg failed with the take-profit already working", err)
	}

	p.verify(ctx, accountRef, tpID)
	p.verify(ctx, accountRef, slID)
	return tpID, slID, nil
}

// submit runs one order through preview-then-place with a fresh client
// order id.
func (p *Pipeline) submit(ctx context.Context, accountRef string, spec models.OrderSpec) (string, error) {
	spec.ClientOrderID = newClientOrderID()

	previewID, err := p.broker.PreviewOrder(ctx, accountRef, spec)
	if err != nil {
		return "", err
	}
	if previewID == "" {
		return "", errors.Wrapf(errors.ErrPreviewRejected, "%s %s x%d: empty preview id", spec.Side, spec.Symbol, spec.Quantity)
	}

	orderID, err := p.broker.PlaceOrder(ctx, accountRef, spec, previewID)
	if err != nil {
		return "", err
	}

	p.logger.Info().
		Str("order_id", orderID).
		Str("symbol", spec.Symbol).
		Str("side", string(spec.Side)).
		Str("price_type", string(spec.Price.Type())).
		Int("quantity", spec.Quantity).
		Float64("price", spec.Price.Value()).
		Msg("order placed")
	return orderID, nil
}

// verify re-fetches the account's recent orders and checks the new order id
// is visible with a plausible status. Failures are logged only; the order
// may still be valid and listing can lag placement.
func (p *Pipeline) verify(ctx context.Context, accountRef, orderID string) {
	orders, err := p.broker.GetOrders(ctx, accountRef, p.orderListCount)
	if err != nil {
		p.logger.Warn().Err(err).Str("order_id", orderID).Msg("post-placement verification fetch failed")
		return
	}
	for _, o := range orders {
		if o.OrderID == orderID {
			if o.Status == models.OrderStatusRejected {
				p.logger.Warn().Str("order_id", orderID).Msg("placed order listed as rejected")
			}
			return
		}
	}
	p.logger.Warn().Str("order_id", orderID).Msg("placed order not yet visible in order list")
	if p.onVerifyMismatch != nil {
		p.onVerifyMismatch(orderID)
	}
}

// OrderStatus re-derives an order's status from the broker's order list.
func (p *Pipeline) OrderStatus(ctx context.Context, accountRef, orderID string) (models.OrderStatus, error) {
	orders, err := p.broker.GetOrders(ctx, accountRef, p.orderListCount)
	if err != nil {
		return "", err
	}
	for _, o := range orders {
		if o.OrderID == orderID {
			return o.Status, nil
		}
	}
	return "", errors.Wrapf(errors.ErrOrderNotFound, "order %s", orderID)
}

func newClientOrderID() string {
	// E*TRADE caps client order ids at 20 characters.
	id := uuid.NewString()
	id = fmt.Sprintf("et%s", id[:18])
	return id
}
