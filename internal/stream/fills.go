package stream

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"etrade-trader/internal/errors"
	"etrade-trader/internal/models"
	"etrade-trader/internal/notify"
)

type fillKey struct {
	symbol string
	userID string
}

// FillBook is the registry of BUY orders awaiting fill confirmation,
// keyed by (symbol, user).
type FillBook struct {
	mu    sync.RWMutex
	fills map[fillKey]models.PendingFill
}

// NewFillBook creates an empty pending-fill registry.
func NewFillBook() *FillBook {
	return &FillBook{fills: make(map[fillKey]models.PendingFill)}
}

// Add registers a pending fill, replacing any prior entry for the same key.
func (b *FillBook) Add(fill models.PendingFill) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fills[fillKey{symbol: fill.Symbol, userID: fill.UserID}] = fill
}

// Remove deletes the pending fill for (symbol, user) and reports whether one
// existed.
func (b *FillBook) Remove(symbol, userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := fillKey{symbol: symbol, userID: userID}
	if _, ok := b.fills[key]; !ok {
		return false
	}
	delete(b.fills, key)
	return true
}

// Get returns the pending fill for (symbol, user).
func (b *FillBook) Get(symbol, userID string) (models.PendingFill, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	f, ok := b.fills[fillKey{symbol: symbol, userID: userID}]
	return f, ok
}

// Fills returns a snapshot of all pending fills.
func (b *FillBook) Fills() []models.PendingFill {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.PendingFill, 0, len(b.fills))
	for _, f := range b.fills {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out
}

// FillsFor returns all pending fills belonging to a user.
func (b *FillBook) FillsFor(userID string) []models.PendingFill {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []models.PendingFill
	for key, f := range b.fills {
		if key.userID == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out
}

// Symbols returns the distinct symbols referenced by any pending fill.
func (b *FillBook) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := make(map[string]struct{}, len(b.fills))
	var out []string
	for key := range b.fills {
		if _, ok := seen[key.symbol]; !ok {
			seen[key.symbol] = struct{}{}
			out = append(out, key.symbol)
		}
	}
	return out
}

// References reports whether any pending fill watches the symbol.
func (b *FillBook) References(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for key := range b.fills {
		if key.symbol == symbol {
			return true
		}
	}
	return false
}

// Count returns the number of pending fills.
func (b *FillBook) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.fills)
}

// OrderDesk is the slice of the order pipeline the fill monitor needs:
// status reconciliation and exit-order placement.
type OrderDesk interface {
	OrderStatus(ctx context.Context, accountRef, orderID string) (models.OrderStatus, error)
	PlaceExitOrders(ctx context.Context, accountRef, symbol string, qty int, takeProfit, stopLoss float64) (tpOrderID, slOrderID string, err error)
}

// FillOutcome is the resolution of one pending fill.
type FillOutcome struct {
	Fill    models.PendingFill
	Status  models.OrderStatus
	ExitTP  string // take-profit order id, when exits were placed
	ExitSL  string // stop-loss order id, when exits were placed
	ExitErr error  // non-nil when a confirmed fill's exits could not be placed
}

// FillMonitor closes the loop between a submitted BUY and its protective
// exit orders. State machine per entry:
//
//	OPEN/PARTIAL        poll again next tick
//	EXECUTED            place exit orders, notify, remove   [terminal]
//	CANCELLED/EXPIRED   notify abort, remove                [terminal]
//	unreadable          log warning, retry next tick
type FillMonitor struct {
	book     *FillBook
	desk     OrderDesk
	notifier notify.Notifier
	logger   zerolog.Logger

	onResolved func(FillOutcome)
}

// NewFillMonitor creates a fill monitor.
func NewFillMonitor(book *FillBook, desk OrderDesk, notifier notify.Notifier, logger zerolog.Logger) *FillMonitor {
	return &FillMonitor{
		book:     book,
		desk:     desk,
		notifier: notifier,
		logger:   logger,
	}
}

// SetOnResolved sets a callback invoked for each terminally resolved fill.
func (m *FillMonitor) SetOnResolved(fn func(FillOutcome)) {
	m.onResolved = fn
}

// CheckAll polls the order status of every pending fill. Entries are
// independent: a failure to query one never blocks the others.
func (m *FillMonitor) CheckAll(ctx context.Context) {
	for _, fill := range m.book.Fills() {
		status, err := m.desk.OrderStatus(ctx, fill.AccountRef, fill.BuyOrderID)
		if err != nil {
			m.logger.Warn().Err(err).
				Str("symbol", fill.Symbol).
				Str("order_id", fill.BuyOrderID).
				Msg("fill status poll failed, retrying next tick")
			continue
		}
		m.resolve(ctx, fill, status)
	}
}

// Force resolves a pending fill as executed without consulting the broker.
// Sandbox use only: it lets exit-order placement be exercised before a real
// fill happens.
func (m *FillMonitor) Force(ctx context.Context, symbol, userID string) error {
	fill, ok := m.book.Get(symbol, userID)
	if !ok {
		return errors.ErrFillNotFound
	}
	m.resolve(ctx, fill, models.OrderStatusExecuted)
	return nil
}

func (m *FillMonitor) resolve(ctx context.Context, fill models.PendingFill, status models.OrderStatus) {
	switch status {
	case models.OrderStatusOpen, models.OrderStatusPartial:
		return

	case models.OrderStatusExecuted:
		m.book.Remove(fill.Symbol, fill.UserID)
		outcome := FillOutcome{Fill: fill, Status: status}

		tpID, slID, err := m.desk.PlaceExitOrders(ctx, fill.AccountRef, fill.Symbol, fill.Qty, fill.TakeProfit, fill.StopLoss)
		outcome.ExitTP, outcome.ExitSL, outcome.ExitErr = tpID, slID, err
		if err != nil {
			// A confirmed fill without protection must never fail silently:
			// the user gets the exact manual order parameters.
			m.logger.Error().Err(err).
				Str("symbol", fill.Symbol).
				Str("order_id", fill.BuyOrderID).
				Msg("exit order placement failed after confirmed fill")
			m.send(ctx, fill.UserID, formatExitFailure(fill, err))
		} else {
			m.logger.Info().
				Str("symbol", fill.Symbol).
				Str("order_id", fill.BuyOrderID).
				Str("tp_order_id", tpID).
				Str("sl_order_id", slID).
				Msg("bracket completed")
			m.send(ctx, fill.UserID, fmt.Sprintf(
				"%s BUY %d filled. Exits placed: SELL limit @ %.2f (order %s), SELL stop @ %.2f (order %s).",
				fill.Symbol, fill.Qty, fill.TakeProfit, tpID, fill.StopLoss, slID))
		}
		m.resolved(outcome)

	default:
		if !status.IsTerminal() {
			m.logger.Warn().
				Str("symbol", fill.Symbol).
				Str("order_id", fill.BuyOrderID).
				Str("status", string(status)).
				Msg("unrecognized order status, retrying next tick")
			return
		}
		// CANCELLED, EXPIRED or REJECTED: the entry never happened.
		m.book.Remove(fill.Symbol, fill.UserID)
		m.logger.Info().
			Str("symbol", fill.Symbol).
			Str("order_id", fill.BuyOrderID).
			Str("status", string(status)).
			Msg("buy order terminated without fill")
		m.send(ctx, fill.UserID, fmt.Sprintf(
			"%s BUY %d @ %.2f was %s by the broker. No exit orders placed.",
			fill.Symbol, fill.Qty, fill.LimitPrice, status))
		m.resolved(FillOutcome{Fill: fill, Status: status})
	}
}

func (m *FillMonitor) resolved(outcome FillOutcome) {
	if m.onResolved != nil {
		m.onResolved(outcome)
	}
}

func (m *FillMonitor) send(ctx context.Context, userID, text string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Send(ctx, userID, text); err != nil {
		m.logger.Error().Err(err).Str("user_id", userID).Msg("fill notification failed")
	}
}

// formatExitFailure builds the manual-order instructions sent when exit
// placement fails after a confirmed fill.
func formatExitFailure(fill models.PendingFill, err error) string {
	return fmt.Sprintf(
		"%s BUY %d filled but exit orders FAILED (%v).\n"+
			"Place these manually now:\n"+
			"  SELL %d %s LIMIT @ %.2f (take profit)\n"+
			"  SELL %d %s STOP @ %.2f (stop loss)",
		fill.Symbol, fill.Qty, err,
		fill.Qty, fill.Symbol, fill.TakeProfit,
		fill.Qty, fill.Symbol, fill.StopLoss)
}
