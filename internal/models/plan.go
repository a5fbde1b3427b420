package models

import (
	"fmt"
	"math"
	"time"
)

// WatchPlan is one buy-zone alert: a price range that, when entered, should
// prompt the user to confirm a bracket order. Plans are immutable once added;
// a re-registration for the same (symbol, user) replaces the prior plan.
type WatchPlan struct {
	Symbol     string
	UserID     string
	BuyLow     float64
	BuyHigh    float64
	TakeProfit float64
	StopLoss   float64
	Budget     float64 // dollars; mutually exclusive with FixedQty
	FixedQty   int     // share count; mutually exclusive with Budget
	AddedAt    time.Time
}

// Validate checks the buy-zone/exit-price invariant:
// stopLoss < buyLow < buyHigh < takeProfit, with exactly one sizing mode set.
func (p WatchPlan) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("plan symbol is required")
	}
	if p.UserID == "" {
		return fmt.Errorf("plan user is required")
	}
	if p.BuyLow <= 0 || p.BuyHigh <= 0 || p.TakeProfit <= 0 || p.StopLoss <= 0 {
		return fmt.Errorf("plan prices must be positive")
	}
	if p.BuyLow >= p.BuyHigh {
		return fmt.Errorf("buy low %.2f must be below buy high %.2f", p.BuyLow, p.BuyHigh)
	}
	if p.TakeProfit <= p.BuyHigh {
		return fmt.Errorf("take profit %.2f must be above buy high %.2f", p.TakeProfit, p.BuyHigh)
	}
	if p.StopLoss >= p.BuyLow {
		return fmt.Errorf("stop loss %.2f must be below buy low %.2f", p.StopLoss, p.BuyLow)
	}
	hasBudget := p.Budget > 0
	hasQty := p.FixedQty > 0
	if hasBudget == hasQty {
		return fmt.Errorf("exactly one of budget or qty must be set")
	}
	return nil
}

// InZone reports whether price is inside the inclusive buy zone.
func (p WatchPlan) InZone(price float64) bool {
	return price >= p.BuyLow && price <= p.BuyHigh
}

// Quantity returns the order size at the given trigger price:
// the fixed share count if set, otherwise floor(budget / price).
func (p WatchPlan) Quantity(price float64) int {
	if p.FixedQty > 0 {
		return p.FixedQty
	}
	if price <= 0 {
		return 0
	}
	return int(math.Floor(p.Budget / price))
}

// PendingFill is a submitted BUY order awaiting execution confirmation.
// It carries everything needed to place the protective exit orders once
// the fill is observed.
type PendingFill struct {
	Symbol     string
	UserID     string
	BuyOrderID string
	AccountRef string
	Qty        int
	LimitPrice float64
	TakeProfit float64
	StopLoss   float64
	PlacedAt   time.Time
}
