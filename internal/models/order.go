package models

import "fmt"

// PriceSpec is the tagged price variant of an order spec: exactly one of
// LimitOrder or StopOrder, validated at construction.
type PriceSpec interface {
	Type() PriceType
	Value() float64
}

// LimitOrder prices an order at a fixed limit.
type LimitOrder struct {
	Price float64
}

func (l LimitOrder) Type() PriceType { return PriceTypeLimit }
func (l LimitOrder) Value() float64  { return l.Price }

// StopOrder prices an order with a stop trigger.
type StopOrder struct {
	Price float64
}

func (s StopOrder) Type() PriceType { return PriceTypeStop }
func (s StopOrder) Value() float64  { return s.Price }

// OrderSpec describes an equity order to submit to the broker.
type OrderSpec struct {
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Quantity      int
	Term          OrderTerm
	Price         PriceSpec
}

// NewLimitOrder builds a validated limit order spec.
func NewLimitOrder(symbol string, side OrderSide, qty int, price float64, term OrderTerm) (OrderSpec, error) {
	if err := validateOrderParams(symbol, qty, price); err != nil {
		return OrderSpec{}, err
	}
	return OrderSpec{
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Term:     term,
		Price:    LimitOrder{Price: price},
	}, nil
}

// NewStopOrder builds a validated stop order spec.
func NewStopOrder(symbol string, side OrderSide, qty int, trigger float64, term OrderTerm) (OrderSpec, error) {
	if err := validateOrderParams(symbol, qty, trigger); err != nil {
		return OrderSpec{}, err
	}
	return OrderSpec{
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Term:     term,
		Price:    StopOrder{Price: trigger},
	}, nil
}

func validateOrderParams(symbol string, qty int, price float64) error {
	if symbol == "" {
		return fmt.Errorf("order symbol is required")
	}
	if qty <= 0 {
		return fmt.Errorf("order quantity must be positive, got %d", qty)
	}
	if price <= 0 {
		return fmt.Errorf("order price must be positive, got %.4f", price)
	}
	return nil
}
