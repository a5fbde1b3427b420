// Package models provides domain models for the trading application.
package models

import (
	"time"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// PriceType represents how an order is priced.
type PriceType string

const (
	PriceTypeLimit PriceType = "LIMIT"
	PriceTypeStop  PriceType = "STOP"
)

// OrderTerm represents how long an order stays working.
type OrderTerm string

const (
	TermGoodUntilCancel OrderTerm = "GOOD_UNTIL_CANCEL"
)

// OrderStatus represents the broker-reported status of an order.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusExecuted  OrderStatus = "EXECUTED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// IsTerminal reports whether the status ends the order's lifecycle.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusExecuted, OrderStatusCancelled, OrderStatusExpired, OrderStatusRejected:
		return true
	}
	return false
}

// Quote represents a market quote for a symbol.
type Quote struct {
	Symbol        string
	Last          float64
	Open          float64
	High          float64
	Low           float64
	PrevClose     float64
	Volume        int64
	Change        float64
	ChangePercent float64
	Timestamp     time.Time
}

// PriceObservation is a single point in a symbol's rolling price history.
type PriceObservation struct {
	Price float64
	At    time.Time
}

// BrokerOrder is a read-only view of an order as reported by the broker.
// The system never owns this entity; it only submits orders and re-derives
// status from the broker's order list.
type BrokerOrder struct {
	OrderID    string
	Status     OrderStatus
	Action     OrderSide
	Symbol     string
	Quantity   int
	PriceType  PriceType
	LimitPrice float64
	StopPrice  float64
	PlacedAt   time.Time
}
