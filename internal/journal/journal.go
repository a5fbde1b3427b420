// Package journal provides an append-only audit trail of trading events.
// It is an audit log, not durable state: in-flight plans and pending fills
// still live only in process memory.
package journal

import (
	"context"
	"time"
)

// AlertEvent records a watch plan firing.
type AlertEvent struct {
	Symbol   string
	UserID   string
	Price    float64
	Quantity int
	BuyLow   float64
	BuyHigh  float64
	At       time.Time
}

// OrderEvent records an order accepted by the broker.
type OrderEvent struct {
	OrderID    string
	AccountRef string
	Symbol     string
	UserID     string
	Side       string
	PriceType  string
	Price      float64
	Quantity   int
	At         time.Time
}

// FillEvent records the terminal resolution of a pending fill.
type FillEvent struct {
	OrderID   string
	Symbol    string
	UserID    string
	Status    string
	ExitTP    string
	ExitSL    string
	ExitError string
	At        time.Time
}

// Recorder persists trading events.
type Recorder interface {
	RecordAlert(ctx context.Context, e *AlertEvent) error
	RecordOrder(ctx context.Context, e *OrderEvent) error
	RecordFill(ctx context.Context, e *FillEvent) error
	Close() error
}
