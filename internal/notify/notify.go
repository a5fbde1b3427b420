// Package notify provides user notification delivery for the trading
// application.
package notify

import "context"

// Notifier delivers a text message to a user over whichever chat channel is
// active. Callers in the polling loop log failures and never let them
// propagate into the tick.
type Notifier interface {
	Send(ctx context.Context, userID, text string) error
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, userID, text string) error

// Send implements Notifier.
func (f Func) Send(ctx context.Context, userID, text string) error {
	return f(ctx, userID, text)
}
