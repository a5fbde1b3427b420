package journal

import "context"

// NoopRecorder discards all events. Used when no journal path is configured.
type NoopRecorder struct{}

// NewNoopRecorder creates a recorder that does nothing.
func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordAlert(ctx context.Context, e *AlertEvent) error { return nil }
func (n *NoopRecorder) RecordOrder(ctx context.Context, e *OrderEvent) error { return nil }
func (n *NoopRecorder) RecordFill(ctx context.Context, e *FillEvent) error   { return nil }
func (n *NoopRecorder) Close() error                                         { return nil }
