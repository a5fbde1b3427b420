// Package stream provides the in-memory registries and monitors driven by the
// polling loop: price history, watch plans, and pending fills.
package stream

import (
	"math"
	"strings"
	"sync"
	"time"

	"etrade-trader/internal/models"
)

// DefaultHistoryCapacity is the per-symbol ring size.
const DefaultHistoryCapacity = 30

// History keeps a bounded per-symbol window of recent price observations.
// The window is shared by every plan and pending fill watching that symbol
// and is append-only except for bounded eviction.
type History struct {
	capacity int
	mu       sync.RWMutex
	buffers  map[string][]models.PriceObservation
}

// NewHistory creates a history store with the given per-symbol capacity.
func NewHistory(capacity int) *History {
	if capacity < 2 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		capacity: capacity,
		buffers:  make(map[string][]models.PriceObservation),
	}
}

// Append records an observation, evicting the oldest when full.
func (h *History) Append(symbol string, price float64, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf := h.buffers[symbol]
	if len(buf) >= h.capacity {
		buf = buf[1:]
	}
	h.buffers[symbol] = append(buf, models.PriceObservation{Price: price, At: at})
}

// Observations returns a copy of the symbol's window, oldest first.
func (h *History) Observations(symbol string) []models.PriceObservation {
	h.mu.RLock()
	defer h.mu.RUnlock()

	buf := h.buffers[symbol]
	if len(buf) == 0 {
		return nil
	}
	out := make([]models.PriceObservation, len(buf))
	copy(out, buf)
	return out
}

// Len returns the number of observations held for a symbol.
func (h *History) Len(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.buffers[symbol])
}

// Prune drops the window for a symbol.
func (h *History) Prune(symbol string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.buffers, symbol)
}

// Retain drops every window whose symbol is not in keep.
func (h *History) Retain(keep map[string]struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for symbol := range h.buffers {
		if _, ok := keep[symbol]; !ok {
			delete(h.buffers, symbol)
		}
	}
}

// TrendDirection is a coarse label for recent price action.
type TrendDirection string

const (
	TrendUp      TrendDirection = "up"
	TrendDown    TrendDirection = "down"
	TrendRanging TrendDirection = "ranging"
)

// TrendSummary describes recent price action over a symbol's window.
type TrendSummary struct {
	ChangePercent float64
	Min           float64
	Max           float64
	Elapsed       time.Duration
	Direction     TrendDirection
	Sparkline     string
}

// DefaultTrendThreshold is the percent change beyond which the direction
// label leaves "ranging".
const DefaultTrendThreshold = 0.5

// DefaultSparklineWidth is the number of observations rendered in the
// sparkline.
const DefaultSparklineWidth = 10

var sparkGlyphs = []rune("▁▂▃▄▅▆▇█")

// Trend computes a trend summary over a window of observations, oldest first.
// It returns nil when fewer than 2 observations exist.
func Trend(obs []models.PriceObservation, threshold float64, sparkWidth int) *TrendSummary {
	if len(obs) < 2 {
		return nil
	}
	if threshold <= 0 {
		threshold = DefaultTrendThreshold
	}
	if sparkWidth <= 0 {
		sparkWidth = DefaultSparklineWidth
	}

	oldest := obs[0]
	newest := obs[len(obs)-1]

	summary := &TrendSummary{
		Min:     math.Inf(1),
		Max:     math.Inf(-1),
		Elapsed: newest.At.Sub(oldest.At),
	}
	for _, o := range obs {
		if o.Price < summary.Min {
			summary.Min = o.Price
		}
		if o.Price > summary.Max {
			summary.Max = o.Price
		}
	}

	if oldest.Price != 0 {
		summary.ChangePercent = (newest.Price - oldest.Price) / oldest.Price * 100
	}

	switch {
	case summary.ChangePercent <= -threshold:
		summary.Direction = TrendDown
	case summary.ChangePercent >= threshold:
		summary.Direction = TrendUp
	default:
		summary.Direction = TrendRanging
	}

	tail := obs
	if len(tail) > sparkWidth {
		tail = tail[len(tail)-sparkWidth:]
	}
	summary.Sparkline = sparkline(tail, summary.Min, summary.Max)

	return summary
}

// sparkline buckets prices linearly between min and max into glyph levels.
func sparkline(obs []models.PriceObservation, min, max float64) string {
	var sb strings.Builder
	span := max - min
	for _, o := range obs {
		idx := len(sparkGlyphs) / 2
		if span > 0 {
			idx = int((o.Price - min) / span * float64(len(sparkGlyphs)-1))
			if idx < 0 {
				idx = 0
			}
			if idx >= len(sparkGlyphs) {
				idx = len(sparkGlyphs) - 1
			}
		}
		sb.WriteRune(sparkGlyphs[idx])
	}
	return sb.String()
}
