package stream

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"etrade-trader/internal/errors"
	"etrade-trader/internal/models"
	"etrade-trader/internal/notify"
)

type planKey struct {
	symbol string
	userID string
}

// PlanBook is the registry of active watch plans, keyed by (symbol, user).
// Re-registering the same key replaces the prior plan.
type PlanBook struct {
	mu    sync.RWMutex
	plans map[planKey]models.WatchPlan
}

// NewPlanBook creates an empty plan registry.
func NewPlanBook() *PlanBook {
	return &PlanBook{plans: make(map[planKey]models.WatchPlan)}
}

// Add validates and inserts a plan, overwriting any prior plan for the same
// (symbol, user). A validation failure rejects the plan with no side effects.
func (b *PlanBook) Add(plan models.WatchPlan) error {
	if err := plan.Validate(); err != nil {
		return errors.NewPlanValidationError(plan.Symbol, plan.UserID, "zone invariant violated", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.plans[planKey{symbol: plan.Symbol, userID: plan.UserID}] = plan
	return nil
}

// Remove deletes the plan for (symbol, user) and reports whether one existed.
func (b *PlanBook) Remove(symbol, userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := planKey{symbol: symbol, userID: userID}
	if _, ok := b.plans[key]; !ok {
		return false
	}
	delete(b.plans, key)
	return true
}

// Plans returns a snapshot of all registered plans.
func (b *PlanBook) Plans() []models.WatchPlan {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.WatchPlan, 0, len(b.plans))
	for _, p := range b.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out
}

// PlansFor returns all plans belonging to a user.
func (b *PlanBook) PlansFor(userID string) []models.WatchPlan {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []models.WatchPlan
	for key, p := range b.plans {
		if key.userID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out
}

// Symbols returns the distinct symbols referenced by any plan.
func (b *PlanBook) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := make(map[string]struct{}, len(b.plans))
	var out []string
	for key := range b.plans {
		if _, ok := seen[key.symbol]; !ok {
			seen[key.symbol] = struct{}{}
			out = append(out, key.symbol)
		}
	}
	return out
}

// References reports whether any plan watches the symbol.
func (b *PlanBook) References(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for key := range b.plans {
		if key.symbol == symbol {
			return true
		}
	}
	return false
}

// Count returns the number of registered plans.
func (b *PlanBook) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.plans)
}

// Trigger carries everything known about a fired plan at trigger time.
type Trigger struct {
	Plan     models.WatchPlan
	Price    float64
	Quantity int
	Trend    *TrendSummary
	At       time.Time
}

// EvaluatorConfig tunes trend reporting in trigger notifications.
type EvaluatorConfig struct {
	TrendThreshold float64
	SparklineWidth int
}

// Evaluator detects buy-zone entry. A plan fires at most once: it is removed
// from the book before any notification goes out, so a slow downstream step
// cannot cause a double trigger.
type Evaluator struct {
	book     *PlanBook
	history  *History
	notifier notify.Notifier
	logger   zerolog.Logger
	cfg      EvaluatorConfig

	// onTrigger runs after the trigger notification is sent; the scheduler
	// uses it to move the user into the confirmation-pending state.
	onTrigger func(Trigger)
}

// NewEvaluator creates a trigger evaluator.
func NewEvaluator(book *PlanBook, history *History, notifier notify.Notifier, logger zerolog.Logger, cfg EvaluatorConfig) *Evaluator {
	if cfg.TrendThreshold <= 0 {
		cfg.TrendThreshold = DefaultTrendThreshold
	}
	if cfg.SparklineWidth <= 0 {
		cfg.SparklineWidth = DefaultSparklineWidth
	}
	return &Evaluator{
		book:     book,
		history:  history,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
}

// SetOnTrigger sets a callback invoked for each fired plan.
func (e *Evaluator) SetOnTrigger(fn func(Trigger)) {
	e.onTrigger = fn
}

// Evaluate checks every registered plan against the prices fetched this tick.
// Plans whose symbol has no fresh price are left untouched. Returns the
// triggers that fired.
func (e *Evaluator) Evaluate(ctx context.Context, prices map[string]float64, now time.Time) []Trigger {
	var fired []Trigger

	for _, plan := range e.book.Plans() {
		price, ok := prices[plan.Symbol]
		if !ok || !plan.InZone(price) {
			continue
		}

		// Fire-once: remove before notifying. A concurrent removal means
		// someone else already consumed this plan.
		if !e.book.Remove(plan.Symbol, plan.UserID) {
			continue
		}

		qty := plan.Quantity(price)
		trend := Trend(e.history.Observations(plan.Symbol), e.cfg.TrendThreshold, e.cfg.SparklineWidth)

		trigger := Trigger{
			Plan:     plan,
			Price:    price,
			Quantity: qty,
			Trend:    trend,
			At:       now,
		}

		e.logger.Info().
			Str("symbol", plan.Symbol).
			Str("user_id", plan.UserID).
			Float64("price", price).
			Int("quantity", qty).
			Msg("watch plan fired")

		if e.notifier != nil {
			if err := e.notifier.Send(ctx, plan.UserID, FormatTrigger(trigger)); err != nil {
				e.logger.Error().Err(err).
					Str("symbol", plan.Symbol).
					Str("user_id", plan.UserID).
					Msg("trigger notification failed")
			}
		}

		if e.onTrigger != nil {
			e.onTrigger(trigger)
		}
		fired = append(fired, trigger)
	}

	return fired
}

// FormatTrigger renders the trigger notification text: trigger price, zone,
// computed order size, exit levels, and a trend summary when available.
func FormatTrigger(t Trigger) string {
	p := t.Plan
	msg := fmt.Sprintf("%s entered buy zone %.2f-%.2f at %.2f\n", p.Symbol, p.BuyLow, p.BuyHigh, t.Price)
	if t.Quantity > 0 {
		msg += fmt.Sprintf("Order: BUY %d @ %.2f limit | TP %.2f | SL %.2f\n", t.Quantity, t.Price, p.TakeProfit, p.StopLoss)
		msg += "Reply confirm to place the order, abandon to skip."
	} else {
		msg += fmt.Sprintf("Budget %.2f buys no whole share at %.2f; plan dropped.", p.Budget, t.Price)
	}
	if t.Trend != nil {
		msg += fmt.Sprintf("\nTrend: %s %+.2f%% over %s (lo %.2f / hi %.2f) %s",
			t.Trend.Direction, t.Trend.ChangePercent, t.Trend.Elapsed.Round(time.Second),
			t.Trend.Min, t.Trend.Max, t.Trend.Sparkline)
	}
	return msg
}
