package stream

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"etrade-trader/internal/models"
)

// Property: a plan whose symbol trades inside the buy zone fires exactly
// once; re-evaluating at the same price fires nothing, because the trigger
// removes the plan before anything else happens.
func TestProperty_InZonePriceFiresExactlyOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("in-zone price consumes the plan", prop.ForAll(
		func(buyLow float64, zoneWidth float64, frac float64, budget float64) bool {
			buyHigh := buyLow + zoneWidth
			plan := models.WatchPlan{
				Symbol:     "AAPL",
				UserID:     "u1",
				BuyLow:     buyLow,
				BuyHigh:    buyHigh,
				TakeProfit: buyHigh * 1.1,
				StopLoss:   buyLow * 0.9,
				Budget:     budget,
				AddedAt:    time.Now(),
			}
			if plan.Validate() != nil {
				return true // generator produced a degenerate zone, skip
			}

			book := NewPlanBook()
			if book.Add(plan) != nil {
				return false
			}
			eval := NewEvaluator(book, NewHistory(30), &collector{}, zerolog.Nop(), EvaluatorConfig{})

			price := buyLow + frac*(buyHigh-buyLow)
			prices := map[string]float64{"AAPL": price}

			first := eval.Evaluate(context.Background(), prices, time.Now())
			second := eval.Evaluate(context.Background(), prices, time.Now())

			return len(first) == 1 && len(second) == 0 && book.Count() == 0
		},
		gen.Float64Range(1, 5000),
		gen.Float64Range(0.01, 100),
		gen.Float64Range(0, 1),
		gen.Float64Range(1, 100000),
	))

	properties.TestingRun(t)
}

// Property: an out-of-zone price never fires and never mutates the book.
func TestProperty_OutOfZonePriceNeverFires(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("out-of-zone price leaves the plan registered", prop.ForAll(
		func(buyLow float64, zoneWidth float64, offset float64, above bool) bool {
			buyHigh := buyLow + zoneWidth
			plan := models.WatchPlan{
				Symbol:     "AAPL",
				UserID:     "u1",
				BuyLow:     buyLow,
				BuyHigh:    buyHigh,
				TakeProfit: buyHigh * 1.1,
				StopLoss:   buyLow * 0.9,
				FixedQty:   1,
				AddedAt:    time.Now(),
			}
			if plan.Validate() != nil {
				return true
			}

			book := NewPlanBook()
			if book.Add(plan) != nil {
				return false
			}
			eval := NewEvaluator(book, NewHistory(30), &collector{}, zerolog.Nop(), EvaluatorConfig{})

			price := buyLow - offset
			if above {
				price = buyHigh + offset
			}
			if price <= 0 {
				return true
			}

			fired := eval.Evaluate(context.Background(), map[string]float64{"AAPL": price}, time.Now())
			return len(fired) == 0 && book.Count() == 1
		},
		gen.Float64Range(1, 5000),
		gen.Float64Range(0.01, 100),
		gen.Float64Range(0.001, 1000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property: budget sizing is floor(budget/price): the order never spends
// more than the budget, and one more share would always exceed it.
func TestProperty_BudgetSizingNeverOverspends(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("floor(budget/price) respects the budget", prop.ForAll(
		func(budget float64, price float64) bool {
			plan := models.WatchPlan{Budget: budget}
			qty := plan.Quantity(price)

			if qty != int(math.Floor(budget/price)) {
				return false
			}
			// Small tolerance for float rounding at exact multiples.
			if float64(qty)*price > budget*(1+1e-9) {
				return false
			}
			return float64(qty+1)*price > budget*(1-1e-9)
		},
		gen.Float64Range(1, 1000000),
		gen.Float64Range(0.01, 10000),
	))

	properties.TestingRun(t)
}
