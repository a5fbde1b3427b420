// Package trading provides order submission and the confirmation flow
// between a fired alert and a placed bracket.
package trading

import (
	"strconv"
	"strings"
	"time"

	"etrade-trader/internal/errors"
	"etrade-trader/internal/models"
)

// ParsePlanSpec parses the chat-facing plan grammar:
//
//	buy <low> <high> tp <target> sl <stop> budget <amount>
//	buy <low> <high> tp <target> sl <stop> qty <shares>
//
// Any other shape is a parse failure. The returned plan is validated against
// the zone invariant before it is returned.
func ParsePlanSpec(symbol, userID, input string, now time.Time) (models.WatchPlan, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(input)))
	if len(fields) != 9 {
		return models.WatchPlan{}, errors.NewParseError(input, "expected: buy <low> <high> tp <target> sl <stop> budget|qty <n>")
	}
	if fields[0] != "buy" {
		return models.WatchPlan{}, errors.NewParseError(input, "must start with buy")
	}
	if fields[3] != "tp" {
		return models.WatchPlan{}, errors.NewParseError(input, "expected tp after buy zone")
	}
	if fields[5] != "sl" {
		return models.WatchPlan{}, errors.NewParseError(input, "expected sl after take profit")
	}

	buyLow, err := parsePrice(fields[1])
	if err != nil {
		return models.WatchPlan{}, errors.NewParseError(input, "bad buy low: "+fields[1])
	}
	buyHigh, err := parsePrice(fields[2])
	if err != nil {
		return models.WatchPlan{}, errors.NewParseError(input, "bad buy high: "+fields[2])
	}
	takeProfit, err := parsePrice(fields[4])
	if err != nil {
		return models.WatchPlan{}, errors.NewParseError(input, "bad take profit: "+fields[4])
	}
	stopLoss, err := parsePrice(fields[6])
	if err != nil {
		return models.WatchPlan{}, errors.NewParseError(input, "bad stop loss: "+fields[6])
	}

	plan := models.WatchPlan{
		Symbol:     strings.ToUpper(symbol),
		UserID:     userID,
		BuyLow:     buyLow,
		BuyHigh:    buyHigh,
		TakeProfit: takeProfit,
		StopLoss:   stopLoss,
		AddedAt:    now,
	}

	switch fields[7] {
	case "budget":
		budget, err := parsePrice(fields[8])
		if err != nil {
			return models.WatchPlan{}, errors.NewParseError(input, "bad budget: "+fields[8])
		}
		plan.Budget = budget
	case "qty":
		qty, err := strconv.Atoi(fields[8])
		if err != nil || qty <= 0 {
			return models.WatchPlan{}, errors.NewParseError(input, "bad qty: "+fields[8])
		}
		plan.FixedQty = qty
	default:
		return models.WatchPlan{}, errors.NewParseError(input, "expected budget or qty, got "+fields[7])
	}

	if err := plan.Validate(); err != nil {
		return models.WatchPlan{}, errors.NewPlanValidationError(plan.Symbol, userID, "zone invariant violated", err)
	}
	return plan, nil
}

func parsePrice(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, strconv.ErrRange
	}
	return v, nil
}
