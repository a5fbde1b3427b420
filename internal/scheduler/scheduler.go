// Package scheduler drives the recurring polling cycle: fetch quotes for
// every watched symbol, evaluate watch-plan triggers, then reconcile pending
// fills, in that order, once per tick, never concurrently with itself.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"etrade-trader/internal/errors"
	"etrade-trader/internal/journal"
	"etrade-trader/internal/logging"
	"etrade-trader/internal/metrics"
	"etrade-trader/internal/models"
	"etrade-trader/internal/notify"
	"etrade-trader/internal/quote"
	"etrade-trader/internal/stream"
	"etrade-trader/internal/trading"
)

// Options configures the scheduler.
type Options struct {
	Interval       time.Duration
	TrendThreshold float64
	SparklineWidth int
	Sandbox        bool
}

// Scheduler owns the in-memory registries and runs the tick. All state is
// process-local; a restart loses every plan and pending fill.
type Scheduler struct {
	quotes   quote.Source
	pipeline *trading.Pipeline
	notifier notify.Notifier
	recorder journal.Recorder
	logger   zerolog.Logger
	opts     Options

	plans    *stream.PlanBook
	fills    *stream.FillBook
	history  *stream.History
	sessions *trading.Sessions

	evaluator *stream.Evaluator
	monitor   *stream.FillMonitor

	cron    *cron.Cron
	baseCtx context.Context
}

// New creates a scheduler with fresh registries.
func New(quotes quote.Source, pipeline *trading.Pipeline, notifier notify.Notifier, recorder journal.Recorder, history *stream.History, logger zerolog.Logger, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if recorder == nil {
		recorder = journal.NewNoopRecorder()
	}

	s := &Scheduler{
		quotes:   quotes,
		pipeline: pipeline,
		notifier: notifier,
		recorder: recorder,
		logger:   logger,
		opts:     opts,
		plans:    stream.NewPlanBook(),
		fills:    stream.NewFillBook(),
		history:  history,
		sessions: trading.NewSessions(),
	}

	s.evaluator = stream.NewEvaluator(s.plans, s.history, notifier, logger, stream.EvaluatorConfig{
		TrendThreshold: opts.TrendThreshold,
		SparklineWidth: opts.SparklineWidth,
	})
	s.evaluator.SetOnTrigger(s.onTrigger)

	s.monitor = stream.NewFillMonitor(s.fills, pipeline, notifier, logger)
	s.monitor.SetOnResolved(s.onResolved)

	pipeline.SetOnVerifyMismatch(func(string) { metrics.IncVerifyMismatch() })

	return s
}

// Start begins the recurring tick. Overlapping ticks are skipped, never run
// concurrently, so a slow downstream call cannot cause duplicate submissions.
func (s *Scheduler) Start(ctx context.Context) error {
	s.baseCtx = ctx
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(&cronLogger{logger: s.logger}),
	))
	spec := fmt.Sprintf("@every %s", s.opts.Interval)
	if _, err := s.cron.AddFunc(spec, s.Tick); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}
	s.cron.Start()
	s.logger.Info().Dur("interval", s.opts.Interval).Msg("scheduler started")
	return nil
}

// Stop stops the recurring tick, waiting for a running tick to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) ctx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// Tick runs one polling cycle: price poll + trigger evaluation, then fill
// monitoring, sequentially.
func (s *Scheduler) Tick() {
	ctx, cancel := context.WithTimeout(s.ctx(), s.opts.Interval)
	defer cancel()

	now := time.Now()
	prices := s.poll(ctx, now)
	s.evaluator.Evaluate(ctx, prices, now)
	s.monitor.CheckAll(ctx)
	metrics.IncTick()
}

// poll fetches one quote per watched symbol. Symbols are deduplicated across
// plans and pending fills; a failed fetch skips only that symbol this tick.
func (s *Scheduler) poll(ctx context.Context, now time.Time) map[string]float64 {
	watched := make(map[string]struct{})
	for _, sym := range s.plans.Symbols() {
		watched[sym] = struct{}{}
	}
	for _, sym := range s.fills.Symbols() {
		watched[sym] = struct{}{}
	}
	s.history.Retain(watched)
	metrics.SetWatchedSymbols(len(watched))

	prices := make(map[string]float64, len(watched))
	for sym := range watched {
		q, err := s.quotes.FetchQuote(ctx, sym)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", sym).Msg("quote fetch failed, skipping symbol this tick")
			metrics.IncQuoteFailure(sym)
			continue
		}
		s.history.Append(sym, q.Last, now)
		prices[sym] = q.Last
	}
	return prices
}

// onTrigger runs after a fired plan's notification went out: record it and,
// unless the user already has a task in progress, move them into the
// confirmation-pending state.
func (s *Scheduler) onTrigger(t stream.Trigger) {
	metrics.IncAlertFired()
	logging.LogAlert(s.logger, t.Plan.Symbol, t.Plan.UserID, t.Price, t.Quantity)
	if err := s.recorder.RecordAlert(s.ctx(), &journal.AlertEvent{
		Symbol:   t.Plan.Symbol,
		UserID:   t.Plan.UserID,
		Price:    t.Price,
		Quantity: t.Quantity,
		BuyLow:   t.Plan.BuyLow,
		BuyHigh:  t.Plan.BuyHigh,
		At:       t.At,
	}); err != nil {
		s.logger.Error().Err(err).Msg("journal alert failed")
	}

	if t.Quantity <= 0 {
		return
	}

	err := s.sessions.Begin(t.Plan.UserID, &trading.Task{
		Kind: trading.TaskConfirmOrder,
		Confirmation: &trading.Confirmation{
			Plan:         t.Plan,
			TriggerPrice: t.Price,
			Quantity:     t.Quantity,
			StartedAt:    t.At,
		},
	})
	if err != nil {
		// The alert already fired; confirmation waits until the user clears
		// their current task and re-issues the flow.
		logger := logging.WithUser(logging.WithSymbol(s.logger, t.Plan.Symbol), t.Plan.UserID)
		logger.Warn().Msg("user busy, confirmation not solicited")
	}
}

// onResolved records a pending fill's terminal outcome.
func (s *Scheduler) onResolved(o stream.FillOutcome) {
	metrics.IncFill(string(o.Status))
	logging.LogFill(s.logger, o.Fill.BuyOrderID, o.Fill.Symbol, string(o.Status))
	exitErr := ""
	if o.ExitErr != nil {
		exitErr = o.ExitErr.Error()
	}
	if err := s.recorder.RecordFill(s.ctx(), &journal.FillEvent{
		OrderID:   o.Fill.BuyOrderID,
		Symbol:    o.Fill.Symbol,
		UserID:    o.Fill.UserID,
		Status:    string(o.Status),
		ExitTP:    o.ExitTP,
		ExitSL:    o.ExitSL,
		ExitError: exitErr,
		At:        time.Now(),
	}); err != nil {
		logger := logging.WithOrderID(s.logger, o.Fill.BuyOrderID)
		logger.Error().Err(err).Msg("journal fill failed")
	}
}

// AddPlan parses and registers a watch plan for a user.
func (s *Scheduler) AddPlan(userID, symbol, spec string) (models.WatchPlan, error) {
	plan, err := trading.ParsePlanSpec(symbol, userID, spec, time.Now())
	if err != nil {
		return models.WatchPlan{}, err
	}
	if err := s.plans.Add(plan); err != nil {
		return models.WatchPlan{}, err
	}
	return plan, nil
}

// CancelPlan removes a user's plan for a symbol; unreferenced price history
// is pruned immediately.
func (s *Scheduler) CancelPlan(symbol, userID string) bool {
	removed := s.plans.Remove(symbol, userID)
	if removed {
		s.pruneIfUnreferenced(symbol)
	}
	return removed
}

// CancelFill removes a user's pending fill for a symbol. The broker-side BUY
// order is left untouched; this only stops the monitor from acting on it.
func (s *Scheduler) CancelFill(symbol, userID string) bool {
	removed := s.fills.Remove(symbol, userID)
	if removed {
		s.pruneIfUnreferenced(symbol)
	}
	return removed
}

func (s *Scheduler) pruneIfUnreferenced(symbol string) {
	if !s.plans.References(symbol) && !s.fills.References(symbol) {
		s.history.Prune(symbol)
	}
}

// Plans returns the user's active watch plans.
func (s *Scheduler) Plans(userID string) []models.WatchPlan {
	return s.plans.PlansFor(userID)
}

// Fills returns the user's pending fills.
func (s *Scheduler) Fills(userID string) []models.PendingFill {
	return s.fills.FillsFor(userID)
}

// Confirm places the BUY for the user's pending confirmation and registers
// the resulting pending fill. Any placement failure keeps the confirmation
// alive: the user decides whether to retry or abandon, and after a
// credential failure the plan parameters survive re-authentication.
func (s *Scheduler) Confirm(ctx context.Context, userID string) (*trading.BuyReceipt, error) {
	c, ok := s.sessions.Confirmation(userID)
	if !ok {
		return nil, errors.ErrNoConfirmation
	}

	receipt, err := s.pipeline.PlaceBuy(ctx, c.Plan.Symbol, c.Quantity, c.TriggerPrice)
	if err != nil {
		if errors.Is(err, errors.ErrCredentialExpired) {
			s.logger.Warn().Str("user_id", userID).Msg("credentials expired, confirmation preserved for re-auth")
			return nil, err
		}
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("buy failed, confirmation preserved for retry")
		return nil, err
	}

	s.fills.Add(models.PendingFill{
		Symbol:     c.Plan.Symbol,
		UserID:     userID,
		BuyOrderID: receipt.OrderID,
		AccountRef: receipt.AccountRef,
		Qty:        c.Quantity,
		LimitPrice: c.TriggerPrice,
		TakeProfit: c.Plan.TakeProfit,
		StopLoss:   c.Plan.StopLoss,
		PlacedAt:   time.Now(),
	})
	s.sessions.End(userID)

	metrics.IncOrderPlaced(string(models.OrderSideBuy), string(models.PriceTypeLimit))
	logging.LogOrder(s.logger, receipt.OrderID, c.Plan.Symbol,
		string(models.OrderSideBuy), string(models.PriceTypeLimit), c.Quantity, c.TriggerPrice)
	if err := s.recorder.RecordOrder(ctx, &journal.OrderEvent{
		OrderID:    receipt.OrderID,
		AccountRef: receipt.AccountRef,
		Symbol:     c.Plan.Symbol,
		UserID:     userID,
		Side:       string(models.OrderSideBuy),
		PriceType:  string(models.PriceTypeLimit),
		Price:      c.TriggerPrice,
		Quantity:   c.Quantity,
		At:         time.Now(),
	}); err != nil {
		s.logger.Error().Err(err).Msg("journal order failed")
	}

	return receipt, nil
}

// Abandon drops the user's pending confirmation without placing an order.
func (s *Scheduler) Abandon(userID string) bool {
	if _, ok := s.sessions.Confirmation(userID); !ok {
		return false
	}
	s.sessions.End(userID)
	return true
}

// ForceFill resolves a pending fill as executed without waiting for a real
// fill. Sandbox only.
func (s *Scheduler) ForceFill(ctx context.Context, symbol, userID string) error {
	if !s.opts.Sandbox {
		return fmt.Errorf("force fill is only available in sandbox mode")
	}
	return s.monitor.Force(ctx, symbol, userID)
}

// HandleCommand processes a chat message and returns the reply text.
func (s *Scheduler) HandleCommand(ctx context.Context, userID, text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return s.helpText()
	}

	switch strings.ToLower(fields[0]) {
	case "watch":
		if len(fields) < 3 {
			return "usage: watch <symbol> buy <low> <high> tp <target> sl <stop> budget|qty <n>"
		}
		plan, err := s.AddPlan(userID, fields[1], strings.Join(fields[2:], " "))
		if err != nil {
			return fmt.Sprintf("rejected: %v", err)
		}
		return fmt.Sprintf("watching %s: buy %.2f-%.2f, tp %.2f, sl %.2f",
			plan.Symbol, plan.BuyLow, plan.BuyHigh, plan.TakeProfit, plan.StopLoss)

	case "plans", "list":
		return s.formatPlans(userID)

	case "fills", "pending":
		return s.formatFills(userID)

	case "cancel":
		if len(fields) != 2 {
			return "usage: cancel <symbol>"
		}
		symbol := strings.ToUpper(fields[1])
		if s.CancelPlan(symbol, userID) {
			return fmt.Sprintf("cancelled watch on %s", symbol)
		}
		return fmt.Sprintf("no watch plan for %s", symbol)

	case "confirm":
		receipt, err := s.Confirm(ctx, userID)
		if err != nil {
			if errors.Is(err, errors.ErrCredentialExpired) {
				return "broker session expired; run auth again, then reply confirm. Your order parameters are preserved"
			}
			if errors.Is(err, errors.ErrNoConfirmation) {
				return "nothing awaiting confirmation"
			}
			return fmt.Sprintf("order failed: %v (reply confirm to retry after fixing, or abandon)", err)
		}
		return fmt.Sprintf("BUY placed, order %s; exits follow once the fill is confirmed", receipt.OrderID)

	case "abandon":
		if s.Abandon(userID) {
			return "abandoned; no order placed"
		}
		return "nothing awaiting confirmation"

	case "forcefill":
		if len(fields) != 2 {
			return "usage: forcefill <symbol>"
		}
		if err := s.ForceFill(ctx, strings.ToUpper(fields[1]), userID); err != nil {
			return fmt.Sprintf("force fill failed: %v", err)
		}
		return "forced"

	default:
		return s.helpText()
	}
}

func (s *Scheduler) formatPlans(userID string) string {
	plans := s.plans.PlansFor(userID)
	if len(plans) == 0 {
		return "no active watch plans"
	}
	var sb strings.Builder
	for _, p := range plans {
		sizing := fmt.Sprintf("budget %.2f", p.Budget)
		if p.FixedQty > 0 {
			sizing = fmt.Sprintf("qty %d", p.FixedQty)
		}
		line := fmt.Sprintf("%s buy %.2f-%.2f tp %.2f sl %.2f %s", p.Symbol, p.BuyLow, p.BuyHigh, p.TakeProfit, p.StopLoss, sizing)
		if obs := s.history.Observations(p.Symbol); len(obs) > 0 {
			last := obs[len(obs)-1].Price
			dist := (last - p.BuyHigh) / p.BuyHigh * 100
			line += fmt.Sprintf(" | last %.2f (%+.2f%% vs zone top)", last, dist)
		}
		sb.WriteString(line + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (s *Scheduler) formatFills(userID string) string {
	fills := s.fills.FillsFor(userID)
	if len(fills) == 0 {
		return "no pending fills"
	}
	var sb strings.Builder
	for _, f := range fills {
		sb.WriteString(fmt.Sprintf("%s BUY %d @ %.2f (order %s) awaiting fill; tp %.2f sl %.2f\n",
			f.Symbol, f.Qty, f.LimitPrice, f.BuyOrderID, f.TakeProfit, f.StopLoss))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (s *Scheduler) helpText() string {
	help := "commands:\n" +
		"  watch <symbol> buy <low> <high> tp <t> sl <s> budget|qty <n>\n" +
		"  plans | fills | cancel <symbol> | confirm | abandon"
	if s.opts.Sandbox {
		help += " | forcefill <symbol>"
	}
	return help
}

// cronLogger adapts zerolog to the cron logger interface; it also counts
// skipped ticks.
type cronLogger struct {
	logger zerolog.Logger
}

func (c *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if strings.Contains(msg, "skip") {
		metrics.IncTickSkipped()
		c.logger.Debug().Msg("tick still running, skipping this interval")
		return
	}
	c.logger.Debug().Str("cron", msg).Msg("cron event")
}

func (c *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Error().Err(err).Str("cron", msg).Msg("cron error")
}
