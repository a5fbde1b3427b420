package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"etrade-trader/internal/journal"
	"etrade-trader/internal/metrics"
	"etrade-trader/internal/notify"
	"etrade-trader/internal/quote"
	"etrade-trader/internal/resilience"
	"etrade-trader/internal/scheduler"
	"etrade-trader/internal/stream"
	"etrade-trader/internal/trading"
)

// addRunCommand adds the long-running bot command.
func addRunCommand(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the bot: poll prices, fire alerts, manage orders",
		Long: `Run the bot until interrupted.

Every poll interval the bot fetches a quote for each watched symbol,
evaluates watch plans, and reconciles pending fills. Plans are managed over
Telegram while the bot runs; state is in-memory and lost on restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), app)
		},
	})
}

func runBot(ctx context.Context, app *App) error {
	cfg := app.Config
	logger := app.Logger

	if !app.Broker.IsAuthenticated() {
		logger.Warn().Msg("broker session missing, orders will fail until 'trader auth save'")
	}

	fetcher := quote.WithBreaker(quote.NewYahooFetcher(cfg.Proxy), resilience.DefaultCircuitBreakerConfig())
	logger.Info().Str("source", fetcher.Name()).Msg("quote source ready")

	var notifier notify.Notifier
	var telegram *notify.TelegramNotifier
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		telegram = notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Proxy, logger)
		notifier = telegram
	} else {
		logger.Warn().Msg("telegram disabled, alerts go to the log only")
		notifier = notify.Func(func(ctx context.Context, userID, text string) error {
			logger.Info().Str("user_id", userID).Str("text", text).Msg("notification")
			return nil
		})
	}

	var recorder journal.Recorder
	if cfg.Journal.SQLitePath != "" {
		sr, err := journal.NewSQLiteRecorder(cfg.Journal.SQLitePath)
		if err != nil {
			logger.Warn().Err(err).Msg("sqlite journal unavailable, events will not be recorded")
			recorder = journal.NewNoopRecorder()
		} else {
			recorder = sr
			defer sr.Close()
		}
	} else {
		recorder = journal.NewNoopRecorder()
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		logger.Info().Str("addr", cfg.Metrics.ListenAddr).Msg("metrics endpoint up")
	}

	pipeline := trading.NewPipeline(app.Broker, logger, cfg.Poll.OrderListCount)
	history := stream.NewHistory(cfg.Poll.HistoryCapacity)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(fetcher, pipeline, notifier, recorder, history, logger, scheduler.Options{
		Interval:       cfg.Poll.Interval,
		TrendThreshold: cfg.Poll.TrendThreshold,
		SparklineWidth: cfg.Poll.SparklineWidth,
		Sandbox:        cfg.Broker.Sandbox,
	})
	if err := sched.Start(runCtx); err != nil {
		return err
	}
	defer sched.Stop()

	if telegram != nil {
		go telegram.StartPolling(runCtx, sched.HandleCommand)
		logger.Info().Msg("telegram polling started")
	}

	logger.Info().Msg("bot running, ctrl-c to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-runCtx.Done():
	}

	logger.Info().Msg("shutdown signal received, stopping")
	cancel()
	return nil
}
