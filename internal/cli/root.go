// Package cli provides the command-line interface for the trading application.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"etrade-trader/internal/broker"
	"etrade-trader/internal/config"
	"etrade-trader/internal/logging"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2025-08-01"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Broker *broker.ETradeBroker
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
		Broker: broker.NewETradeBroker(broker.ETradeConfig{
			BaseURL:     cfg.Broker.BaseURL,
			SessionPath: cfg.Broker.SessionPath,
		}),
	}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "E*TRADE bracket trader - price-triggered entries with managed exits",
		Long: `A price-triggered bracket trading bot for US equities.

Watch plans define a buy zone, a take-profit target and a stop loss per
symbol. When the price enters the zone the bot alerts over Telegram, waits
for an explicit confirmation, places a limit BUY via preview-then-place,
monitors the fill, and covers the position with a take-profit SELL and a
stop-loss SELL.

Use 'trader run' to start the bot, 'trader auth' to manage the broker session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/etrade-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addAuthCommands(rootCmd, app)
	addRunCommand(rootCmd, app)
	addQuoteCommand(rootCmd, app)

	return rootCmd
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("E*TRADE Bracket Trader v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Info("Polling")
	output.Printf("  Interval:         %s\n", cfg.Poll.Interval)
	output.Printf("  History capacity: %d\n", cfg.Poll.HistoryCapacity)
	output.Printf("  Trend threshold:  %.2f%%\n", cfg.Poll.TrendThreshold)
	output.Println()
	output.Info("Broker")
	output.Printf("  Base URL: %s\n", cfg.Broker.BaseURL)
	output.Printf("  Sandbox:  %v\n", cfg.Broker.Sandbox)
	output.Println()
	output.Info("Telegram")
	output.Printf("  Enabled: %v\n", cfg.Telegram.Enabled)
	output.Println()
	output.Info("Journal")
	output.Printf("  SQLite path: %s\n", cfg.Journal.SQLitePath)
	output.Println()
	output.Info("Metrics")
	output.Printf("  Enabled: %v\n", cfg.Metrics.Enabled)
	output.Printf("  Listen:  %s\n", cfg.Metrics.ListenAddr)
	if cfg.Proxy != "" {
		output.Println()
		output.Info("Network")
		output.Printf("  Proxy: %s\n", cfg.Proxy)
	}
	return nil
}
