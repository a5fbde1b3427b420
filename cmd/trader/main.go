package main

import (
	"fmt"
	"os"

	"etrade-trader/internal/cli"
	"etrade-trader/internal/config"
	"etrade-trader/internal/logging"
)

func main() {
	configDir := ""
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			configDir = os.Args[i+1]
		}
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLoggerWithConfig(logging.LogConfig{
		Level:      cfg.Log.Level,
		Console:    cfg.Log.Console,
		File:       cfg.Log.File,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	})

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
