// Package config provides configuration management for the trading application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Poll        PollConfig     `mapstructure:"poll"`
	Broker      BrokerConfig   `mapstructure:"broker"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
	Journal     JournalConfig  `mapstructure:"journal"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
	Log         LogConfig      `mapstructure:"log"`
	Proxy       string         `mapstructure:"proxy"` // outbound HTTP proxy for quotes and Telegram
	Credentials Credentials    `mapstructure:"-"`     // Loaded separately
}

// PollConfig holds the polling-loop configuration.
type PollConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	HistoryCapacity int           `mapstructure:"history_capacity"`
	SparklineWidth  int           `mapstructure:"sparkline_width"`
	TrendThreshold  float64       `mapstructure:"trend_threshold"` // percent
	OrderListCount  int           `mapstructure:"order_list_count"`
}

// BrokerConfig holds brokerage API configuration.
type BrokerConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	Sandbox     bool   `mapstructure:"sandbox"`
	SessionPath string `mapstructure:"session_path"`
}

// TelegramConfig holds Telegram transport configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
}

// JournalConfig holds the event-journal configuration.
type JournalConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

// MetricsConfig holds the metrics endpoint configuration.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// Credentials holds broker API credentials.
type Credentials struct {
	ETrade ETradeCredentials `mapstructure:"etrade"`
}

// ETradeCredentials holds E*TRADE API credentials.
type ETradeCredentials struct {
	ConsumerKey    string `mapstructure:"consumer_key"`
	ConsumerSecret string `mapstructure:"consumer_secret"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/etrade-trader"
	}
	return filepath.Join(home, ".config", "etrade-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.yaml: %w", err)
		}
		// Missing config file is fine; defaults and env apply.
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.yaml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("poll.interval", 60*time.Second)
	v.SetDefault("poll.history_capacity", 30)
	v.SetDefault("poll.sparkline_width", 10)
	v.SetDefault("poll.trend_threshold", 0.5)
	v.SetDefault("poll.order_list_count", 25)
	v.SetDefault("broker.base_url", "https://api.etrade.com")
	v.SetDefault("broker.sandbox", false)
	v.SetDefault("broker.session_path", filepath.Join(configDir, "session.json"))
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("journal.sqlite_path", filepath.Join(configDir, "journal.db"))
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9109")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", true)
	v.SetDefault("log.file_path", filepath.Join(configDir, "logs", "trader.log"))
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ETRADE_CONSUMER_KEY"); v != "" {
		cfg.Credentials.ETrade.ConsumerKey = v
	}
	if v := os.Getenv("ETRADE_CONSUMER_SECRET"); v != "" {
		cfg.Credentials.ETrade.ConsumerSecret = v
	}
	if v := os.Getenv("ETRADE_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
		cfg.Telegram.Enabled = true
	}
	if v := os.Getenv("TRADER_PROXY"); v != "" {
		cfg.Proxy = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Poll.Interval < time.Second {
		return fmt.Errorf("poll interval must be at least 1s, got %s", c.Poll.Interval)
	}
	if c.Poll.HistoryCapacity < 2 {
		return fmt.Errorf("history_capacity must be at least 2, got %d", c.Poll.HistoryCapacity)
	}
	if c.Poll.SparklineWidth < 1 {
		return fmt.Errorf("sparkline_width must be positive, got %d", c.Poll.SparklineWidth)
	}
	if c.Poll.TrendThreshold <= 0 {
		return fmt.Errorf("trend_threshold must be positive, got %f", c.Poll.TrendThreshold)
	}
	if c.Broker.BaseURL == "" {
		return fmt.Errorf("broker base_url is required")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram enabled but bot_token is empty")
	}
	return nil
}
