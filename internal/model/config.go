package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "BROKER"

// APIConfig holds the connection settings for the brokerage REST API.
type APIConfig struct {
	// BaseURL is the root URL of the REST API.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Timeout bounds every single fetch.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// PollConfig controls the background notification poll cycle.
type PollConfig struct {
	// Interval is the time between two poll ticks.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// BacklogWindow limits which items are enqueued on the first tick.
	BacklogWindow time.Duration `mapstructure:"backlog_window" yaml:"backlog_window"`

	// MaxConcurrency caps the number of simultaneous per-subject fetches.
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency"`
}

// ThreadConfig controls an open thread panel.
type ThreadConfig struct {
	PageSize        int           `mapstructure:"page_size" yaml:"page_size"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`

	// ReconcileDelay is how long after a successful send the thread is
	// refetched to replace the optimistic entry.
	ReconcileDelay time.Duration `mapstructure:"reconcile_delay" yaml:"reconcile_delay"`
}

// FeedConfig bounds the in-memory notification state. A LedgerCapacity of
// zero keeps every processed id; a positive value must exceed the number of
// messages one poll can observe across all threads.
type FeedConfig struct {
	Capacity       int `mapstructure:"capacity" yaml:"capacity"`
	LedgerCapacity int `mapstructure:"ledger_capacity" yaml:"ledger_capacity"`
}

// DisplayConfig holds UI preferences.
type DisplayConfig struct {
	ToastDuration time.Duration `mapstructure:"toast_duration" yaml:"toast_duration"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API         APIConfig     `mapstructure:"api" yaml:"api"`
	User        User          `mapstructure:"user" yaml:"user"`
	Poll        PollConfig    `mapstructure:"poll" yaml:"poll"`
	Chat        ThreadConfig  `mapstructure:"chat" yaml:"chat"`
	Negotiation ThreadConfig  `mapstructure:"negotiation" yaml:"negotiation"`
	Feed        FeedConfig    `mapstructure:"feed" yaml:"feed"`
	Display     DisplayConfig `mapstructure:"display" yaml:"display"`
	Log         LogConfig     `mapstructure:"log" yaml:"log"`
}

// ConfigDir returns the directory holding the config file and log file,
// ~/.config/brokerconsole.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "brokerconsole")
}

// DefaultConfigPath returns the default path for the configuration file.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// applyDefaults sets defaults and env bindings so missing keys resolve to
// sensible values.
func applyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.base_url", "")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("user.id", "")
	v.SetDefault("user.name", "")
	v.SetDefault("user.role", "")
	v.SetDefault("poll.interval", 30*time.Second)
	v.SetDefault("poll.backlog_window", 24*time.Hour)
	v.SetDefault("poll.max_concurrency", 8)
	v.SetDefault("chat.page_size", 50)
	v.SetDefault("chat.refresh_interval", 5*time.Second)
	v.SetDefault("chat.reconcile_delay", time.Second)
	v.SetDefault("negotiation.page_size", 50)
	v.SetDefault("negotiation.refresh_interval", 2*time.Second)
	v.SetDefault("negotiation.reconcile_delay", time.Second)
	v.SetDefault("feed.capacity", 200)
	v.SetDefault("feed.ledger_capacity", 0)
	v.SetDefault("display.toast_duration", 5*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join(ConfigDir(), "console.log"))
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file is not an error; defaults and BROKER_* environment
// variables still apply.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	applyDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports the first setting that prevents the engine from running.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if strings.TrimSpace(c.User.ID) == "" {
		return fmt.Errorf("user.id is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	if c.Chat.RefreshInterval <= 0 || c.Negotiation.RefreshInterval <= 0 {
		return fmt.Errorf("refresh intervals must be positive")
	}
	if c.Chat.PageSize <= 0 {
		return fmt.Errorf("chat.page_size must be positive")
	}
	if c.Feed.LedgerCapacity < 0 {
		return fmt.Errorf("feed.ledger_capacity must be zero or positive")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api.base_url", cfg.API.BaseURL)
	v.Set("api.timeout", cfg.API.Timeout.String())
	v.Set("user", cfg.User)
	v.Set("poll.interval", cfg.Poll.Interval.String())
	v.Set("poll.backlog_window", cfg.Poll.BacklogWindow.String())
	v.Set("poll.max_concurrency", cfg.Poll.MaxConcurrency)
	v.Set("chat.page_size", cfg.Chat.PageSize)
	v.Set("chat.refresh_interval", cfg.Chat.RefreshInterval.String())
	v.Set("chat.reconcile_delay", cfg.Chat.ReconcileDelay.String())
	v.Set("negotiation.refresh_interval", cfg.Negotiation.RefreshInterval.String())
	v.Set("feed.capacity", cfg.Feed.Capacity)
	v.Set("feed.ledger_capacity", cfg.Feed.LedgerCapacity)
	v.Set("display.toast_duration", cfg.Display.ToastDuration.String())
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.file", cfg.Log.File)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
