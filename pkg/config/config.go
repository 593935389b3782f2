// Package config provides configuration management for the chatter bot.
// Supports TOML configuration files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Helper function to validate directory exists or can be created
func validateDirectoryWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("cannot create directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}

	testFile := filepath.Join(dir, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("cannot write to directory: %w", err)
	}
	f.Close()
	os.Remove(testFile)

	return nil
}

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingValue  = errors.New("missing required configuration value")
	// ErrMissingToken is fatal: the bot cannot start without a credential
	ErrMissingToken = fmt.Errorf("%w: bot token (set BOT_TOKEN)", ErrMissingValue)
)

// Config holds all bot configuration
type Config struct {
	Bot        BotConfig        `toml:"bot"`
	Gateway    GatewayConfig    `toml:"gateway"`
	Extensions ExtensionsConfig `toml:"extensions"`
	AIML       AIMLConfig       `toml:"aiml"`
	Supervisor SupervisorConfig `toml:"supervisor"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Logging    LoggingConfig    `toml:"logging"`
}

// BotConfig holds identity and access configuration
type BotConfig struct {
	// Token is the bot credential. Prefer the environment over the file.
	Token string `toml:"token" env:"BOT_TOKEN"`

	// Prefix is the default command prefix
	Prefix string `toml:"prefix" env:"COMMAND_PREFIX"`

	// ChannelName restricts chat replies to one channel name. Empty means
	// direct messages only.
	ChannelName string `toml:"channel_name" env:"CHANNEL_NAME"`

	// Owners are user ids allowed to run administrative commands in
	// addition to the application owner
	Owners []string `toml:"owners" env:"BOT_OWNERS"`

	Branding string `toml:"branding"`
	Creator  string `toml:"creator"`
	Version  string `toml:"version"`

	// Activity is the initial "playing" text. Empty derives it from
	// ChannelName.
	Activity string `toml:"activity" env:"BOT_ACTIVITY"`
}

// GatewayConfig holds connection configuration
type GatewayConfig struct {
	// APIBaseURL overrides the REST root, mostly for tests
	APIBaseURL string `toml:"api_base_url"`

	// ShardCount of zero uses the recommended count
	ShardCount int `toml:"shard_count" env:"BOT_SHARD_COUNT"`

	// HeartbeatTimeout is a duration string
	HeartbeatTimeout string `toml:"heartbeat_timeout"`

	// MaxConcurrentEvents bounds in-flight event handlers
	MaxConcurrentEvents int `toml:"max_concurrent_events"`
}

// ExtensionsConfig holds extension discovery configuration
type ExtensionsConfig struct {
	Namespace string `toml:"namespace"`

	// PluginDir holds compiled extensions (*.so); empty disables them
	PluginDir string `toml:"plugin_dir" env:"BOT_PLUGIN_DIR"`
}

// AIMLConfig holds conversational engine configuration
type AIMLConfig struct {
	ScriptsDir         string  `toml:"scripts_dir" env:"AIML_DIR"`
	MaxRecursion       int     `toml:"max_recursion"`
	PositiveConfidence float64 `toml:"positive_confidence"`
	NullConfidence     float64 `toml:"null_confidence"`
	NullResponse       string  `toml:"null_response"`
}

// SupervisorConfig holds unhandled failure reporting configuration
type SupervisorConfig struct {
	StoreEnabled    bool   `toml:"store_enabled"`
	StorePath       string `toml:"store_path" env:"BOT_FAILURE_DB"`
	RetentionDays   int    `toml:"retention_days"`
	RateLimitWindow string `toml:"rate_limit_window"`
	CleanupSchedule string `toml:"cleanup_schedule"`

	// AlertChannelID receives alerts; empty falls back to owner DMs
	AlertChannelID string `toml:"alert_channel_id" env:"BOT_ALERT_CHANNEL"`
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" env:"METRICS_ENABLED"`
	Addr    string `toml:"addr" env:"METRICS_ADDR"`
}

// LoggingConfig holds logging-specific configuration
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `toml:"level" env:"LOG_LEVEL"`

	// Format is the log format (json, text)
	Format string `toml:"format" env:"LOG_FORMAT"`

	// Output is stdout, stderr or a file path
	Output string `toml:"output" env:"LOG_OUTPUT"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			Prefix:  "!",
			Owners:  []string{},
			Version: "0.0.1",
		},
		Gateway: GatewayConfig{
			HeartbeatTimeout:    "150s",
			MaxConcurrentEvents: 64,
		},
		Extensions: ExtensionsConfig{
			Namespace: "cogs",
		},
		AIML: AIMLConfig{
			ScriptsDir:         "aiml",
			MaxRecursion:       32,
			PositiveConfidence: 0.7,
			NullConfidence:     0.3,
			NullResponse:       "I don't know what to answer you",
		},
		Supervisor: SupervisorConfig{
			StoreEnabled:    true,
			StorePath:       "data/failures.db",
			RetentionDays:   30,
			RateLimitWindow: "5m",
			CleanupSchedule: "@every 1h",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// ConfigPaths returns the list of default configuration file paths to check
func ConfigPaths() []string {
	homeDir, _ := os.UserHomeDir()
	return []string{
		"./config.toml",
		filepath.Join(homeDir, ".config", "chatbot", "config.toml"),
		filepath.Join("/etc", "chatbot", "config.toml"),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bot.Token) == "" {
		return ErrMissingToken
	}
	if strings.TrimSpace(c.Bot.Prefix) == "" {
		return fmt.Errorf("%w: bot.prefix is required", ErrInvalidConfig)
	}

	if _, err := parseDuration(c.Gateway.HeartbeatTimeout); err != nil {
		return fmt.Errorf("%w: gateway.heartbeat_timeout: %w", ErrInvalidConfig, err)
	}
	if c.Gateway.ShardCount < 0 {
		return fmt.Errorf("%w: gateway.shard_count must not be negative", ErrInvalidConfig)
	}

	if c.Extensions.Namespace == "" {
		return fmt.Errorf("%w: extensions.namespace is required", ErrInvalidConfig)
	}

	if c.AIML.ScriptsDir == "" {
		return fmt.Errorf("%w: aiml.scripts_dir is required", ErrInvalidConfig)
	}
	for name, v := range map[string]float64{
		"aiml.positive_confidence": c.AIML.PositiveConfidence,
		"aiml.null_confidence":     c.AIML.NullConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s must be between 0 and 1", ErrInvalidConfig, name)
		}
	}

	if c.Supervisor.StoreEnabled {
		if c.Supervisor.StorePath == "" {
			return fmt.Errorf("%w: supervisor.store_path is required when the store is enabled", ErrInvalidConfig)
		}
		storeDir := filepath.Dir(c.Supervisor.StorePath)
		if err := validateDirectoryWritable(storeDir); err != nil {
			return fmt.Errorf("%w: store directory %s: %w", ErrInvalidConfig, storeDir, err)
		}
	}
	if _, err := parseDuration(c.Supervisor.RateLimitWindow); err != nil {
		return fmt.Errorf("%w: supervisor.rate_limit_window: %w", ErrInvalidConfig, err)
	}
	if c.Supervisor.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.Supervisor.CleanupSchedule); err != nil {
			return fmt.Errorf("%w: supervisor.cleanup_schedule: %w", ErrInvalidConfig, err)
		}
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("%w: metrics.addr is required when metrics are enabled", ErrInvalidConfig)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level must be one of debug, info, warn, error", ErrInvalidConfig)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: logging.format must be json or text", ErrInvalidConfig)
	}

	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// HeartbeatTimeout returns the parsed gateway heartbeat timeout
func (c *Config) HeartbeatTimeout() time.Duration {
	d, _ := parseDuration(c.Gateway.HeartbeatTimeout)
	return d
}

// DefaultActivity is the presence text shown after startup
func (c *Config) DefaultActivity() string {
	if c.Bot.Activity != "" {
		return c.Bot.Activity
	}
	if c.Bot.ChannelName != "" {
		return fmt.Sprintf("Talk with me in #%s :)", c.Bot.ChannelName)
	}
	return "Talk with me in DMs :)"
}

// IsOwner reports whether userID is listed in bot.owners
func (c *Config) IsOwner(userID string) bool {
	for _, id := range c.Bot.Owners {
		if id == userID {
			return true
		}
	}
	return false
}

// BotName returns the branding, falling back to name
func (c *Config) BotName(name string) string {
	if c.Bot.Branding != "" {
		return c.Bot.Branding
	}
	return name
}
