package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load loads configuration from a file path, applies environment overrides
// and validates the result. An empty path searches ConfigPaths; finding no
// file is not an error since the environment alone can configure the bot.
func Load(path string) (*Config, error) {
	cfg, err := LoadUnvalidated(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadUnvalidated is Load without the final Validate
func LoadUnvalidated(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		for _, p := range ConfigPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path == "" {
		log.Printf("No configuration file found, using defaults and environment")
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return cfg, nil
}

// LoadOrDie loads configuration or exits on error
func LoadOrDie(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) error {
	// Bot overrides
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("COMMAND_PREFIX"); v != "" {
		cfg.Bot.Prefix = v
	}
	if v, ok := os.LookupEnv("CHANNEL_NAME"); ok {
		cfg.Bot.ChannelName = v
	}
	if v := os.Getenv("BOT_OWNERS"); v != "" {
		cfg.Bot.Owners = splitList(v)
	}
	if v := os.Getenv("BOT_ACTIVITY"); v != "" {
		cfg.Bot.Activity = v
	}

	// Gateway overrides
	if v := os.Getenv("BOT_SHARD_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BOT_SHARD_COUNT: %w", err)
		}
		cfg.Gateway.ShardCount = n
	}

	if v := os.Getenv("BOT_PLUGIN_DIR"); v != "" {
		cfg.Extensions.PluginDir = v
	}
	if v := os.Getenv("AIML_DIR"); v != "" {
		cfg.AIML.ScriptsDir = v
	}

	// Supervisor overrides
	if v := os.Getenv("BOT_FAILURE_DB"); v != "" {
		cfg.Supervisor.StorePath = v
	}
	if v := os.Getenv("BOT_ALERT_CHANNEL"); v != "" {
		cfg.Supervisor.AlertChannelID = v
	}

	// Metrics overrides
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}

	// Logging overrides
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("LOG_OUTPUT"); v != "" {
		cfg.Logging.Output = v
	}

	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Save saves the configuration to a file
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Normalize paths for TOML compatibility (forward slashes, no backslashes)
	cfgCopy := *cfg
	cfgCopy.AIML.ScriptsDir = filepath.ToSlash(cfg.AIML.ScriptsDir)
	cfgCopy.Supervisor.StorePath = filepath.ToSlash(cfg.Supervisor.StorePath)
	if cfgCopy.Extensions.PluginDir != "" {
		cfgCopy.Extensions.PluginDir = filepath.ToSlash(cfgCopy.Extensions.PluginDir)
	}

	data, err := toml.Marshal(&cfgCopy)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	// The file may hold the token
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateExampleConfig generates an example configuration file
func GenerateExampleConfig(path string) error {
	cfg := DefaultConfig()

	cfg.Bot.Token = "replace-me-or-set-BOT_TOKEN"
	cfg.Bot.ChannelName = "chatbot"
	cfg.Bot.Owners = []string{"123456789012345678"}
	cfg.Bot.Creator = "Your Name"
	cfg.Logging.Level = "info"

	return Save(cfg, path)
}
