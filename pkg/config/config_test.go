package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.Bot.Token = "token"
	cfg.Supervisor.StorePath = filepath.Join(t.TempDir(), "data", "failures.db")
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "!", cfg.Bot.Prefix)
	assert.Equal(t, "cogs", cfg.Extensions.Namespace)
	assert.Equal(t, 0.7, cfg.AIML.PositiveConfidence)
	assert.Equal(t, 0.3, cfg.AIML.NullConfidence)
	assert.Equal(t, "I don't know what to answer you", cfg.AIML.NullResponse)
	assert.Equal(t, 150*time.Second, cfg.HeartbeatTimeout())
	assert.Empty(t, cfg.Bot.Owners)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig(t).Validate())

	missing := validConfig(t)
	missing.Bot.Token = "  "
	assert.ErrorIs(t, missing.Validate(), ErrMissingToken)
	assert.ErrorIs(t, missing.Validate(), ErrMissingValue)

	cases := map[string]func(*Config){
		"prefix":     func(c *Config) { c.Bot.Prefix = "" },
		"heartbeat":  func(c *Config) { c.Gateway.HeartbeatTimeout = "soon" },
		"shards":     func(c *Config) { c.Gateway.ShardCount = -1 },
		"confidence": func(c *Config) { c.AIML.NullConfidence = 1.5 },
		"window":     func(c *Config) { c.Supervisor.RateLimitWindow = "-5m" },
		"schedule":   func(c *Config) { c.Supervisor.CleanupSchedule = "whenever" },
		"metrics": func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = ""
		},
		"level":      func(c *Config) { c.Logging.Level = "invalid" },
		"format":     func(c *Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig(t)
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoadAppliesEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[bot]
prefix = "?"
channel_name = "from-file"
creator = "Jana"

[supervisor]
store_enabled = false
`), 0o600))

	t.Setenv("BOT_TOKEN", "secret")
	t.Setenv("CHANNEL_NAME", "chatbot")
	t.Setenv("BOT_OWNERS", "1, 2,,3")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Bot.Token)
	assert.Equal(t, "?", cfg.Bot.Prefix)
	assert.Equal(t, "chatbot", cfg.Bot.ChannelName)
	assert.Equal(t, []string{"1", "2", "3"}, cfg.Bot.Owners)
	assert.Equal(t, "Jana", cfg.Bot.Creator)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.IsOwner("2"))
	assert.False(t, cfg.IsOwner("4"))
	assert.Equal(t, "Talk with me in #chatbot :)", cfg.DefaultActivity())
}

func TestLoadWithoutTokenFails(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[supervisor]\nstore_enabled = false\n"), 0o600))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestLoadRejectsBadShardCount(t *testing.T) {
	t.Setenv("BOT_SHARD_COUNT", "many")
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := LoadUnvalidated(path)
	assert.ErrorContains(t, err, "BOT_SHARD_COUNT")
}

func TestGenerateExampleConfigRoundTrips(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "nested", "config.toml")

	require.NoError(t, GenerateExampleConfig(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "chatbot", cfg.Bot.ChannelName)
	assert.Equal(t, "Your Name", cfg.Bot.Creator)
}
