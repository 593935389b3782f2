package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/config"
)

func TestSetupAnswersApply(t *testing.T) {
	cfg := config.DefaultConfig()
	setupAnswers{
		Token:   " abc ",
		Prefix:  "",
		Channel: "#chatbot",
		Owners:  "1, 2,,3 ",
		Creator: "Ada",
	}.apply(cfg)

	assert.Equal(t, "abc", cfg.Bot.Token)
	assert.Equal(t, "!", cfg.Bot.Prefix, "an empty prefix keeps the default")
	assert.Equal(t, "chatbot", cfg.Bot.ChannelName)
	assert.Equal(t, []string{"1", "2", "3"}, cfg.Bot.Owners)
	assert.Equal(t, "Ada", cfg.Bot.Creator)
}

func TestInteractiveInitNeedsTerminal(t *testing.T) {
	if isTerminal() {
		t.Skip("running attached to a terminal")
	}
	path := filepath.Join(t.TempDir(), "config.toml")

	_, err := execute(t, "config", "init", "--interactive", "--output", path)
	require.ErrorIs(t, err, errNotTerminal)
	assert.NoFileExists(t, path)
}
