// Chatter bot - main entry point
//
// The bot answers chat messages with the AIML engine and hosts the bundled
// extensions (administration, chat, help).
package main

import (
	"os"

	_ "github.com/janaSunrise/AIML-discord-chatter-bot/internal/cogs/chat"
	_ "github.com/janaSunrise/AIML-discord-chatter-bot/internal/cogs/core"
	_ "github.com/janaSunrise/AIML-discord-chatter-bot/internal/cogs/help"
)

var (
	version   = "0.0.1"
	buildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
