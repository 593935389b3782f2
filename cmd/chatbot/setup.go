package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/config"
)

var errNotTerminal = errors.New("interactive setup needs a terminal (run without --interactive)")

// setupAnswers are the values asked for by the setup wizard
type setupAnswers struct {
	Token   string
	Prefix  string
	Channel string
	Owners  string
	Creator string
}

// apply copies the answers onto cfg
func (a setupAnswers) apply(cfg *config.Config) {
	cfg.Bot.Token = strings.TrimSpace(a.Token)
	if p := strings.TrimSpace(a.Prefix); p != "" {
		cfg.Bot.Prefix = p
	}
	cfg.Bot.ChannelName = strings.TrimPrefix(strings.TrimSpace(a.Channel), "#")
	cfg.Bot.Owners = cfg.Bot.Owners[:0]
	for _, id := range strings.Split(a.Owners, ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.Bot.Owners = append(cfg.Bot.Owners, id)
		}
	}
	cfg.Bot.Creator = strings.TrimSpace(a.Creator)
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// runSetupWizard asks for the essential settings and writes them to path
func runSetupWizard(path string) error {
	if !isTerminal() {
		return errNotTerminal
	}

	answers := setupAnswers{Prefix: config.DefaultConfig().Bot.Prefix}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bot token").
				Description("Leave empty to provide BOT_TOKEN from the environment").
				EchoMode(huh.EchoModePassword).
				Value(&answers.Token),
			huh.NewInput().
				Title("Command prefix").
				Value(&answers.Prefix).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("prefix cannot be empty")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Chat channel name").
				Description("Empty answers direct messages only").
				Value(&answers.Channel),
			huh.NewInput().
				Title("Owner user ids").
				Description("Comma separated").
				Value(&answers.Owners),
			huh.NewInput().
				Title("Creator").
				Value(&answers.Creator),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}

	cfg := config.DefaultConfig()
	answers.apply(cfg)
	return config.Save(cfg, path)
}
