package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/bot"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/config"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
)

// runBot serves until a signal arrives or the bot shuts down. A restart
// request reloads the configuration and starts a fresh bot on the same
// logger; logging settings take effect on the next process start.
func runBot(ctx context.Context, cli *cliConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()
	logger.SetGlobal(log)

	for generation := 1; ; generation++ {
		if generation > 1 {
			if cfg, err = loadConfig(cli); err != nil {
				log.ErrorEvent(context.Background(), "reloading config failed", err)
				return err
			}
		}
		restart, err := runOnce(ctx, cfg, log, generation)
		if err != nil {
			return err
		}
		if !restart || ctx.Err() != nil {
			return nil
		}
	}
}

func loadConfig(cli *cliConfig) (*config.Config, error) {
	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return nil, err
	}
	if cli.logLevel != "" {
		cfg.Logging.Level = cli.logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		Component: "bot",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

func runOnce(ctx context.Context, cfg *config.Config, log *logger.Logger, generation int) (restart bool, err error) {
	b, err := bot.New(bot.Options{Config: cfg, Logger: log})
	if err != nil {
		return false, fmt.Errorf("failed to create bot: %w", err)
	}

	log.Info("starting bot",
		"version", version,
		"generation", generation,
		"prefix", cfg.Bot.Prefix,
		"channel", cfg.Bot.ChannelName,
	)

	if err := b.Run(ctx); err != nil {
		log.ErrorEvent(context.Background(), "bot stopped", err)
		return false, err
	}

	if b.RestartRequested() {
		log.Info("restarting bot")
		return true, nil
	}
	log.Info("bot stopped")
	return false, nil
}
