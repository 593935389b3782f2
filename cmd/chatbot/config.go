package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/config"
)

func newConfigCmd(cli *cliConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the configuration file",
	}

	var output string
	var force, interactive bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", output)
				}
			}
			generate := config.GenerateExampleConfig
			if interactive {
				generate = runSetupWizard
			}
			if err := generate(output); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("Configuration written to "+output))
			if !interactive {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Set BOT_TOKEN or edit the token before running the bot."))
			}
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "config.toml", "where to write the file")
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	initCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "ask for the settings instead of writing an example")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cli.configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Configuration is valid"))
			fmt.Fprintln(out, field("prefix", cfg.Bot.Prefix))
			fmt.Fprintln(out, field("channel", channelLabel(cfg.Bot.ChannelName)))
			fmt.Fprintln(out, field("aiml", cfg.AIML.ScriptsDir))
			fmt.Fprintln(out, field("owners", strconv.Itoa(len(cfg.Bot.Owners))))
			fmt.Fprintln(out, field("failure log", storeLabel(cfg.Supervisor)))
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}

func channelLabel(name string) string {
	if name == "" {
		return "(direct messages only)"
	}
	return "#" + name
}

func storeLabel(s config.SupervisorConfig) string {
	if !s.StoreEnabled {
		return "disabled"
	}
	return s.StorePath
}
