package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
)

type cliConfig struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	cli := &cliConfig{}

	root := &cobra.Command{
		Use:           "chatbot",
		Short:         "AIML chatter bot for Discord",
		Version:       fmt.Sprintf("%s (built %s)", version, buildTime),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), cli)
		},
		PersistentPreRun: func(*cobra.Command, []string) {
			logger.Version = version
		},
	}

	root.PersistentFlags().StringVarP(&cli.configPath, "config", "c", "", "path to the TOML configuration file")
	root.Flags().StringVar(&cli.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newRunCmd(cli),
		newConfigCmd(cli),
		newExtensionsCmd(cli),
	)
	return root
}

func newRunCmd(cli *cliConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the gateway and serve until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), cli)
		},
	}
	cmd.Flags().StringVar(&cli.logLevel, "log-level", "", "override the configured log level")
	return cmd
}
