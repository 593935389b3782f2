package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/config"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/extension"
)

func newExtensionsCmd(cli *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:     "extensions",
		Aliases: []string{"exts"},
		Short:   "List the extensions the bot would load",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadUnvalidated(cli.configPath)
			if err != nil {
				return err
			}

			sources := []extension.Source{extension.Default}
			if cfg.Extensions.PluginDir != "" {
				sources = append(sources, extension.PluginDir{Dir: cfg.Extensions.PluginDir})
			}

			// Discover returns a usable result alongside import failures
			res, discoverErr := extension.Discover(cfg.Extensions.Namespace, sources...)
			out := cmd.OutOrStdout()
			for _, id := range res.IDs() {
				fmt.Fprintln(out, id)
			}
			for _, name := range res.NoEntryPoint {
				fmt.Fprintln(out, name+" "+mutedStyle.Render("(no entry point)"))
			}
			return discoverErr
		},
	}
}
