// Package help lists the visible commands in a paginated menu
package help

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/command"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/eventbus"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/extension"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/gateway"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/menu"
)

// ID is the extension identifier
const ID = "cogs.help"

// PerPage is the number of commands on one help page
const PerPage = 8

func init() {
	extension.RegisterSetup(ID, Setup)
}

// Host is the part of the runtime the extension uses. *bot.Bot satisfies it.
type Host interface {
	Router() *command.Router
	REST() *gateway.Client
	Bus() *eventbus.Bus
}

// Cog renders help
type Cog struct {
	router    *command.Router
	client    menu.Client
	reactions menu.Reactions

	// Timeout ends idle help menus
	Timeout time.Duration
}

// Setup registers the help command
func Setup(s *extension.Scope) error {
	host, ok := s.Host().(Host)
	if !ok {
		return errors.Newf(errors.KindExtensionFailed, "%s needs the bot runtime as host", ID)
	}
	return s.AddCommand(New(host.Router(), host.REST(), host.Bus()).Command())
}

// New creates the cog
func New(router *command.Router, client menu.Client, reactions menu.Reactions) *Cog {
	return &Cog{router: router, client: client, reactions: reactions, Timeout: menu.DefaultTimeout}
}

// Command builds the help command
func (cog *Cog) Command() *command.Command {
	return &command.Command{
		Name:    "help",
		Aliases: []string{"commands"},
		Help:    "Show the available commands, or details about one command.",
		Params:  []command.Param{{Name: "command", Optional: true, Rest: true}},
		Handler: cog.help,
	}
}

func (cog *Cog) help(ctx context.Context, c *command.Context) error {
	if path := strings.TrimSpace(c.Arg("command")); path != "" {
		cmd := cog.router.Get(path)
		if cmd == nil || isHidden(cmd) {
			return errors.NewBuilder(errors.KindBadArgument).
				WithMessagef("No command called \"%s\" found.", path).
				Build()
		}
		_, err := c.SendEmbed(ctx, Detail(c.Prefix, cmd))
		return err
	}

	p := menu.NewPaginator(cog.client, cog.reactions, Pages(c.Prefix, cog.router.Commands()))
	p.Timeout = cog.Timeout
	return p.Run(ctx, c.Message.ChannelID, c.Message.Author.ID)
}

func isHidden(cmd *command.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Hidden {
			return true
		}
	}
	return false
}

func usage(prefix string, cmd *command.Command) string {
	line := prefix + cmd.QualifiedName()
	if sig := cmd.Signature(); sig != "" {
		line += " " + sig
	}
	return line
}

// Pages renders one line per visible top-level command
func Pages(prefix string, cmds []*command.Command) []gateway.Embed {
	var lines []string
	for _, cmd := range cmds {
		if cmd.Hidden {
			continue
		}
		line := fmt.Sprintf("`%s`", usage(prefix, cmd))
		if short := cmd.Short(); short != "" {
			line += "\n" + short
		}
		lines = append(lines, line)
	}
	return menu.Chunk("Help", lines, PerPage)
}

// Detail renders the help of one command
func Detail(prefix string, cmd *command.Command) gateway.Embed {
	embed := gateway.Embed{
		Title:       fmt.Sprintf("`%s`", usage(prefix, cmd)),
		Description: cmd.Help,
		Color:       gateway.ColorBlue,
	}
	if embed.Description == "" {
		embed.Description = "No help available."
	}
	if len(cmd.Aliases) > 0 {
		embed.Fields = append(embed.Fields, gateway.EmbedField{
			Name:  "Aliases",
			Value: "`" + strings.Join(cmd.Aliases, "`, `") + "`",
		})
	}
	if subs := cmd.VisibleSubcommands(); len(subs) > 0 {
		names := make([]string, len(subs))
		for i, sub := range subs {
			names[i] = fmt.Sprintf("`%s`", usage(prefix, sub))
		}
		embed.Fields = append(embed.Fields, gateway.EmbedField{
			Name:  "Subcommands",
			Value: strings.Join(names, "\n"),
		})
	}
	return embed
}
