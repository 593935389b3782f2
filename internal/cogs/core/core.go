// Package core is the administrative extension. Every command lives under
// the hidden, owner-only "sudo" group.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/bot"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/command"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/extension"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/gateway"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/present"
)

// ID is the extension identifier
const ID = "cogs.core"

// DefaultFailureLimit is the number of failures "sudo errors" lists
const DefaultFailureLimit = 10

func init() {
	extension.RegisterSetup(ID, Setup)
}

// Host is the part of the runtime the extension uses. *bot.Bot satisfies it.
type Host interface {
	Logger() *logger.Logger
	Audit() *logger.AuditLogger
	Registry() *extension.Registry
	Supervisor() *errors.Supervisor
	Sockets() *bot.SocketStats
	Shards() []gateway.ShardInfo
	Snapshot(c *command.Context) present.Snapshot
	UpdatePresence(kind gateway.ActivityType, text string) error
	ReportOutcome(ctx context.Context, c *command.Context, err error, success string) error
	Close()
	Restart()
}

// Cog holds the administrative commands
type Cog struct {
	host Host
	log  *logger.Logger
	now  func() time.Time

	evalMu   sync.Mutex
	lastEval any
}

// Setup registers the sudo group
func Setup(s *extension.Scope) error {
	host, ok := s.Host().(Host)
	if !ok {
		return errors.Newf(errors.KindExtensionFailed, "%s needs the bot runtime as host", ID)
	}
	return s.AddCommand(New(host).Commands())
}

// New creates the cog
func New(host Host) *Cog {
	return &Cog{host: host, log: host.Logger().WithExtension(ID), now: time.Now}
}

// Commands builds the sudo group
func (cog *Cog) Commands() *command.Command {
	extensionParam := []command.Param{{Name: "extension", Optional: true}}

	return &command.Command{
		Name:      "sudo",
		Help:      "Administrative information.",
		Hidden:    true,
		OwnerOnly: true,
		Subcommands: []*command.Command{
			{Name: "load", Help: "Load an extension, or every extension.", Params: extensionParam, Handler: cog.manage(opLoad)},
			{Name: "unload", Help: "Unload an extension, or every extension.", Params: extensionParam, Handler: cog.manage(opUnload)},
			{Name: "reload", Help: "Unload and then load an extension, or every extension.", Params: extensionParam, Handler: cog.manage(opReload)},
			{Name: "extensions", Aliases: []string{"exts"}, Help: "List discovered extensions.", Handler: cog.extensions},
			{Name: "status", Help: "Show a short status report.", Handler: cog.status},
			{Name: "stats", Help: "Show full bot stats.", Handler: cog.stats},
			{Name: "socketstats", Help: "Get the bot's socket stats.", Handler: cog.socketStats},
			{Name: "shards", Help: "Get the shard info about the bot.", Handler: cog.shards},
			{
				Name:    "presence",
				Aliases: []string{"botstatus"},
				Help:    "Change the presence of the bot.\n`presence playing|watching|listening <text>`",
				Params:  []command.Param{{Name: "activity"}, {Name: "text", Rest: true}},
				Handler: cog.presence,
			},
			{
				Name:    "errors",
				Help:    "List unresolved unhandled failures.",
				Params:  []command.Param{{Name: "limit", Type: command.ParamInt, Optional: true}},
				Handler: cog.failures,
			},
			{
				Name:    "resolve",
				Help:    "Mark an unhandled failure as resolved.",
				Params:  []command.Param{{Name: "trace_id"}},
				Handler: cog.resolve,
			},
			{Name: "shutdown", Help: "Turn the bot off.", Handler: cog.shutdown},
			{Name: "restart", Help: "Restart the bot.", Handler: cog.restart},
			{
				Name:    "eval",
				Help:    "Evaluate Go code.",
				Params:  []command.Param{{Name: "code", Rest: true}},
				Handler: cog.eval,
			},
		},
	}
}

type operation string

const (
	opLoad   operation = "load"
	opUnload operation = "unload"
	opReload operation = "reload"
)

var (
	opAudit = map[operation]logger.AuditEventType{
		opLoad:   logger.ExtensionLoad,
		opUnload: logger.ExtensionUnload,
		opReload: logger.ExtensionReload,
	}
	opPast = map[operation]string{
		opLoad:   "Loaded",
		opUnload: "Unloaded",
		opReload: "Reloaded",
	}
)

// manage runs op on the named extension, or on every discovered extension
// when no name is given. Each outcome is reported on its own.
func (cog *Cog) manage(op operation) command.Handler {
	return func(ctx context.Context, c *command.Context) error {
		registry := cog.host.Registry()

		var ids []string
		if name := c.Arg("extension"); name != "" {
			ids = []string{registry.Resolve(name)}
		} else {
			ids = registry.IDs()
		}
		if len(ids) == 0 {
			_, err := c.SendEmbed(ctx, present.Info("Extensions", "No extensions discovered."))
			return err
		}

		for _, id := range ids {
			var err error
			switch op {
			case opLoad:
				err = registry.Load(ctx, id)
			case opUnload:
				err = registry.Unload(ctx, id)
			case opReload:
				err = registry.Reload(ctx, id)
			}

			cog.host.Audit().LogExtension(ctx, opAudit[op], c.Message.Author.ID, id, err)
			if sendErr := cog.host.ReportOutcome(ctx, c, err, fmt.Sprintf("%s `%s`", opPast[op], id)); sendErr != nil {
				return sendErr
			}
		}
		return nil
	}
}

func (cog *Cog) extensions(ctx context.Context, c *command.Context) error {
	_, err := c.SendEmbed(ctx, present.Extensions(cog.host.Registry().Records()))
	return err
}

func (cog *Cog) status(ctx context.Context, c *command.Context) error {
	_, err := c.SendEmbed(ctx, present.Status(cog.host.Snapshot(c), present.ReadRuntime()))
	return err
}

func (cog *Cog) stats(ctx context.Context, c *command.Context) error {
	_, err := c.SendEmbed(ctx, present.Stats(cog.host.Snapshot(c), present.ReadRuntime()))
	return err
}

func (cog *Cog) socketStats(ctx context.Context, c *command.Context) error {
	counts, since := cog.host.Sockets().Snapshot()
	_, err := c.SendEmbed(ctx, present.SocketStats(counts, since))
	return err
}

func (cog *Cog) shards(ctx context.Context, c *command.Context) error {
	_, err := c.SendEmbed(ctx, present.Shards(cog.host.Shards()))
	return err
}

func (cog *Cog) presence(ctx context.Context, c *command.Context) error {
	kind, ok := gateway.ParseActivityType(strings.ToLower(c.Arg("activity")))
	if !ok {
		return errors.NewBuilder(errors.KindBadArgument).
			WithMessage("Invalid status type! Use playing, watching or listening.").
			Build()
	}
	text := c.Arg("text")

	err := cog.host.UpdatePresence(kind, text)
	if err == nil {
		cog.host.Audit().LogPresence(ctx, c.Message.Author.ID, kind.String(), text)
	}
	return cog.host.ReportOutcome(ctx, c, err,
		fmt.Sprintf("Successfully changed %s status to **%s**", kind, text))
}

func (cog *Cog) failures(ctx context.Context, c *command.Context) error {
	limit := DefaultFailureLimit
	if c.Has("limit") {
		limit = c.Int("limit")
	}
	if limit <= 0 {
		return errors.NewBuilder(errors.KindBadArgument).
			WithMessage("The limit must be a positive number.").
			Build()
	}

	unresolved := false
	items, err := cog.host.Supervisor().Query(ctx, errors.Query{Resolved: &unresolved, Limit: limit})
	if err != nil {
		return err
	}
	_, err = c.SendEmbed(ctx, present.Failures(items, cog.now()))
	return err
}

func (cog *Cog) resolve(ctx context.Context, c *command.Context) error {
	traceID := c.Arg("trace_id")
	err := cog.host.Supervisor().Resolve(ctx, traceID, c.Message.Author.ID)
	if err == nil {
		cog.host.Audit().LogEvent(ctx, logger.FailureResolved,
			slog.String("trace_id", traceID),
			slog.String("actor", c.Message.Author.ID))
	}
	return cog.host.ReportOutcome(ctx, c, err, fmt.Sprintf("Resolved `%s`", traceID))
}

func (cog *Cog) shutdown(ctx context.Context, c *command.Context) error {
	if err := c.React(ctx, "✅"); err != nil {
		cog.log.WarnEvent(ctx, "could not acknowledge shutdown", err)
	}
	cog.host.Audit().LogLifecycle(ctx, logger.BotShutdown, c.Message.Author.ID)
	cog.host.Close()
	return nil
}

func (cog *Cog) restart(ctx context.Context, c *command.Context) error {
	if err := c.React(ctx, "✅"); err != nil {
		cog.log.WarnEvent(ctx, "could not acknowledge restart", err)
	}
	cog.host.Audit().LogLifecycle(ctx, logger.BotRestart, c.Message.Author.ID)
	cog.host.Restart()
	return nil
}
