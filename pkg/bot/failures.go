package bot

import (
	"context"
	"log/slog"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/classify"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/command"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/eventbus"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/gateway"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/present"
)

// CommandError is published on eventbus.EventCommandError
type CommandError struct {
	Context *command.Context
	Err     error
	Result  classify.Result
}

// HandleCommandError classifies a failed invocation, tells the user and
// re-raises unexpected failures to the supervisor.
func (b *Bot) HandleCommandError(ctx context.Context, c *command.Context, err error) {
	if err == nil {
		return
	}

	res := classify.Classify(err)
	b.metrics.RecordFailure(res.Rule.String(), errors.KindName(err))
	b.bus.Publish(ctx, eventbus.EventCommandError, &CommandError{Context: c, Err: err, Result: res})

	if res.Silent {
		return
	}

	if errors.IsKind(err, errors.KindNotOwner) && c != nil && c.Command != nil && c.Message != nil {
		b.audit.LogAccessDenied(ctx, c.Command.QualifiedName(), c.Message.Author.ID)
	}

	log := b.log
	var attrs []slog.Attr
	if c != nil && c.Message != nil {
		log = log.WithUser(c.Message.Author.ID)
		attrs = append(attrs,
			slog.String("content", c.Message.Content),
			slog.String("channel_id", c.Message.ChannelID))
		if c.Message.GuildID != "" {
			log = log.WithGuild(c.Message.GuildID)
		}
	}
	attrs = append(attrs, slog.String("rule", res.Rule.String()))

	switch res.Log {
	case classify.LogWarn:
		log.WarnEvent(ctx, res.Title, err, attrs...)
	case classify.LogError:
		log.ErrorEvent(ctx, res.Title, err, attrs...)
	}

	if c != nil {
		if _, sendErr := c.SendEmbed(ctx, present.Error(res)); sendErr != nil {
			log.WarnEvent(ctx, "could not deliver error message", sendErr)
		}
	}

	if res.Propagate != nil {
		b.supervisor.Report(ctx, res.Propagate, originOf(c))
	}
}

// ReportOutcome confirms a successful administrative action or routes its
// failure through HandleCommandError.
func (b *Bot) ReportOutcome(ctx context.Context, c *command.Context, err error, success string) error {
	if err != nil {
		b.HandleCommandError(ctx, c, err)
		return nil
	}
	_, sendErr := c.SendEmbed(ctx, present.Success(success))
	return sendErr
}

// handleListenerError sends failing listeners to the supervisor
func (b *Bot) handleListenerError(ctx context.Context, lerr *eventbus.ListenerError) {
	b.metrics.RecordFailure("listener", errors.KindName(lerr.Cause))
	b.supervisor.Report(ctx, lerr, errors.Origin{})
}

// handleShardFailure reports a shard the health monitor gave up on
func (b *Bot) handleShardFailure(shard int, reason string) {
	err := errors.Newf(errors.KindHTTP, "gateway shard %d unhealthy: %s", shard, reason)
	b.supervisor.Track("gateway").Event("unhealthy", reason)
	b.metrics.RecordFailure("health", errors.KindName(err))
	b.supervisor.Report(b.runContext(), err, errors.Origin{})
}

func originOf(c *command.Context) errors.Origin {
	if c == nil || c.Message == nil {
		return errors.Origin{}
	}
	origin := messageOrigin(c.Message)
	origin.GuildName = c.GuildName()
	return origin
}

func messageOrigin(m *gateway.Message) errors.Origin {
	return errors.Origin{
		UserID:    m.Author.ID,
		UserName:  m.Author.Username,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
	}
}

// alertSender posts supervisor alerts through the REST client
type alertSender struct {
	rest *gateway.Client
}

func (a alertSender) SendAlert(ctx context.Context, channelID, content string) error {
	_, err := a.rest.SendContent(ctx, channelID, content)
	return err
}

// dmOpener resolves owner DM channels for alerts
type dmOpener struct {
	rest *gateway.Client
}

func (d dmOpener) OpenDM(ctx context.Context, userID string) (string, error) {
	ch, err := d.rest.CreateDM(ctx, userID)
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}
