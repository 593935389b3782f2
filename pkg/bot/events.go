package bot

import (
	"context"
	"fmt"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/eventbus"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/gateway"
)

// handleEvent receives every gateway dispatch. It runs on the shard's read
// goroutine, so message handling is moved onto the bounded event group.
func (b *Bot) handleEvent(ev gateway.Event) {
	b.sockets.Add(ev.Type)
	b.metrics.RecordSocketEvent(ev.Type)
	b.cache.Apply(ev)

	ctx := b.runContext()
	b.bus.Publish(ctx, eventbus.EventSocketResponse, ev)

	switch data := ev.Data.(type) {
	case *gateway.Ready:
		b.onReady(ctx, ev.Shard, data)

	case *gateway.Message:
		if ctx.Err() != nil {
			return
		}
		b.events.Go(func() error {
			b.bus.Publish(ctx, eventbus.EventMessage, data)
			b.router.Dispatch(ctx, data)
			return nil
		})

	case *gateway.ReactionAdd:
		b.bus.Publish(ctx, eventbus.EventReactionAdd, data)
	}

	switch ev.Type {
	case gateway.EventGuildCreate, gateway.EventGuildDelete:
		b.metrics.SetGuilds(b.cache.GuildCount())
	}
}

// onReady loads every extension on the first READY. A shard reconnecting
// with a fresh session only logs.
func (b *Bot) onReady(ctx context.Context, shard int, ready *gateway.Ready) {
	b.mu.Lock()
	seen := b.readyShard[shard]
	b.readyShard[shard] = true
	user := ready.User
	b.user = &user
	b.mu.Unlock()

	b.router.SetBotID(ready.User.ID)
	b.supervisor.Track("gateway").Eventf("ready", "shard %d session %s", shard, ready.SessionID)

	if seen {
		b.log.Info("connection reinitialized", "shard", shard, "session_id", ready.SessionID)
		return
	}

	b.log.Info("bot is ready",
		"user", ready.User.Username,
		"shard", shard,
		"guilds", len(ready.Guilds))

	if b.loaded.CompareAndSwap(false, true) {
		if err := b.registry.LoadAll(ctx); err != nil {
			b.log.ErrorEvent(ctx, "failed to load extensions", err)
			b.fail(fmt.Errorf("load extensions: %w", err))
			return
		}
		b.log.Info("extensions loaded", "commands", b.router.Len())
	}

	b.bus.Publish(ctx, eventbus.EventReady, ready)
}

func (b *Bot) runContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}
