package command

import (
	"context"
	"strconv"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/gateway"
)

// Messenger is the outbound surface commands reply through. *gateway.Client
// satisfies it.
type Messenger interface {
	SendMessage(ctx context.Context, channelID string, msg gateway.MessageSend) (*gateway.Message, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
}

// Directory resolves channel and guild metadata. *gateway.Cache satisfies it.
type Directory interface {
	Channel(id string) (gateway.Channel, bool)
	Guild(id string) (gateway.Guild, bool)
}

// Context is the per-invocation state handed to handlers and checks
type Context struct {
	Message     *gateway.Message
	Prefix      string
	InvokedWith string
	Command     *Command
	Router      *Router

	// Channel is resolved from the directory; DMs get a synthetic entry.
	Channel gateway.Channel
	// Guild is nil in direct messages or when the guild is not cached.
	Guild *gateway.Guild

	// Args holds the bound argument values in parameter order.
	Args []string

	params    map[string]string
	messenger Messenger
}

// Arg returns the bound value of a named parameter
func (c *Context) Arg(name string) string {
	return c.params[name]
}

// Has reports whether an optional parameter was supplied
func (c *Context) Has(name string) bool {
	_, ok := c.params[name]
	return ok
}

// Int returns an integer parameter; binding already validated it.
func (c *Context) Int(name string) int {
	n, _ := strconv.Atoi(c.params[name])
	return n
}

// ChannelName is the display name of the invoking channel
func (c *Context) ChannelName() string {
	if c.Channel.Name != "" {
		return "#" + c.Channel.Name
	}
	if c.Message.IsPrivate() {
		return "Direct Message"
	}
	return c.Message.ChannelID
}

// GuildName is the display name of the invoking guild, empty in DMs
func (c *Context) GuildName() string {
	if c.Guild != nil {
		return c.Guild.Name
	}
	return c.Message.GuildID
}

// Send posts plain content to the invoking channel
func (c *Context) Send(ctx context.Context, content string) (*gateway.Message, error) {
	return c.messenger.SendMessage(ctx, c.Message.ChannelID, gateway.MessageSend{Content: content})
}

// SendEmbed posts an embed to the invoking channel
func (c *Context) SendEmbed(ctx context.Context, embed gateway.Embed) (*gateway.Message, error) {
	return c.messenger.SendMessage(ctx, c.Message.ChannelID, gateway.MessageSend{Embeds: []gateway.Embed{embed}})
}

// Reply posts msg as a reply to the invoking message
func (c *Context) Reply(ctx context.Context, msg gateway.MessageSend) (*gateway.Message, error) {
	msg.Reference = &gateway.MessageReference{MessageID: c.Message.ID, ChannelID: c.Message.ChannelID, GuildID: c.Message.GuildID}
	return c.messenger.SendMessage(ctx, c.Message.ChannelID, msg)
}

// React adds a reaction to the invoking message
func (c *Context) React(ctx context.Context, emoji string) error {
	return c.messenger.AddReaction(ctx, c.Message.ChannelID, c.Message.ID, emoji)
}

// Messenger exposes the outbound client for helpers such as paginators
func (c *Context) Messenger() Messenger {
	return c.messenger
}
