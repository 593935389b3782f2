// Package menu implements reaction driven embed paginators
package menu

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/eventbus"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/gateway"
)

// Navigation reactions
const (
	EmojiPrevious = "◀"
	EmojiNext     = "▶"
	EmojiStop     = "⏹"
)

// DefaultTimeout ends an idle menu
const DefaultTimeout = 2 * time.Minute

// Client is the REST surface a menu needs. *gateway.Client satisfies it.
type Client interface {
	SendMessage(ctx context.Context, channelID string, msg gateway.MessageSend) (*gateway.Message, error)
	EditMessage(ctx context.Context, channelID, messageID string, msg gateway.MessageSend) (*gateway.Message, error)
	GetMessage(ctx context.Context, channelID, messageID string) (*gateway.Message, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	RemoveUserReaction(ctx context.Context, channelID, messageID, emoji, userID string) error
	ClearReactions(ctx context.Context, channelID, messageID string) error
}

// Reactions delivers reaction events. *eventbus.Bus satisfies it.
type Reactions interface {
	Subscribe(event, owner string, fn eventbus.Listener) uint64
	Unsubscribe(id uint64) bool
}

// Paginator shows one embed at a time and lets the invoking user page with
// reactions.
type Paginator struct {
	Pages   []gateway.Embed
	Timeout time.Duration

	client    Client
	reactions Reactions
}

// NewPaginator creates a paginator over pages
func NewPaginator(client Client, reactions Reactions, pages []gateway.Embed) *Paginator {
	return &Paginator{Pages: pages, Timeout: DefaultTimeout, client: client, reactions: reactions}
}

// Page returns page i with the page footer applied
func (p *Paginator) Page(i int) gateway.Embed {
	page := p.Pages[i]
	if len(p.Pages) > 1 {
		footer := fmt.Sprintf("Page %d/%d", i+1, len(p.Pages))
		if page.Footer != nil && page.Footer.Text != "" {
			footer = page.Footer.Text + " · " + footer
		}
		page.Footer = &gateway.EmbedFooter{Text: footer}
	}
	return page
}

// Run sends the first page to channelID and serves userID's reactions until
// the menu is stopped, times out or ctx ends. A timeout is not an error.
func (p *Paginator) Run(ctx context.Context, channelID, userID string) error {
	if len(p.Pages) == 0 {
		return fmt.Errorf("paginator has no pages")
	}

	msg, err := p.client.SendMessage(ctx, channelID, gateway.MessageSend{Embeds: []gateway.Embed{p.Page(0)}})
	if err != nil {
		return sendFailure(err)
	}
	if len(p.Pages) == 1 {
		return nil
	}

	if _, err := p.client.GetMessage(ctx, channelID, msg.ID); err != nil {
		return forbidden(err, errors.KindCannotReadMessageHistory,
			"I need to be able to read message history to show menus.")
	}

	events := make(chan string, 8)
	done := make(chan struct{})
	id := p.reactions.Subscribe(eventbus.EventReactionAdd, "menu:"+msg.ID, func(_ context.Context, payload any) error {
		r, ok := payload.(*gateway.ReactionAdd)
		if !ok || r.MessageID != msg.ID || r.UserID != userID {
			return nil
		}
		select {
		case events <- r.Emoji.Name:
		case <-done:
		default:
		}
		return nil
	})
	defer func() {
		p.reactions.Unsubscribe(id)
		close(done)
	}()

	for _, emoji := range []string{EmojiPrevious, EmojiNext, EmojiStop} {
		if err := p.client.AddReaction(ctx, channelID, msg.ID, emoji); err != nil {
			return forbidden(err, errors.KindCannotAddReactions,
				"I need to be able to add reactions to show menus.")
		}
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	current := 0
	for {
		select {
		case <-ctx.Done():
			p.finish(channelID, msg.ID)
			return ctx.Err()
		case <-timer.C:
			p.finish(channelID, msg.ID)
			return nil
		case emoji := <-events:
			next := current
			switch emoji {
			case EmojiPrevious:
				next = max(0, current-1)
			case EmojiNext:
				next = min(len(p.Pages)-1, current+1)
			case EmojiStop:
				p.finish(channelID, msg.ID)
				return nil
			default:
				continue
			}

			_ = p.client.RemoveUserReaction(ctx, channelID, msg.ID, emoji, userID)
			if next != current {
				current = next
				if _, err := p.client.EditMessage(ctx, channelID, msg.ID, gateway.MessageSend{Embeds: []gateway.Embed{p.Page(current)}}); err != nil {
					return sendFailure(err)
				}
			}
			timer.Reset(timeout)
		}
	}
}

// finish clears the navigation reactions; failures are ignored
func (p *Paginator) finish(channelID, messageID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.client.ClearReactions(ctx, channelID, messageID)
}

func sendFailure(err error) error {
	f, ok := errors.As(err)
	if !ok || f.Kind != errors.KindForbidden {
		return err
	}
	// 50001 is Missing Access: the channel itself is off limits
	if f.Context.APICode == 50001 {
		return forbidden(err, errors.KindCannotSendMessages, "I cannot send messages in this channel.")
	}
	return forbidden(err, errors.KindCannotEmbedLinks, "I need to be able to send embeds to show menus.")
}

// forbidden converts a 403 into kind and passes other errors through
func forbidden(err error, kind errors.Kind, message string) error {
	if !errors.IsKind(err, errors.KindForbidden) {
		return err
	}
	f, _ := errors.As(err)
	return errors.NewBuilder(kind).
		Wrap(err).
		WithMessage(message).
		WithHTTP(f.Context.HTTPStatus, f.Context.APICode).
		Build()
}

// Chunk splits lines into embeds of at most perPage lines each
func Chunk(title string, lines []string, perPage int) []gateway.Embed {
	if perPage <= 0 {
		perPage = 10
	}
	if len(lines) == 0 {
		return []gateway.Embed{{Title: title, Color: gateway.ColorBlue}}
	}

	var pages []gateway.Embed
	for start := 0; start < len(lines); start += perPage {
		end := min(start+perPage, len(lines))
		pages = append(pages, gateway.Embed{
			Title:       title,
			Description: strings.Join(lines[start:end], "\n"),
			Color:       gateway.ColorBlue,
		})
	}
	return pages
}
