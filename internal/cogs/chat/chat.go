// Package chat is the conversational extension: it answers messages in the
// configured channel through the AIML skill and owns the per-user sessions.
package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/bot"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/command"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/config"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/eventbus"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/extension"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/gateway"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/metrics"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/present"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/skill"
)

// ID is the extension identifier
const ID = "cogs.chat"

// ResetCooldown limits reset to one use per user in this window
const ResetCooldown = 600 * time.Second

func init() {
	extension.RegisterSetup(ID, Setup)
}

// Host is the part of the runtime the extension uses. *bot.Bot satisfies it.
type Host interface {
	Config() *config.Config
	Logger() *logger.Logger
	Cache() *gateway.Cache
	REST() *gateway.Client
	Router() *command.Router
	Skill() *skill.Skill
	Metrics() *metrics.Metrics
	Sockets() *bot.SocketStats
	ResetBrain() (int, error)
}

// Cog holds the conversation sessions, keyed by user id
type Cog struct {
	host Host
	log  *logger.Logger

	mu       sync.Mutex
	sessions map[string]skill.State
	turns    map[string]*sync.Mutex
}

// Setup registers the listener and the reset command
func Setup(s *extension.Scope) error {
	host, ok := s.Host().(Host)
	if !ok {
		return errors.Newf(errors.KindExtensionFailed, "%s needs the bot runtime as host", ID)
	}
	cog := New(host)

	s.Listen(eventbus.EventMessage, cog.onMessage)
	return s.AddCommand(&command.Command{
		Name:     "reset",
		Help:     "Reset the bot's memory and reload the conversation scripts.",
		Cooldown: &command.Cooldown{Rate: 1, Per: ResetCooldown, Bucket: errors.BucketUser},
		Handler:  cog.reset,
	})
}

// New creates the cog with no sessions
func New(host Host) *Cog {
	return &Cog{
		host:     host,
		log:      host.Logger().WithExtension(ID),
		sessions: make(map[string]skill.State),
		turns:    make(map[string]*sync.Mutex),
	}
}

// shouldAnswer reports whether msg is addressed to the chat: not from a
// bot, not a command, and in the configured channel. Without a configured
// channel only direct messages are answered.
func (cog *Cog) shouldAnswer(msg *gateway.Message) bool {
	if msg.Author.Bot || strings.TrimSpace(msg.Content) == "" {
		return false
	}
	if prefix := cog.host.Router().Prefix(); prefix != "" && strings.HasPrefix(msg.Content, prefix) {
		return false
	}

	want := cog.host.Config().Bot.ChannelName
	if want == "" {
		return msg.IsPrivate()
	}
	if msg.IsPrivate() {
		return false
	}
	ch, ok := cog.host.Cache().Channel(msg.ChannelID)
	return ok && ch.Name == want
}

func (cog *Cog) onMessage(ctx context.Context, payload any) error {
	msg, ok := payload.(*gateway.Message)
	if !ok || !cog.shouldAnswer(msg) {
		return nil
	}

	text := present.SanitizeInput(msg.Content)
	if strings.TrimSpace(text) == "" {
		cog.log.Debug("message empty after sanitising", "message_id", msg.ID)
		return nil
	}

	res := cog.Answer(msg.Author.ID, text)
	tier := "positive"
	if res.Null {
		tier = "null"
	}
	cog.host.Metrics().RecordChatReply(tier)

	_, err := cog.host.REST().SendContent(ctx, msg.ChannelID, present.ChatReply(msg.Author.Username, res.Response))
	return err
}

// turn returns the lock serialising userID's conversation
func (cog *Cog) turn(userID string) *sync.Mutex {
	cog.mu.Lock()
	defer cog.mu.Unlock()
	l, ok := cog.turns[userID]
	if !ok {
		l = &sync.Mutex{}
		cog.turns[userID] = l
	}
	return l
}

// Answer runs text through the skill within userID's session. Turns of the
// same user run one at a time.
func (cog *Cog) Answer(userID, text string) skill.Result {
	l := cog.turn(userID)
	l.Lock()
	defer l.Unlock()

	cog.mu.Lock()
	state := cog.sessions[userID]
	cog.mu.Unlock()

	res := cog.host.Skill().Step(text, state)

	cog.mu.Lock()
	cog.sessions[userID] = res.State
	cog.mu.Unlock()
	return res
}

// Sessions returns the number of users with a conversation
func (cog *Cog) Sessions() int {
	cog.mu.Lock()
	defer cog.mu.Unlock()
	return len(cog.sessions)
}

func (cog *Cog) reset(ctx context.Context, c *command.Context) error {
	if _, err := c.SendEmbed(ctx, present.Success("Resetting info")); err != nil {
		return err
	}

	cog.mu.Lock()
	cog.sessions = make(map[string]skill.State)
	cog.mu.Unlock()
	cog.host.Sockets().Reset()

	n, err := cog.host.ResetBrain()
	if err != nil {
		cog.log.WarnEvent(ctx, "some aiml scripts were skipped", err)
	}
	cog.log.Info("brain reset", "files", n, "user_id", c.Message.Author.ID)
	return nil
}
