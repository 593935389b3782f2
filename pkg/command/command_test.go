package command

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/gateway"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
)

type fakeMessenger struct {
	mu        sync.Mutex
	sent      []gateway.MessageSend
	reactions []string
}

func (f *fakeMessenger) SendMessage(_ context.Context, channelID string, msg gateway.MessageSend) (*gateway.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return &gateway.Message{ID: "reply", ChannelID: channelID, Content: msg.Content}, nil
}

func (f *fakeMessenger) AddReaction(_ context.Context, _, _, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, emoji)
	return nil
}

type harness struct {
	router    *Router
	messenger *fakeMessenger
	failures  []error
	contexts  []*Context
	outcomes  []string
	now       time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{messenger: &fakeMessenger{}, now: time.Unix(1_700_000_000, 0)}

	cache := gateway.NewCache()
	cache.AddGuild(gateway.Guild{
		ID:   "g1",
		Name: "Lounge",
		Channels: []gateway.Channel{
			{ID: "c1", Name: "general", Type: gateway.ChannelTypeGuildText},
			{ID: "c2", Name: "after-dark", Type: gateway.ChannelTypeGuildText, NSFW: true},
		},
	})

	h.router = NewRouter(Config{
		Prefix:    "!",
		Messenger: h.messenger,
		Directory: cache,
		IsOwner:   func(id string) bool { return id == "owner" },
		OnError: func(_ context.Context, c *Context, err error) {
			h.failures = append(h.failures, err)
			h.contexts = append(h.contexts, c)
		},
		Observe: func(_, outcome string, _ time.Duration) { h.outcomes = append(h.outcomes, outcome) },
		Logger:  logger.Discard(),
		Now:     func() time.Time { return h.now },
	})
	return h
}

func guildMessage(author, content string) *gateway.Message {
	return &gateway.Message{ID: "m1", ChannelID: "c1", GuildID: "g1", Author: gateway.User{ID: author}, Content: content}
}

func dmMessage(author, content string) *gateway.Message {
	return &gateway.Message{ID: "m2", ChannelID: "dm1", Author: gateway.User{ID: author}, Content: content}
}

func (h *harness) lastFailure(t *testing.T) *errors.Failure {
	t.Helper()
	require.NotEmpty(t, h.failures)
	f, ok := h.failures[len(h.failures)-1].(*errors.Failure)
	require.True(t, ok, "failure is %T", h.failures[len(h.failures)-1])
	return f
}

func TestDispatchBindsArguments(t *testing.T) {
	h := newHarness(t)
	var got []string
	require.NoError(t, h.router.Register("cogs.core", &Command{
		Name:    "say",
		Aliases: []string{"echo"},
		Params: []Param{
			{Name: "who"},
			{Name: "count", Type: ParamInt, Optional: true},
			{Name: "text", Rest: true, Optional: true},
		},
		Handler: func(ctx context.Context, c *Context) error {
			got = append(got, c.Arg("who"), c.Arg("text"))
			assert.Equal(t, 3, c.Int("count"))
			assert.True(t, c.Has("count"))
			_, err := c.Send(ctx, "ok")
			return err
		},
	}))

	handled := h.router.Dispatch(context.Background(), guildMessage("u1", `!ECHO "John Smith" 3 hello "there" friend`))

	assert.True(t, handled)
	assert.Empty(t, h.failures)
	assert.Equal(t, []string{"John Smith", `hello "there" friend`}, got)
	assert.Equal(t, []string{OutcomeSuccess}, h.outcomes)
	require.Len(t, h.messenger.sent, 1)
	assert.Equal(t, "ok", h.messenger.sent[0].Content)
}

func TestDispatchIgnoresNonCommands(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.router.Dispatch(context.Background(), guildMessage("u1", "hello there")))
	assert.False(t, h.router.Dispatch(context.Background(), guildMessage("u1", "!")))

	bot := guildMessage("u1", "!ping")
	bot.Author.Bot = true
	assert.False(t, h.router.Dispatch(context.Background(), bot))
	assert.Empty(t, h.failures)
}

func TestMentionPrefix(t *testing.T) {
	h := newHarness(t)
	h.router.SetBotID("42")
	called := 0
	require.NoError(t, h.router.Register("cogs.core", &Command{
		Name:    "ping",
		Handler: func(context.Context, *Context) error { called++; return nil },
	}))

	assert.True(t, h.router.Dispatch(context.Background(), guildMessage("u1", "<@42> ping")))
	assert.True(t, h.router.Dispatch(context.Background(), guildMessage("u1", "<@!42>ping")))
	assert.Equal(t, 2, called)
}

func TestCommandNotFound(t *testing.T) {
	h := newHarness(t)

	assert.True(t, h.router.Dispatch(context.Background(), guildMessage("u1", "!nope")))

	f := h.lastFailure(t)
	assert.Equal(t, errors.KindCommandNotFound, f.Kind)
	assert.Equal(t, `Command "nope" is not found`, f.Message)
	assert.Nil(t, h.contexts[0].Command)
}

func TestRestrictions(t *testing.T) {
	h := newHarness(t)
	noop := func(context.Context, *Context) error { return nil }
	require.NoError(t, h.router.Register("cogs.core",
		&Command{Name: "off", Disabled: true, Handler: noop},
		&Command{Name: "server", GuildOnly: true, Handler: noop},
		&Command{Name: "private", DMOnly: true, Handler: noop},
		&Command{Name: "spicy", NSFW: true, Handler: noop},
		&Command{Name: "secret", OwnerOnly: true, Handler: noop},
	))

	cases := []struct {
		msg  *gateway.Message
		kind errors.Kind
	}{
		{guildMessage("owner", "!off"), errors.KindDisabledCommand},
		{dmMessage("u1", "!server"), errors.KindNoPrivateMessage},
		{guildMessage("u1", "!private"), errors.KindPrivateMessageOnly},
		{guildMessage("u1", "!spicy"), errors.KindNSFWChannelRequired},
		{guildMessage("u1", "!secret"), errors.KindNotOwner},
	}
	for _, tc := range cases {
		h.router.Dispatch(context.Background(), tc.msg)
		f := h.lastFailure(t)
		assert.Equal(t, tc.kind, f.Kind, tc.msg.Content)
		require.NotNil(t, f.Context.Command)
	}

	spicy := h.failures[3].(*errors.Failure)
	assert.Equal(t, "Channel '#general' needs to be NSFW for this command to work.", spicy.Message)
	assert.Equal(t, "#general", spicy.Context.ChannelName)
	assert.Equal(t, "Lounge", spicy.Context.GuildName)

	before := len(h.failures)
	nsfw := guildMessage("u1", "!spicy")
	nsfw.ChannelID = "c2"
	h.router.Dispatch(context.Background(), nsfw)
	h.router.Dispatch(context.Background(), guildMessage("owner", "!secret"))
	assert.Len(t, h.failures, before)
}

func TestChecks(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.router.Register("cogs.core",
		&Command{
			Name:    "mod",
			Checks:  []Check{func(context.Context, *Context) error { return stderrors.New("nope") }},
			Handler: func(context.Context, *Context) error { t.Fatal("handler must not run"); return nil },
		},
		&Command{
			Name: "kick",
			Checks: []Check{func(context.Context, *Context) error {
				return errors.NewBuilder(errors.KindMissingPermissions).WithMissingPermissions("kick_members").Build()
			}},
		},
	))

	h.router.Dispatch(context.Background(), guildMessage("u1", "!mod"))
	f := h.lastFailure(t)
	assert.Equal(t, errors.KindCheckFailure, f.Kind)
	assert.Equal(t, "The check functions for command mod failed.", f.Message)

	h.router.Dispatch(context.Background(), guildMessage("u1", "!kick"))
	f = h.lastFailure(t)
	assert.Equal(t, errors.KindMissingPermissions, f.Kind)
	assert.Equal(t, []string{"kick_members"}, f.Context.MissingPermissions)
	assert.Equal(t, "kick", f.Context.Command.Name)
}

func TestGroupInheritsParentRestrictions(t *testing.T) {
	h := newHarness(t)
	var loaded string
	require.NoError(t, h.router.Register("cogs.core", &Command{
		Name:      "sudo",
		OwnerOnly: true,
		Subcommands: []*Command{{
			Name:    "load",
			Params:  []Param{{Name: "extension"}},
			Handler: func(_ context.Context, c *Context) error { loaded = c.Arg("extension"); return nil },
		}},
	}))

	h.router.Dispatch(context.Background(), guildMessage("u1", "!sudo load cogs.chat"))
	f := h.lastFailure(t)
	assert.Equal(t, errors.KindNotOwner, f.Kind)
	assert.Equal(t, "sudo load", f.Context.Command.QualifiedName)
	assert.Equal(t, "sudo", f.Context.Command.Parent)

	h.router.Dispatch(context.Background(), guildMessage("owner", "!sudo LOAD cogs.chat"))
	assert.Equal(t, "cogs.chat", loaded)
	assert.Len(t, h.failures, 1)

	assert.Equal(t, "sudo load", h.router.Get("sudo load").QualifiedName())
	assert.Nil(t, h.router.Get("sudo nothing"))
}

func TestCooldown(t *testing.T) {
	h := newHarness(t)
	calls := 0
	require.NoError(t, h.router.Register("cogs.chat", &Command{
		Name:     "reset",
		Cooldown: &Cooldown{Rate: 1, Per: 600 * time.Second, Bucket: errors.BucketUser},
		Handler:  func(context.Context, *Context) error { calls++; return nil },
	}))

	h.router.Dispatch(context.Background(), guildMessage("u1", "!reset"))
	h.now = h.now.Add(587700 * time.Millisecond)
	h.router.Dispatch(context.Background(), guildMessage("u1", "!reset"))

	assert.Equal(t, 1, calls)
	f := h.lastFailure(t)
	assert.Equal(t, errors.KindCommandOnCooldown, f.Kind)
	assert.Equal(t, errors.BucketUser, f.Context.Bucket)
	assert.InDelta(t, 12.3, f.Context.RetryAfter.Seconds(), 0.01)
	assert.Equal(t, "You are on cooldown. Try again in 12.30s", f.Message)

	// other users have their own bucket
	h.router.Dispatch(context.Background(), guildMessage("u2", "!reset"))
	assert.Equal(t, 2, calls)

	h.now = h.now.Add(13 * time.Second)
	h.router.Dispatch(context.Background(), guildMessage("u1", "!reset"))
	assert.Equal(t, 3, calls)
}

func TestMaxConcurrency(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, h.router.Register("cogs.core", &Command{
		Name:           "slow",
		MaxConcurrency: &Concurrency{Number: 1, Bucket: errors.BucketGuild},
		Handler: func(context.Context, *Context) error {
			close(started)
			<-release
			return nil
		},
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.router.Dispatch(context.Background(), guildMessage("u1", "!slow"))
	}()
	<-started

	h.router.Dispatch(context.Background(), guildMessage("u2", "!slow"))
	close(release)
	<-done

	require.Len(t, h.failures, 1)
	f := h.failures[0].(*errors.Failure)
	assert.Equal(t, errors.KindMaxConcurrencyReached, f.Kind)
	assert.Equal(t, errors.BucketGuild, f.Context.Bucket)
}

func TestArgumentFailures(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.router.Register("cogs.core", &Command{
		Name:    "repeat",
		Aliases: []string{"rep"},
		Params:  []Param{{Name: "times", Type: ParamInt}, {Name: "text", Rest: true}},
		Handler: func(context.Context, *Context) error { return nil },
	}))

	cases := map[string]errors.Kind{
		"!repeat":           errors.KindMissingArgument,
		"!repeat x hello":   errors.KindBadArgument,
		`!repeat "3 hello`:  errors.KindExpectedClosingQuote,
		`!repeat 3"x hello`: errors.KindUnexpectedQuote,
		`!repeat "3"x`:      errors.KindInvalidEndOfQuotedString,
	}
	for content, kind := range cases {
		h.router.Dispatch(context.Background(), guildMessage("u1", content))
		f := h.lastFailure(t)
		assert.Equal(t, kind, f.Kind, content)
		require.NotNil(t, f.Context.Command, content)
		assert.Equal(t, "<times> <text...>", f.Context.Command.Signature)
	}

	h.router.Dispatch(context.Background(), guildMessage("u1", "!repeat 3"))
	assert.Equal(t, "text is a required argument that is missing.", h.lastFailure(t).Message)
}

func TestHandlerFailures(t *testing.T) {
	h := newHarness(t)
	boom := stderrors.New("boom")
	forbidden := errors.NewBuilder(errors.KindForbidden).WithHTTP(403, 50013).Build()
	require.NoError(t, h.router.Register("cogs.core",
		&Command{Name: "fail", Handler: func(context.Context, *Context) error { return boom }},
		&Command{Name: "denied", Handler: func(context.Context, *Context) error { return forbidden }},
		&Command{Name: "input", Handler: func(context.Context, *Context) error {
			return errors.New(errors.KindBadArgument, "not a colour")
		}},
		&Command{Name: "explode", Handler: func(context.Context, *Context) error { panic("kaboom") }},
	))

	h.router.Dispatch(context.Background(), guildMessage("u1", "!fail"))
	f := h.lastFailure(t)
	assert.Equal(t, errors.KindCommandInvoke, f.Kind)
	assert.ErrorIs(t, f, boom)
	assert.Equal(t, "Command raised an exception: errors.errorString: boom", f.Message)

	h.router.Dispatch(context.Background(), guildMessage("u1", "!denied"))
	f = h.lastFailure(t)
	assert.Equal(t, errors.KindCommandInvoke, f.Kind)
	assert.Same(t, forbidden, f.Cause())

	h.router.Dispatch(context.Background(), guildMessage("u1", "!input"))
	f = h.lastFailure(t)
	assert.Equal(t, errors.KindBadArgument, f.Kind)
	assert.Equal(t, "input", f.Context.Command.Name)

	h.router.Dispatch(context.Background(), guildMessage("u1", "!explode"))
	f = h.lastFailure(t)
	assert.Equal(t, errors.KindCommandInvoke, f.Kind)
	var panicErr *errors.PanicError
	require.ErrorAs(t, f, &panicErr)
	assert.Equal(t, "kaboom", panicErr.Value)

	assert.Equal(t, []string{
		string(errors.KindCommandInvoke),
		string(errors.KindCommandInvoke),
		string(errors.KindBadArgument),
		string(errors.KindCommandInvoke),
	}, h.outcomes)
}

func TestCommandErrorHandler(t *testing.T) {
	h := newHarness(t)
	var handled error
	require.NoError(t, h.router.Register("cogs.core", &Command{
		Name:    "custom",
		Handler: func(context.Context, *Context) error { return stderrors.New("x") },
		OnError: func(_ context.Context, _ *Context, err error) { handled = err },
	}))

	h.router.Dispatch(context.Background(), guildMessage("u1", "!custom"))

	require.Error(t, handled)
	f := h.lastFailure(t)
	assert.Same(t, handled, h.failures[0])
	assert.True(t, f.Context.Command.HasErrorHandler)
}

func TestRegisterRejectsCollisions(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.router.Register("cogs.core", &Command{Name: "help", Aliases: []string{"h"}}))

	err := h.router.Register("cogs.chat", &Command{Name: "reset"}, &Command{Name: "H"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cogs.core")
	assert.Nil(t, h.router.Get("reset"))

	err = h.router.Register("cogs.chat", &Command{Name: "a"}, &Command{Name: "b", Aliases: []string{"A"}})
	require.Error(t, err)

	err = h.router.Register("cogs.chat", &Command{Name: "bad", Params: []Param{{Name: "rest", Rest: true}, {Name: "tail"}}})
	require.Error(t, err)
	assert.Equal(t, 1, h.router.Len())
}

func TestRemoveOwner(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.router.Register("cogs.core", &Command{Name: "ping"}, &Command{Name: "help"}))
	require.NoError(t, h.router.Register("cogs.chat", &Command{Name: "reset", Aliases: []string{"clear"}}))

	assert.Equal(t, []string{"reset"}, h.router.RemoveOwner("cogs.chat"))
	assert.Nil(t, h.router.Get("clear"))
	assert.Equal(t, 2, h.router.Len())

	names := []string{}
	for _, cmd := range h.router.Commands() {
		names = append(names, cmd.Name)
		assert.Equal(t, "cogs.core", cmd.Owner())
	}
	assert.Equal(t, []string{"help", "ping"}, names)
}

func TestSplit(t *testing.T) {
	words, err := Split(`a "b c" “d e” \x 'f'`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b c", "d e", `\x`, "'f'"}, words)

	words, err = Split(`"say \"hi\""`)
	require.NoError(t, err)
	assert.Equal(t, []string{`say "hi"`}, words)

	_, err = Split(`"open`)
	require.Error(t, err)
	assert.Equal(t, "Expected closing \".", errors.Message(err))

	_, err = Split(`ab"c`)
	assert.True(t, errors.IsKind(err, errors.KindUnexpectedQuote))

	_, err = Split(`"ab"c`)
	assert.True(t, errors.IsKind(err, errors.KindInvalidEndOfQuotedString))
	assert.Equal(t, "Expected space after closing quotation but received 'c'", errors.Message(err))
}

func TestSignature(t *testing.T) {
	cmd := &Command{Name: "x", Params: []Param{
		{Name: "a"},
		{Name: "b", Optional: true},
		{Name: "c", Rest: true, Optional: true},
	}}
	assert.Equal(t, "<a> [b] [c...]", cmd.Signature())
	assert.Equal(t, "", (&Command{Name: "y"}).Signature())
}

func TestReplyAndReact(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.router.Register("cogs.core", &Command{
		Name: "hi",
		Handler: func(ctx context.Context, c *Context) error {
			if _, err := c.Reply(ctx, gateway.MessageSend{Content: "hello"}); err != nil {
				return err
			}
			return c.React(ctx, "👋")
		},
	}))

	h.router.Dispatch(context.Background(), dmMessage("u1", "!hi"))

	require.Len(t, h.messenger.sent, 1)
	require.NotNil(t, h.messenger.sent[0].Reference)
	assert.Equal(t, "m2", h.messenger.sent[0].Reference.MessageID)
	assert.Equal(t, []string{"👋"}, h.messenger.reactions)
}
