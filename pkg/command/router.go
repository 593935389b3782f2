package command

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/gateway"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
)

// OutcomeSuccess is reported to the observer for completed invocations
const OutcomeSuccess = "success"

// ErrorSink receives every invocation failure. c.Command is nil for
// CommandNotFound.
type ErrorSink func(ctx context.Context, c *Context, err error)

// Observer is told about each finished invocation
type Observer func(command, outcome string, elapsed time.Duration)

// Config configures a Router
type Config struct {
	Prefix    string
	Messenger Messenger
	Directory Directory
	IsOwner   func(userID string) bool
	OnError   ErrorSink
	Observe   Observer
	Logger    *logger.Logger

	// Now is the cooldown clock, time.Now when nil.
	Now func() time.Time
}

// Router maps prefixed messages to registered commands
type Router struct {
	mu     sync.RWMutex
	prefix string
	botID  string
	names  map[string]*Command
	roots  []*Command
	sink   ErrorSink

	messenger Messenger
	directory Directory
	isOwner   func(string) bool
	observe   Observer
	now       func() time.Time
	log       *logger.Logger
}

// NewRouter creates a router with no commands
func NewRouter(cfg Config) *Router {
	r := &Router{
		prefix:    cfg.Prefix,
		names:     make(map[string]*Command),
		sink:      cfg.OnError,
		messenger: cfg.Messenger,
		directory: cfg.Directory,
		isOwner:   cfg.IsOwner,
		observe:   cfg.Observe,
		now:       cfg.Now,
		log:       cfg.Logger,
	}
	if r.isOwner == nil {
		r.isOwner = func(string) bool { return false }
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.log == nil {
		r.log = logger.Global().WithComponent("command")
	}
	return r
}

// Prefix returns the command prefix
func (r *Router) Prefix() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prefix
}

// SetPrefix replaces the command prefix
func (r *Router) SetPrefix(prefix string) {
	r.mu.Lock()
	r.prefix = prefix
	r.mu.Unlock()
}

// SetBotID enables mention prefixes (<@id> and <@!id>)
func (r *Router) SetBotID(id string) {
	r.mu.Lock()
	r.botID = id
	r.mu.Unlock()
}

// SetErrorSink replaces the failure sink
func (r *Router) SetErrorSink(sink ErrorSink) {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
}

// Register adds top-level commands on behalf of owner. Nothing is registered
// when any name or alias collides.
func (r *Router) Register(owner string, cmds ...*Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make(map[string]bool)
	for _, cmd := range cmds {
		if cmd == nil || cmd.Name == "" {
			return fmt.Errorf("command without a name from %s", owner)
		}
		for _, name := range append([]string{cmd.Name}, cmd.Aliases...) {
			key := strings.ToLower(name)
			if existing, ok := r.names[key]; ok {
				return fmt.Errorf("command or alias %q from %s is already registered by %s", name, owner, existing.owner)
			}
			if pending[key] {
				return fmt.Errorf("command or alias %q is registered twice by %s", name, owner)
			}
			pending[key] = true
		}
		if err := validateTree(cmd); err != nil {
			return err
		}
	}

	for _, cmd := range cmds {
		cmd.attach(nil, owner)
		r.roots = append(r.roots, cmd)
		r.names[strings.ToLower(cmd.Name)] = cmd
		for _, alias := range cmd.Aliases {
			r.names[strings.ToLower(alias)] = cmd
		}
	}
	return nil
}

func validateTree(cmd *Command) error {
	if err := validateParams(cmd); err != nil {
		return err
	}
	for _, sub := range cmd.Subcommands {
		if err := validateTree(sub); err != nil {
			return err
		}
	}
	return nil
}

// RemoveOwner unregisters every command owned by owner and returns their names
func (r *Router) RemoveOwner(owner string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	kept := r.roots[:0:0]
	for _, cmd := range r.roots {
		if cmd.owner != owner {
			kept = append(kept, cmd)
			continue
		}
		removed = append(removed, cmd.Name)
		for key, c := range r.names {
			if c == cmd {
				delete(r.names, key)
			}
		}
	}
	r.roots = kept
	return removed
}

// Get resolves a space separated path such as "sudo load"
func (r *Router) Get(path string) *Command {
	fields := strings.Fields(path)
	if len(fields) == 0 {
		return nil
	}

	r.mu.RLock()
	cmd := r.names[strings.ToLower(fields[0])]
	r.mu.RUnlock()

	for _, name := range fields[1:] {
		if cmd == nil {
			return nil
		}
		cmd = cmd.Subcommand(name)
	}
	return cmd
}

// Commands returns the top-level commands ordered by name
func (r *Router) Commands() []*Command {
	r.mu.RLock()
	out := append([]*Command(nil), r.roots...)
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of top-level commands
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roots)
}

func (r *Router) matchPrefix(content string) (string, string, bool) {
	r.mu.RLock()
	prefix, botID := r.prefix, r.botID
	r.mu.RUnlock()

	if botID != "" {
		for _, mention := range []string{"<@" + botID + ">", "<@!" + botID + ">"} {
			if rest, ok := strings.CutPrefix(content, mention); ok {
				return mention, strings.TrimLeft(rest, " "), true
			}
		}
	}
	if prefix == "" {
		return "", "", false
	}
	rest, ok := strings.CutPrefix(content, prefix)
	return prefix, rest, ok
}

// Dispatch runs the command addressed by msg. It reports whether msg was a
// command invocation; failures go to the error sink, not the caller.
func (r *Router) Dispatch(ctx context.Context, msg *gateway.Message) bool {
	if msg == nil || msg.Author.Bot {
		return false
	}
	prefix, rest, ok := r.matchPrefix(msg.Content)
	if !ok {
		return false
	}

	v := &view{s: rest}
	name := v.word()
	if name == "" {
		return false
	}

	c := &Context{
		Message:     msg,
		Prefix:      prefix,
		InvokedWith: name,
		Router:      r,
		messenger:   r.messenger,
	}
	r.resolveLocation(c)

	r.mu.RLock()
	cmd := r.names[strings.ToLower(name)]
	r.mu.RUnlock()

	if cmd == nil {
		r.deliver(ctx, c, errors.NewBuilder(errors.KindCommandNotFound).
			WithMessagef("Command \"%s\" is not found", name).
			WithLocation(c.ChannelName(), c.GuildName()).
			Build())
		return true
	}

	for len(cmd.Subcommands) > 0 {
		mark := v.pos
		sub := cmd.Subcommand(v.word())
		if sub == nil {
			v.pos = mark
			break
		}
		cmd = sub
	}
	c.Command = cmd

	start := time.Now()
	err := r.invoke(ctx, c, v)
	elapsed := time.Since(start)

	outcome := OutcomeSuccess
	if err != nil {
		outcome = errors.KindName(err)
		r.deliver(ctx, c, err)
	} else {
		r.log.CommandEvent(ctx, cmd.QualifiedName(), msg.Author.ID, elapsed,
			slog.String("channel_id", msg.ChannelID))
	}
	if r.observe != nil {
		r.observe(cmd.QualifiedName(), outcome, elapsed)
	}
	return true
}

func (r *Router) resolveLocation(c *Context) {
	msg := c.Message
	if r.directory != nil {
		if ch, ok := r.directory.Channel(msg.ChannelID); ok {
			c.Channel = ch
		}
		if msg.GuildID != "" {
			if g, ok := r.directory.Guild(msg.GuildID); ok {
				c.Guild = &g
			}
		}
	}
	if c.Channel.ID == "" {
		c.Channel = gateway.Channel{ID: msg.ChannelID, GuildID: msg.GuildID}
		if msg.IsPrivate() {
			c.Channel.Type = gateway.ChannelTypeDM
		}
	}
}

func (r *Router) invoke(ctx context.Context, c *Context, v *view) error {
	for _, cmd := range c.Command.chain() {
		if err := r.restrictions(ctx, c, cmd); err != nil {
			return err
		}
	}

	cmd := c.Command
	if m := cmd.cooldowns; m != nil {
		if retry := m.take(bucketKey(m.spec.Bucket, c), r.now()); retry > 0 {
			return r.failure(c, errors.KindCommandOnCooldown).
				WithMessagef("You are on cooldown. Try again in %.2fs", retry.Seconds()).
				WithCooldown(m.spec.Bucket, retry).
				Build()
		}
	}

	if m := cmd.concurrency; m != nil {
		release, ok := m.acquire(bucketKey(m.spec.Bucket, c))
		if !ok {
			return r.failure(c, errors.KindMaxConcurrencyReached).
				WithMessagef("Too many people are using this command. It can only be used %d time(s) per %s concurrently.", m.spec.Number, m.spec.Bucket).
				WithCooldown(m.spec.Bucket, 0).
				Build()
		}
		defer release()
	}

	params, raw, err := bindArgs(cmd.Params, v)
	if err != nil {
		return r.attach(c, err)
	}
	c.params, c.Args = params, raw

	if cmd.Handler == nil {
		return nil
	}
	return r.run(ctx, c)
}

func (r *Router) restrictions(ctx context.Context, c *Context, cmd *Command) error {
	msg := c.Message
	switch {
	case cmd.Disabled:
		return r.failure(c, errors.KindDisabledCommand).
			WithMessagef("%s command is disabled", cmd.Name).Build()
	case cmd.GuildOnly && msg.IsPrivate():
		return r.failure(c, errors.KindNoPrivateMessage).
			WithMessage("This command cannot be used in private messages.").Build()
	case cmd.DMOnly && !msg.IsPrivate():
		return r.failure(c, errors.KindPrivateMessageOnly).
			WithMessage("This command can only be used in private messages.").Build()
	case cmd.NSFW && !msg.IsPrivate() && !c.Channel.NSFW:
		return r.failure(c, errors.KindNSFWChannelRequired).
			WithMessagef("Channel '%s' needs to be NSFW for this command to work.", c.ChannelName()).Build()
	case cmd.OwnerOnly && !r.isOwner(msg.Author.ID):
		return r.failure(c, errors.KindNotOwner).
			WithMessage("You do not own this bot.").Build()
	}

	for _, check := range cmd.Checks {
		err := check(ctx, c)
		if err == nil {
			continue
		}
		if f, ok := err.(*errors.Failure); ok {
			return r.attach(c, f)
		}
		return r.failure(c, errors.KindCheckFailure).
			Wrap(err).
			WithMessagef("The check functions for command %s failed.", c.Command.QualifiedName()).
			Build()
	}
	return nil
}

func (r *Router) run(ctx context.Context, c *Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = r.invokeError(c, &errors.PanicError{Value: rec, Stack: string(debug.Stack())})
		}
	}()

	herr := c.Command.Handler(ctx, c)
	if herr == nil {
		return nil
	}
	if f, ok := herr.(*errors.Failure); ok && passesThrough(f) {
		return r.attach(c, f)
	}
	return r.invokeError(c, herr)
}

// passesThrough reports whether a handler failure reaches the sink as-is.
// Transport and foreign failures are wrapped so their cause stays inspectable.
func passesThrough(f *errors.Failure) bool {
	switch f.Category {
	case errors.CategoryTransport, errors.CategoryGeneric, errors.CategoryInvocation, "":
		return false
	}
	return true
}

func (r *Router) invokeError(c *Context, cause error) error {
	return r.failure(c, errors.KindCommandInvoke).
		Wrap(cause).
		WithMessagef("Command raised an exception: %s: %s", errors.KindName(cause), errors.Message(cause)).
		Build()
}

func (r *Router) failure(c *Context, kind errors.Kind) *errors.Builder {
	return errors.NewBuilder(kind).
		WithCommand(c.Command.Ref()).
		WithLocation(c.ChannelName(), c.GuildName())
}

// attach fills in the command and location of a failure raised below the router
func (r *Router) attach(c *Context, err error) error {
	f, ok := err.(*errors.Failure)
	if !ok {
		return err
	}
	if f.Context.Command == nil {
		f.Context.Command = c.Command.Ref()
	}
	if f.Context.ChannelName == "" {
		f.Context.ChannelName = c.ChannelName()
		f.Context.GuildName = c.GuildName()
	}
	return f
}

func (r *Router) deliver(ctx context.Context, c *Context, err error) {
	if c.Command != nil && c.Command.OnError != nil {
		c.Command.OnError(ctx, c, err)
	}

	r.mu.RLock()
	sink := r.sink
	r.mu.RUnlock()

	if sink != nil {
		sink(ctx, c, err)
		return
	}
	r.log.WarnEvent(ctx, "command failed", err, slog.String("content", c.Message.Content))
}

// ResetCooldown clears the invoker's cooldown bucket for c.Command
func (r *Router) ResetCooldown(c *Context) {
	if c.Command == nil || c.Command.cooldowns == nil {
		return
	}
	m := c.Command.cooldowns
	m.reset(bucketKey(m.spec.Bucket, c))
}
