// Package command parses prefixed chat messages into command invocations
// and runs them through restriction checks, cooldowns and argument binding.
// Every failure is delivered as a *errors.Failure to the router's error sink.
package command

import (
	"context"
	"sort"
	"strings"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
)

// Handler runs a command
type Handler func(ctx context.Context, c *Context) error

// ErrorHandler is a per-command failure handler. A command that has one is
// suppressed by the classifier.
type ErrorHandler func(ctx context.Context, c *Context, err error)

// Check is a custom precondition. A non-Failure error is reported as
// CheckFailure.
type Check func(ctx context.Context, c *Context) error

// ParamType selects argument conversion
type ParamType int

const (
	ParamString ParamType = iota
	ParamInt
)

// Param describes one positional argument
type Param struct {
	Name     string
	Type     ParamType
	Optional bool

	// Rest consumes the remainder of the message verbatim. Only valid as the
	// last parameter.
	Rest bool
}

func (p Param) signature() string {
	switch {
	case p.Rest && p.Optional:
		return "[" + p.Name + "...]"
	case p.Rest:
		return "<" + p.Name + "...>"
	case p.Optional:
		return "[" + p.Name + "]"
	default:
		return "<" + p.Name + ">"
	}
}

// Command describes a command or a group of subcommands
type Command struct {
	Name    string
	Aliases []string
	Help    string
	Params  []Param

	Hidden    bool
	Disabled  bool
	OwnerOnly bool
	GuildOnly bool
	DMOnly    bool
	NSFW      bool

	Checks         []Check
	Cooldown       *Cooldown
	MaxConcurrency *Concurrency

	Handler Handler
	OnError ErrorHandler

	Subcommands []*Command

	parent      *Command
	owner       string
	cooldowns   *cooldownMapping
	concurrency *concurrencyMapping
}

// Signature renders the parameter list: <required> [optional] <rest...>
func (c *Command) Signature() string {
	parts := make([]string, len(c.Params))
	for i, p := range c.Params {
		parts[i] = p.signature()
	}
	return strings.Join(parts, " ")
}

// QualifiedName is the full invocation path, e.g. "sudo load"
func (c *Command) QualifiedName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.QualifiedName() + " " + c.Name
}

// Parent returns the enclosing group, nil for top-level commands
func (c *Command) Parent() *Command {
	return c.parent
}

// Owner returns the extension that registered the command
func (c *Command) Owner() string {
	return c.owner
}

// Short returns the first line of the help text
func (c *Command) Short() string {
	line, _, _ := strings.Cut(c.Help, "\n")
	return line
}

// Subcommand finds a direct subcommand by name or alias, case-insensitively
func (c *Command) Subcommand(name string) *Command {
	for _, sub := range c.Subcommands {
		if sub.matches(name) {
			return sub
		}
	}
	return nil
}

// VisibleSubcommands returns the non-hidden subcommands ordered by name
func (c *Command) VisibleSubcommands() []*Command {
	var out []*Command
	for _, sub := range c.Subcommands {
		if !sub.Hidden {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Command) matches(name string) bool {
	if strings.EqualFold(c.Name, name) {
		return true
	}
	for _, alias := range c.Aliases {
		if strings.EqualFold(alias, name) {
			return true
		}
	}
	return false
}

// chain returns the command path from the root group to c
func (c *Command) chain() []*Command {
	if c.parent == nil {
		return []*Command{c}
	}
	return append(c.parent.chain(), c)
}

// Ref is the descriptor attached to failures
func (c *Command) Ref() *errors.CommandRef {
	if c == nil {
		return nil
	}
	ref := &errors.CommandRef{
		Name:            c.Name,
		QualifiedName:   c.QualifiedName(),
		Signature:       c.Signature(),
		Aliases:         append([]string(nil), c.Aliases...),
		Help:            c.Help,
		HasErrorHandler: c.OnError != nil,
	}
	if c.parent != nil {
		ref.Parent = c.parent.QualifiedName()
	}
	return ref
}

func (c *Command) attach(parent *Command, owner string) {
	c.parent = parent
	c.owner = owner
	if c.Cooldown != nil {
		c.cooldowns = newCooldownMapping(*c.Cooldown)
	}
	if c.MaxConcurrency != nil {
		c.concurrency = newConcurrencyMapping(*c.MaxConcurrency)
	}
	for _, sub := range c.Subcommands {
		sub.attach(c, owner)
	}
}
