// Package extension discovers bot extensions under a namespace and manages
// their load, unload and reload lifecycle. An extension registers commands
// and listeners through the Scope handed to its Setup; unloading releases
// everything the scope recorded.
package extension

import (
	"context"
	"sync"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/command"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/eventbus"
)

// Extension is an entry point
type Extension interface {
	Setup(s *Scope) error
}

// Teardowner is implemented by extensions that need a hook on unload.
// Teardown errors are logged and never block the unload.
type Teardowner interface {
	Teardown(s *Scope) error
}

// SetupFunc adapts a plain function to Extension
type SetupFunc func(s *Scope) error

// Setup calls f
func (f SetupFunc) Setup(s *Scope) error {
	return f(s)
}

// entryPoint returns the recognised entry point of an imported symbol
func entryPoint(sym any) (Extension, bool) {
	switch v := sym.(type) {
	case Extension:
		return v, true
	case func(*Scope) error:
		return SetupFunc(v), true
	case *func(*Scope) error:
		if v != nil && *v != nil {
			return SetupFunc(*v), true
		}
	}
	return nil, false
}

// Scope is the per-load handle given to Setup. It records what the extension
// registered so that an unload can undo it.
type Scope struct {
	id     string
	ctx    context.Context
	router *command.Router
	bus    *eventbus.Bus
	host   any

	mu       sync.Mutex
	commands []string
	cleanups []func()
}

func newScope(ctx context.Context, id string, router *command.Router, bus *eventbus.Bus, host any) *Scope {
	return &Scope{id: id, ctx: ctx, router: router, bus: bus, host: host}
}

// ID returns the namespaced extension identifier
func (s *Scope) ID() string {
	return s.id
}

// Context returns the context of the load operation
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Host returns the runtime value the registry was configured with
func (s *Scope) Host() any {
	return s.host
}

// AddCommand registers top-level commands owned by this extension
func (s *Scope) AddCommand(cmds ...*command.Command) error {
	if s.router == nil {
		return nil
	}
	if err := s.router.Register(s.id, cmds...); err != nil {
		return err
	}
	s.mu.Lock()
	for _, cmd := range cmds {
		s.commands = append(s.commands, cmd.Name)
	}
	s.mu.Unlock()
	return nil
}

// Listen subscribes fn to a bus event on behalf of this extension
func (s *Scope) Listen(event string, fn eventbus.Listener) {
	if s.bus == nil {
		return
	}
	s.bus.Subscribe(event, s.id, fn)
}

// OnUnload registers a cleanup. Cleanups run in reverse order.
func (s *Scope) OnUnload(fn func()) {
	s.mu.Lock()
	s.cleanups = append(s.cleanups, fn)
	s.mu.Unlock()
}

// Commands returns the names registered through this scope
func (s *Scope) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// release undoes every registration made through the scope
func (s *Scope) release() {
	if s.router != nil {
		s.router.RemoveOwner(s.id)
	}
	if s.bus != nil {
		s.bus.RemoveOwner(s.id)
	}

	s.mu.Lock()
	cleanups := s.cleanups
	s.cleanups = nil
	s.commands = nil
	s.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}
