// Package eventbus distributes runtime events to listeners registered by
// extensions. Listeners are tagged with their owner so an unloaded extension
// can drop all of them at once.
package eventbus

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
)

// Event names published by the runtime
const (
	EventReady          = "ready"
	EventMessage        = "message"
	EventSocketResponse = "socket_response"
	EventCommandError   = "command_error"
	EventReactionAdd    = "reaction_add"
)

// Listener handles one published payload
type Listener func(ctx context.Context, payload any) error

// ErrorSink receives listener failures
type ErrorSink func(ctx context.Context, err *ListenerError)

type subscription struct {
	id    uint64
	event string
	owner string
	fn    Listener
}

// Bus manages listener registration and synchronous delivery
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]*subscription
	sink   ErrorSink
	log    *logger.Logger
}

// New creates an empty bus
func New(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.Global().WithComponent("eventbus")
	}
	return &Bus{
		subs: make(map[string][]*subscription),
		log:  log,
	}
}

// SetErrorSink replaces the failure handler. Without one failures are logged.
func (b *Bus) SetErrorSink(sink ErrorSink) {
	b.mu.Lock()
	b.sink = sink
	b.mu.Unlock()
}

// Subscribe registers fn for event on behalf of owner and returns its id
func (b *Bus) Subscribe(event, owner string, fn Listener) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[event] = append(b.subs[event], &subscription{
		id:    b.nextID,
		event: event,
		owner: owner,
		fn:    fn,
	})
	return b.nextID
}

// Unsubscribe removes one listener
func (b *Bus) Unsubscribe(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for event, subs := range b.subs {
		for i, sub := range subs {
			if sub.id == id {
				b.subs[event] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// RemoveOwner drops every listener registered by owner
func (b *Bus) RemoveOwner(owner string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for event, subs := range b.subs {
		kept := subs[:0:0]
		for _, sub := range subs {
			if sub.owner == owner {
				removed++
				continue
			}
			kept = append(kept, sub)
		}
		if len(kept) == 0 {
			delete(b.subs, event)
		} else {
			b.subs[event] = kept
		}
	}
	return removed
}

// Publish delivers payload to every listener of event in registration order.
// A failing or panicking listener does not stop delivery to the rest.
// Returns the number of listeners invoked.
func (b *Bus) Publish(ctx context.Context, event string, payload any) int {
	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs[event]...)
	sink := b.sink
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := b.invoke(ctx, sub, payload); err != nil {
			if sink != nil {
				sink(ctx, err)
				continue
			}
			b.log.ErrorEvent(ctx, "listener failed", err)
		}
	}
	return len(subs)
}

func (b *Bus) invoke(ctx context.Context, sub *subscription, payload any) (lerr *ListenerError) {
	defer func() {
		if r := recover(); r != nil {
			stack := captureStack(2)
			lerr = &ListenerError{
				Event:      sub.event,
				Owner:      sub.owner,
				Cause:      &errors.PanicError{Value: r, Stack: strings.Join(stack, "\n")},
				StackTrace: stack,
			}
		}
	}()

	if err := sub.fn(ctx, payload); err != nil {
		return &ListenerError{Event: sub.event, Owner: sub.owner, Cause: err}
	}
	return nil
}

// Count returns the number of listeners for event
func (b *Bus) Count(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}

// Owners returns the distinct owners with at least one listener
func (b *Bus) Owners() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := make(map[string]bool)
	for _, subs := range b.subs {
		for _, sub := range subs {
			seen[sub.owner] = true
		}
	}

	owners := make([]string, 0, len(seen))
	for owner := range seen {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}
