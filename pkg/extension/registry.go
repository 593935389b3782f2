package extension

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/command"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/eventbus"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/metrics"
)

// Status is the lifecycle state of an extension
type Status string

const (
	StatusUnloaded Status = "unloaded"
	StatusLoaded   Status = "loaded"
	StatusFailed   Status = "failed"
)

// Record is the registry's view of one extension
type Record struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	LastError error     `json:"-"`
	LoadedAt  time.Time `json:"loaded_at,omitempty"`
	Loads     int       `json:"loads"`
	Commands  []string  `json:"commands,omitempty"`
}

// Config configures a Registry
type Config struct {
	Namespace string
	Sources   []Source

	Router *command.Router
	Bus    *eventbus.Bus

	// Host is handed to every Scope for extensions that need the runtime.
	Host any

	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

type entry struct {
	// op serialises lifecycle operations on one identifier
	op sync.Mutex

	rec   Record
	ext   Extension
	scope *Scope
}

// Registry tracks every discovered extension. Records are never deleted.
type Registry struct {
	cfg Config
	log *logger.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	noEntry map[string]bool
}

// NewRegistry creates a registry. Call Refresh to populate it.
func NewRegistry(cfg Config) *Registry {
	if cfg.Namespace == "" {
		cfg.Namespace = "cogs"
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = []Source{Default}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Global()
	}
	return &Registry{
		cfg:     cfg,
		log:     log.WithComponent("extension"),
		entries: make(map[string]*entry),
		noEntry: make(map[string]bool),
	}
}

// Namespace returns the discovery namespace
func (r *Registry) Namespace() string {
	return r.cfg.Namespace
}

// Refresh re-runs discovery and adds records for new extensions. The returned
// error aggregates import failures; the registry is updated regardless.
func (r *Registry) Refresh(ctx context.Context) error {
	res, err := Discover(r.cfg.Namespace, r.cfg.Sources...)

	r.mu.Lock()
	for _, found := range res.Found {
		e, ok := r.entries[found.ID]
		if !ok {
			e = &entry{rec: Record{ID: found.ID, Status: StatusUnloaded}}
			r.entries[found.ID] = e
		}
		e.ext = found.Entry
	}
	r.noEntry = make(map[string]bool, len(res.NoEntryPoint))
	for _, id := range res.NoEntryPoint {
		r.noEntry[id] = true
	}
	r.mu.Unlock()

	for _, ferr := range multierr.Errors(err) {
		r.log.WarnEvent(ctx, "extension discovery failed", ferr)
	}
	r.log.Info("extensions discovered",
		slog.Int("found", len(res.Found)),
		slog.Int("no_entry_point", len(res.NoEntryPoint)))
	r.publish()
	return err
}

// IDs returns every known identifier in lexical order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve maps a short name to its namespaced identifier
func (r *Registry) Resolve(name string) string {
	ns := r.cfg.Namespace + "."
	if strings.HasPrefix(name, ns) {
		return name
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.entries[name]; ok {
		return name
	}
	return ns + name
}

// Record returns a snapshot of one record
func (r *Registry) Record(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Record{}, false
	}
	return snapshot(e), true
}

// Records returns snapshots of every record in lexical order
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, snapshot(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func snapshot(e *entry) Record {
	rec := e.rec
	rec.Commands = append([]string(nil), e.rec.Commands...)
	return rec
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	noEntry := r.noEntry[id]
	r.mu.RUnlock()

	if ok {
		return e, nil
	}
	if noEntry {
		return nil, errors.NewBuilder(errors.KindNoEntryPoint).
			WithMessagef("Extension '%s' has no 'setup' function.", id).
			WithExtension(id).
			Build()
	}
	return nil, errors.NewBuilder(errors.KindExtensionNotFound).
		WithMessagef("Extension '%s' could not be loaded.", id).
		WithExtension(id).
		Build()
}

// Load runs the extension's Setup and marks it loaded. A failing Setup leaves
// the extension failed with the error retained and returns it.
func (r *Registry) Load(ctx context.Context, id string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	e.op.Lock()
	defer e.op.Unlock()
	return r.load(ctx, e, StatusFailed)
}

// load runs with e.op held. failState is the status recorded when Setup fails.
func (r *Registry) load(ctx context.Context, e *entry, failState Status) error {
	r.mu.RLock()
	status, id, ext := e.rec.Status, e.rec.ID, e.ext
	r.mu.RUnlock()

	if status == StatusLoaded {
		return errors.NewBuilder(errors.KindExtensionAlreadyLoaded).
			WithMessagef("Extension '%s' is already loaded.", id).
			WithExtension(id).
			Build()
	}

	scope := newScope(ctx, id, r.cfg.Router, r.cfg.Bus, r.cfg.Host)
	if err := runSetup(ext, scope); err != nil {
		scope.release()
		failure := errors.NewBuilder(errors.KindExtensionFailed).
			Wrap(err).
			WithMessagef("Extension '%s' raised an error: %s: %s", id, errors.KindName(err), errors.Message(err)).
			WithExtension(id).
			Build()

		r.mu.Lock()
		e.rec.Status = failState
		e.rec.LastError = failure
		e.rec.Commands = nil
		e.scope = nil
		r.mu.Unlock()

		r.log.WithExtension(id).ErrorEvent(ctx, "extension setup failed", failure)
		r.publish()
		return failure
	}

	r.mu.Lock()
	e.rec.Status = StatusLoaded
	e.rec.LastError = nil
	e.rec.LoadedAt = time.Now()
	e.rec.Loads++
	e.rec.Commands = scope.Commands()
	e.scope = scope
	r.mu.Unlock()

	r.log.WithExtension(id).Info("extension loaded", slog.Int("commands", len(scope.Commands())))
	r.publish()
	return nil
}

func runSetup(ext Extension, scope *Scope) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &errors.PanicError{Value: rec, Stack: string(debug.Stack())}
		}
	}()
	if ext == nil {
		return fmt.Errorf("extension %s has no entry point", scope.ID())
	}
	return ext.Setup(scope)
}

// Unload releases the extension's commands and listeners
func (r *Registry) Unload(ctx context.Context, id string) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return notLoaded(id)
	}

	e.op.Lock()
	defer e.op.Unlock()
	return r.unload(ctx, e)
}

func notLoaded(id string) error {
	return errors.NewBuilder(errors.KindExtensionNotLoaded).
		WithMessagef("Extension '%s' has not been loaded.", id).
		WithExtension(id).
		Build()
}

// unload runs with e.op held
func (r *Registry) unload(ctx context.Context, e *entry) error {
	r.mu.RLock()
	status, id, scope, ext := e.rec.Status, e.rec.ID, e.scope, e.ext
	r.mu.RUnlock()

	if status != StatusLoaded {
		return notLoaded(id)
	}

	if td, ok := ext.(Teardowner); ok && scope != nil {
		if err := td.Teardown(scope); err != nil {
			r.log.WithExtension(id).WarnEvent(ctx, "extension teardown failed", err)
		}
	}
	if scope != nil {
		scope.release()
	}

	r.mu.Lock()
	e.rec.Status = StatusUnloaded
	e.rec.Commands = nil
	e.scope = nil
	r.mu.Unlock()

	r.log.WithExtension(id).Info("extension unloaded")
	r.publish()
	return nil
}

// Reload unloads and loads the extension as one operation. When the load
// step fails the extension stays unloaded and keeps the error.
func (r *Registry) Reload(ctx context.Context, id string) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return notLoaded(id)
	}

	e.op.Lock()
	defer e.op.Unlock()

	if err := r.unload(ctx, e); err != nil {
		return err
	}
	return r.load(ctx, e, StatusUnloaded)
}

// LoadAll loads every unloaded extension in lexical order and stops at the
// first failure.
func (r *Registry) LoadAll(ctx context.Context) error {
	for _, id := range r.IDs() {
		if rec, _ := r.Record(id); rec.Status == StatusLoaded {
			continue
		}
		if err := r.Load(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// UnloadAll unloads every loaded extension and aggregates failures
func (r *Registry) UnloadAll(ctx context.Context) error {
	var errs error
	ids := r.IDs()
	for i := len(ids) - 1; i >= 0; i-- {
		if rec, _ := r.Record(ids[i]); rec.Status != StatusLoaded {
			continue
		}
		errs = multierr.Append(errs, r.Unload(ctx, ids[i]))
	}
	return errs
}

// Counts returns the number of extensions per status
func (r *Registry) Counts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[string]int{
		string(StatusUnloaded): 0,
		string(StatusLoaded):   0,
		string(StatusFailed):   0,
	}
	for _, e := range r.entries {
		counts[string(e.rec.Status)]++
	}
	return counts
}

func (r *Registry) publish() {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.SetExtensions(r.Counts())
	}
}
