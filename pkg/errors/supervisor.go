package errors

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
)

// Supervisor is the process-level handler for failures the classifier
// re-raises. It logs, persists, samples and alerts, and it never panics.
type Supervisor struct {
	config      SupervisorConfig
	log         *logger.Logger
	registry    *SamplingRegistry
	store       *Store
	notifier    *Notifier
	breadcrumbs *Breadcrumbs
	cron        *cron.Cron

	mu      sync.Mutex
	started bool
}

// SupervisorConfig configures the supervisor
type SupervisorConfig struct {
	StorePath     string
	RetentionDays int
	StoreEnabled  bool

	// RateLimitWindow is a duration string, e.g. "5m"
	RateLimitWindow string
	// CleanupSchedule is a cron spec for retention pruning
	CleanupSchedule string

	AlertChannelID string
	Owners         func() []string
	DM             DMOpener
	Sender         AlertSender

	Logger *logger.Logger
}

// DefaultSupervisorConfig returns the default configuration
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		StorePath:       DefaultStoreConfig().Path,
		RetentionDays:   30,
		StoreEnabled:    true,
		RateLimitWindow: "5m",
		CleanupSchedule: "@every 1h",
	}
}

// NewSupervisor wires the supervisor components
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}
	if cfg.CleanupSchedule == "" {
		cfg.CleanupSchedule = "@every 1h"
	}

	registry := NewSamplingRegistry(SamplingConfig{
		RateLimitWindow: parseDuration(cfg.RateLimitWindow, 5*time.Minute),
	})

	var store *Store
	if cfg.StoreEnabled {
		var err error
		store, err = NewStore(StoreConfig{
			Path:          cfg.StorePath,
			RetentionDays: cfg.RetentionDays,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create failure store: %w", err)
		}
	}

	resolver := NewAlertResolver(AlertConfig{
		ChannelID: cfg.AlertChannelID,
		Owners:    cfg.Owners,
		DM:        cfg.DM,
	})

	return &Supervisor{
		config:      cfg,
		log:         cfg.Logger.WithComponent("supervisor"),
		registry:    registry,
		store:       store,
		notifier:    NewNotifier(resolver, cfg.Sender),
		breadcrumbs: NewBreadcrumbs(10),
		cron:        cron.New(),
	}, nil
}

// Start schedules the retention job
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	_, err := s.cron.AddFunc(s.config.CleanupSchedule, func() {
		s.cleanup(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", s.config.CleanupSchedule, err)
	}

	s.cron.Start()
	s.started = true
	return nil
}

// Stop halts the retention job and closes the store
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		<-s.cron.Stop().Done()
		s.started = false
	}

	if s.store != nil {
		err := s.store.Close()
		s.store = nil
		return err
	}
	return nil
}

func (s *Supervisor) cleanup(ctx context.Context) {
	s.registry.Prune()
	if s.store == nil {
		return
	}
	n, err := s.store.Cleanup(ctx)
	if err != nil {
		s.log.WarnEvent(ctx, "failure store cleanup failed", err)
		return
	}
	if n > 0 {
		s.log.Info("pruned resolved failures", "count", n)
	}
}

// Report handles an unhandled failure. Foreign errors are wrapped as
// Unknown. It returns the trace id under which the failure was recorded.
func (s *Supervisor) Report(ctx context.Context, err error, origin Origin) (traceID string) {
	if err == nil {
		return ""
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("supervisor panicked while reporting",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	f, ok := As(err)
	if !ok {
		f = Wrap(KindUnknown, err)
	}
	traceID = f.TraceID

	attrs := []slog.Attr{
		slog.String("trace_id", f.TraceID),
		slog.String("kind", string(f.Kind)),
		slog.String("severity", string(f.Severity)),
	}
	if cmd := f.Context.Command.String(); cmd != "" {
		attrs = append(attrs, slog.String("command", cmd))
	}
	if f.Context.Extension != "" {
		attrs = append(attrs, slog.String("extension", f.Context.Extension))
	}
	if origin.UserID != "" {
		attrs = append(attrs, slog.String("user_id", origin.UserID))
	}
	if origin.GuildID != "" {
		attrs = append(attrs, slog.String("guild_id", origin.GuildID))
	}
	s.log.ErrorEvent(ctx, "unhandled failure", err, attrs...)

	if s.store != nil {
		id, storeErr := s.store.Record(ctx, f, origin)
		if storeErr != nil {
			s.log.WarnEvent(ctx, "failed to persist failure", storeErr, slog.String("trace_id", f.TraceID))
		} else {
			traceID = id
		}
	}

	notify, repeats := s.registry.ShouldNotify(f)
	if !notify || !s.notifier.Enabled() {
		return traceID
	}

	trail := s.breadcrumbs.Recent(componentsFor(f.Category), 5)
	if notifyErr := s.notifier.Notify(ctx, f, origin, repeats, trail); notifyErr != nil {
		s.log.WarnEvent(ctx, "failed to deliver alert", notifyErr, slog.String("trace_id", f.TraceID))
	}
	return traceID
}

// Track returns the breadcrumb tracker for a component
func (s *Supervisor) Track(component string) *Tracker {
	return s.breadcrumbs.Component(component)
}

// Store returns the failure store, or nil when persistence is disabled
func (s *Supervisor) Store() *Store {
	return s.store
}

// Query lists stored failures
func (s *Supervisor) Query(ctx context.Context, q Query) ([]StoredFailure, error) {
	if s.store == nil {
		return nil, fmt.Errorf("failure store not configured")
	}
	return s.store.Query(ctx, q)
}

// Resolve marks a stored failure as resolved and resets its sampling state
func (s *Supervisor) Resolve(ctx context.Context, traceID, resolvedBy string) error {
	if s.store == nil {
		return fmt.Errorf("failure store not configured")
	}
	stored, err := s.store.Get(ctx, traceID)
	if err != nil {
		return err
	}
	if err := s.store.Resolve(ctx, traceID, resolvedBy); err != nil {
		return err
	}
	if stored.Failure != nil {
		s.registry.Forget(Signature(stored.Failure))
	}
	return nil
}

// Stats returns supervisor statistics
func (s *Supervisor) Stats(ctx context.Context) SupervisorStats {
	stats := SupervisorStats{
		Sampling:      s.registry.Stats(),
		AlertsEnabled: s.notifier.Enabled(),
	}
	if s.store != nil {
		if storeStats, err := s.store.Stats(ctx); err == nil {
			stats.Store = &storeStats
		}
	}
	return stats
}

// SupervisorStats holds statistics about supervised failures
type SupervisorStats struct {
	Sampling      SamplingStats `json:"sampling"`
	Store         *StoreStats   `json:"store,omitempty"`
	AlertsEnabled bool          `json:"alerts_enabled"`
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
