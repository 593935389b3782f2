// Package bot is the runtime: it owns the gateway connection, the shared
// HTTP client and every subsystem, and routes events between them.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/aiml"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/command"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/config"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/eventbus"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/extension"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/gateway"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/health"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/metrics"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/skill"
)

// Options configures New. Only Config is required.
type Options struct {
	Config *config.Config
	Logger *logger.Logger

	// HTTPClient is shared by every outbound request. When nil the bot
	// creates one and releases it when Run returns.
	HTTPClient *http.Client

	// Sources overrides extension discovery; the default catalog plus the
	// configured plugin directory otherwise.
	Sources []extension.Source

	Now func() time.Time
}

// Bot is the dependency root
type Bot struct {
	cfg   *config.Config
	log   *logger.Logger
	audit *logger.AuditLogger
	now   func() time.Time

	httpClient *http.Client
	ownsHTTP   bool

	rest       *gateway.Client
	gateway    *gateway.Gateway
	cache      *gateway.Cache
	router     *command.Router
	bus        *eventbus.Bus
	registry   *extension.Registry
	supervisor *errors.Supervisor
	metrics    *metrics.Metrics
	health     *health.Monitor
	sockets    *SocketStats
	kernel     *aiml.Kernel
	skill      *skill.Skill

	startTime time.Time

	// ctx is the lifetime of the current Run
	ctx    context.Context
	cancel context.CancelFunc
	events *errgroup.Group

	mu         sync.Mutex
	readyShard map[int]bool
	user       *gateway.User
	appOwners  []string
	fatal      error

	loaded  atomic.Bool
	restart atomic.Bool
}

// New wires the runtime without connecting
func New(opts Options) (*Bot, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bot: config is required")
	}
	cfg := opts.Config
	if opts.Logger == nil {
		opts.Logger = logger.Global()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	b := &Bot{
		cfg:        cfg,
		log:        opts.Logger.WithComponent("bot"),
		audit:      logger.NewAuditLogger(opts.Logger),
		now:        opts.Now,
		httpClient: opts.HTTPClient,
		cache:      gateway.NewCache(),
		bus:        eventbus.New(opts.Logger.WithComponent("eventbus")),
		metrics:    metrics.New(),
		sockets:    NewSocketStats(opts.Now),
		readyShard: make(map[int]bool),
		startTime:  opts.Now(),
		ctx:        context.Background(),
		cancel:     func() {},
	}
	if b.httpClient == nil {
		b.httpClient = &http.Client{Timeout: 30 * time.Second}
		b.ownsHTTP = true
	}

	b.events = &errgroup.Group{}
	if n := cfg.Gateway.MaxConcurrentEvents; n > 0 {
		b.events.SetLimit(n)
	}

	b.rest = gateway.NewClient(gateway.ClientConfig{
		Token:      cfg.Bot.Token,
		BaseURL:    cfg.Gateway.APIBaseURL,
		HTTPClient: b.httpClient,
		Logger:     opts.Logger.WithComponent("rest"),
	})

	presence := gateway.NewPresence(gateway.ActivityPlaying, cfg.DefaultActivity())
	b.gateway = gateway.New(gateway.Config{
		Token:            cfg.Bot.Token,
		ShardCount:       cfg.Gateway.ShardCount,
		HeartbeatTimeout: cfg.HeartbeatTimeout(),
		Presence:         &presence,
		Logger:           opts.Logger.WithComponent("gateway"),
	}, b.rest, b.handleEvent)
	b.gateway.OnReconnect = func(shard int, cause error) {
		b.metrics.RecordReconnect(strconv.Itoa(shard))
		b.log.Warn("shard reconnecting", "shard", shard, "cause", cause)
		b.supervisor.Track("gateway").Failure(fmt.Sprintf("reconnect shard %d", shard), cause)
	}

	b.health = health.NewMonitor(b.gateway.Shards, health.MonitorConfig{
		MaxLatency: cfg.HeartbeatTimeout() / 2,
	}, opts.Logger)
	b.health.SetFailureHandler(b.handleShardFailure)
	b.metrics.Handle("/healthz", b.health)

	b.router = command.NewRouter(command.Config{
		Prefix:    cfg.Bot.Prefix,
		Messenger: b.rest,
		Directory: b.cache,
		IsOwner:   b.IsOwner,
		OnError:   b.HandleCommandError,
		Observe: func(cmd, outcome string, elapsed time.Duration) {
			b.metrics.RecordCommand(cmd, outcome, elapsed)
			b.supervisor.Track("command").Eventf(outcome, "%s in %s", cmd, elapsed)
		},
		Logger: opts.Logger.WithComponent("command"),
		Now:    opts.Now,
	})

	sources := opts.Sources
	if len(sources) == 0 {
		sources = []extension.Source{extension.Default}
		if cfg.Extensions.PluginDir != "" {
			sources = append(sources, extension.PluginDir{Dir: cfg.Extensions.PluginDir})
		}
	}
	b.registry = extension.NewRegistry(extension.Config{
		Namespace: cfg.Extensions.Namespace,
		Sources:   sources,
		Router:    b.router,
		Bus:       b.bus,
		Host:      b,
		Metrics:   b.metrics,
		Logger:    opts.Logger,
	})

	supervisor, err := errors.NewSupervisor(errors.SupervisorConfig{
		StorePath:       cfg.Supervisor.StorePath,
		RetentionDays:   cfg.Supervisor.RetentionDays,
		StoreEnabled:    cfg.Supervisor.StoreEnabled,
		RateLimitWindow: cfg.Supervisor.RateLimitWindow,
		CleanupSchedule: cfg.Supervisor.CleanupSchedule,
		AlertChannelID:  cfg.Supervisor.AlertChannelID,
		Owners:          b.Owners,
		DM:              dmOpener{b.rest},
		Sender:          alertSender{b.rest},
		Logger:          opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create supervisor: %w", err)
	}
	b.supervisor = supervisor
	b.bus.SetErrorSink(b.handleListenerError)

	b.kernel = aiml.NewKernel(aiml.Config{
		Bot:          map[string]string{"name": cfg.BotName("Chatter"), "master": cfg.Bot.Creator},
		MaxRecursion: cfg.AIML.MaxRecursion,
		Logger:       opts.Logger.WithComponent("aiml"),
		Now:          opts.Now,
	})
	b.skill = skill.New(b.kernel, skill.Config{
		PositiveConfidence: cfg.AIML.PositiveConfidence,
		NullConfidence:     cfg.AIML.NullConfidence,
		NullResponse:       cfg.AIML.NullResponse,
	})

	return b, nil
}

// Run connects and serves until ctx is cancelled, Close or Restart is
// called, or startup fails. Every exit path releases the HTTP client, the
// failure store and the metrics listener.
func (b *Bot) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.ctx, b.cancel = ctx, cancel
	b.mu.Unlock()

	defer func() {
		cancel()
		b.events.Wait()
		if releaseErr := b.release(); releaseErr != nil {
			b.log.WarnEvent(context.Background(), "shutdown incomplete", releaseErr)
		}
	}()

	if err := b.supervisor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}

	if _, err := b.LoadScripts(); err != nil {
		b.log.WarnEvent(ctx, "some aiml scripts were skipped", err)
	}

	if err := b.registry.Refresh(ctx); err != nil {
		b.log.WarnEvent(ctx, "extension discovery reported failures", err)
	}

	if app, err := b.rest.GetCurrentApplication(ctx); err != nil {
		b.log.WarnEvent(ctx, "could not fetch application owners", err)
	} else {
		b.mu.Lock()
		b.appOwners = app.OwnerIDs()
		b.mu.Unlock()
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return b.gateway.Run(egctx) })
	eg.Go(func() error {
		b.sampleGauges(egctx)
		return nil
	})
	eg.Go(func() error { return b.health.Run(egctx) })
	if b.cfg.Metrics.Enabled {
		eg.Go(func() error {
			if err := b.metrics.Serve(egctx, b.cfg.Metrics.Addr); err != nil {
				b.log.WarnEvent(egctx, "metrics listener stopped", err)
			}
			return nil
		})
	}

	runErr := eg.Wait()

	b.mu.Lock()
	fatal := b.fatal
	b.mu.Unlock()
	if fatal != nil {
		return fatal
	}
	return runErr
}

// sampleGauges refreshes latency and guild gauges until ctx ends
func (b *Bot) sampleGauges(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sh := range b.gateway.Shards() {
				b.metrics.SetGatewayLatency(strconv.Itoa(sh.ID), sh.Latency)
			}
			b.metrics.SetGuilds(b.cache.GuildCount())
		}
	}
}

// release runs on every exit path of Run
func (b *Bot) release() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs error
	errs = multierr.Append(errs, b.registry.UnloadAll(ctx))
	errs = multierr.Append(errs, b.supervisor.Stop())
	errs = multierr.Append(errs, b.metrics.Shutdown(ctx))
	if b.ownsHTTP {
		b.httpClient.CloseIdleConnections()
	}
	b.log.Info("bot connection closed")
	return errs
}

// fail aborts Run with err
func (b *Bot) fail(err error) {
	b.mu.Lock()
	if b.fatal == nil {
		b.fatal = err
	}
	cancel := b.cancel
	b.mu.Unlock()
	cancel()
}

// Close stops the bot; Run returns once shutdown completes
func (b *Bot) Close() {
	b.log.Info("closing bot connection")
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	b.gateway.Close()
	cancel()
}

// Restart stops the bot and asks the caller to start a new one
func (b *Bot) Restart() {
	b.restart.Store(true)
	b.Close()
}

// RestartRequested reports whether Run ended because of Restart
func (b *Bot) RestartRequested() bool {
	return b.restart.Load()
}

// LoadScripts learns the configured AIML directory
func (b *Bot) LoadScripts() (int, error) {
	return b.kernel.LearnDir(b.cfg.AIML.ScriptsDir)
}

// ResetBrain forgets every category and learns the scripts again
func (b *Bot) ResetBrain() (int, error) {
	b.kernel.ResetBrain()
	return b.LoadScripts()
}

// IsOwner reports whether userID may run owner-only commands: the
// configured owners plus the application's owners.
func (b *Bot) IsOwner(userID string) bool {
	if b.cfg.IsOwner(userID) {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.appOwners {
		if id == userID {
			return true
		}
	}
	return false
}

// Owners lists every owner id, configured owners first
func (b *Bot) Owners() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, id := range append(append([]string{}, b.cfg.Bot.Owners...), b.appOwners...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// UpdatePresence changes the activity on every shard
func (b *Bot) UpdatePresence(kind gateway.ActivityType, text string) error {
	return b.gateway.UpdatePresence(gateway.NewPresence(kind, text))
}

// User returns the bot user once READY arrived
func (b *Bot) User() *gateway.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.user
}

// Uptime returns the time since New
func (b *Bot) Uptime() time.Duration {
	return b.now().Sub(b.startTime)
}

func (b *Bot) Config() *config.Config          { return b.cfg }
func (b *Bot) Logger() *logger.Logger          { return b.log }
func (b *Bot) Audit() *logger.AuditLogger      { return b.audit }
func (b *Bot) REST() *gateway.Client           { return b.rest }
func (b *Bot) Cache() *gateway.Cache           { return b.cache }
func (b *Bot) Router() *command.Router         { return b.router }
func (b *Bot) Bus() *eventbus.Bus              { return b.bus }
func (b *Bot) Registry() *extension.Registry   { return b.registry }
func (b *Bot) Supervisor() *errors.Supervisor  { return b.supervisor }
func (b *Bot) Metrics() *metrics.Metrics       { return b.metrics }
func (b *Bot) Health() *health.Monitor         { return b.health }
func (b *Bot) Sockets() *SocketStats           { return b.sockets }
func (b *Bot) Kernel() *aiml.Kernel            { return b.kernel }
func (b *Bot) Skill() *skill.Skill             { return b.skill }
func (b *Bot) Shards() []gateway.ShardInfo     { return b.gateway.Shards() }
