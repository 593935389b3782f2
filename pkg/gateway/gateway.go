package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
)

// Config configures the sharded gateway
type Config struct {
	Token string

	// URL overrides the websocket URL returned by GET /gateway/bot
	URL string

	// ShardCount of zero uses the count recommended by the API
	ShardCount int

	Intents          int
	HeartbeatTimeout time.Duration
	Presence         *Presence
	Dialer           *websocket.Dialer
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
	Logger           *logger.Logger
}

// ShardInfo is a point-in-time view of one shard
type ShardInfo struct {
	ID        int
	Count     int
	Latency   time.Duration
	Connected bool
}

// Gateway runs one Session per shard and fans their events into a single
// handler.
type Gateway struct {
	cfg     Config
	rest    *Client
	handler func(Event)
	log     *logger.Logger

	// OnReconnect is forwarded to every session
	OnReconnect func(shard int, cause error)

	mu       sync.RWMutex
	sessions []*Session
	cancel   context.CancelFunc
}

// New creates a gateway. rest may be nil when cfg.URL and cfg.ShardCount
// are both set.
func New(cfg Config, rest *Client, handler func(Event)) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = logger.Global().WithComponent("gateway")
	}
	return &Gateway{
		cfg:     cfg,
		rest:    rest,
		handler: handler,
		log:     cfg.Logger,
	}
}

// Run resolves the shard layout, then runs every shard until ctx is
// cancelled, Close is called or a shard fails authentication.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	url, shards, err := g.resolve(ctx)
	if err != nil {
		return err
	}

	sessions := make([]*Session, shards)
	for i := range sessions {
		sessions[i] = NewSession(SessionConfig{
			URL:              url,
			Token:            g.cfg.Token,
			Intents:          g.cfg.Intents,
			ShardID:          i,
			ShardCount:       shards,
			HeartbeatTimeout: g.cfg.HeartbeatTimeout,
			Presence:         g.cfg.Presence,
			Dialer:           g.cfg.Dialer,
			MinBackoff:       g.cfg.MinBackoff,
			MaxBackoff:       g.cfg.MaxBackoff,
			OnEvent:          g.handler,
			OnReconnect:      g.OnReconnect,
			Logger:           g.log,
		})
	}

	g.mu.Lock()
	g.sessions = sessions
	g.cancel = cancel
	g.mu.Unlock()

	g.log.Info("connecting to gateway", "shards", shards)

	eg, egctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		eg.Go(func() error { return s.Run(egctx) })
	}
	return eg.Wait()
}

func (g *Gateway) resolve(ctx context.Context) (string, int, error) {
	url, shards := g.cfg.URL, g.cfg.ShardCount
	if url != "" && shards > 0 {
		return url, shards, nil
	}
	if g.rest == nil {
		return "", 0, fmt.Errorf("gateway url and shard count required without a REST client")
	}

	info, err := g.rest.GetGatewayBot(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("get gateway: %w", err)
	}
	if url == "" {
		url = info.URL
	}
	if shards <= 0 {
		shards = max(info.Shards, 1)
	}
	return url, shards, nil
}

// Close stops every shard
func (g *Gateway) Close() {
	g.mu.RLock()
	cancel := g.cancel
	g.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// UpdatePresence changes the presence on every connected shard
func (g *Gateway) UpdatePresence(p Presence) error {
	g.mu.RLock()
	sessions := g.sessions
	g.mu.RUnlock()

	if len(sessions) == 0 {
		return ErrNotConnected
	}

	var errs error
	for _, s := range sessions {
		errs = multierr.Append(errs, s.UpdatePresence(p))
	}
	return errs
}

// Shards returns the state of every shard ordered by id
func (g *Gateway) Shards() []ShardInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]ShardInfo, len(g.sessions))
	for i, s := range g.sessions {
		out[i] = ShardInfo{
			ID:        s.ShardID(),
			Count:     s.ShardCount(),
			Latency:   s.Latency(),
			Connected: s.Connected(),
		}
	}
	return out
}

// Latency averages the heartbeat latency over all shards
func (g *Gateway) Latency() time.Duration {
	shards := g.Shards()
	if len(shards) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range shards {
		total += s.Latency
	}
	return total / time.Duration(len(shards))
}

// ShardFor returns the shard a guild is routed to
func ShardFor(guildID string, shardCount int) int {
	if shardCount <= 1 {
		return 0
	}
	id, err := strconv.ParseUint(guildID, 10, 64)
	if err != nil {
		return 0
	}
	return int((id >> 22) % uint64(shardCount))
}
