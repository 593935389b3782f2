// Package health tracks gateway shard health and reports shards that stay
// disconnected or lag behind their heartbeat
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/gateway"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
)

// Shard states
const (
	StateStarting     = "starting"
	StateConnected    = "connected"
	StateDisconnected = "disconnected"
	StateLagging      = "lagging"
)

// ShardHealth holds health status for one shard
type ShardHealth struct {
	ID           int           `json:"id"`
	State        string        `json:"state"`
	Latency      time.Duration `json:"latency_ns"`
	FailureCount int           `json:"failure_count"`
	LastCheck    time.Time     `json:"last_check"`
	LastHealthy  time.Time     `json:"last_healthy,omitzero"`
}

// Probe returns the current view of every shard
type Probe func() []gateway.ShardInfo

// FailureHandler is called once when a shard reaches MaxFailures
type FailureHandler func(shard int, reason string)

// MonitorConfig holds configuration for health monitoring
type MonitorConfig struct {
	CheckInterval time.Duration // How often to probe the shards
	MaxFailures   int           // Consecutive failed checks before reporting
	MaxLatency    time.Duration // Heartbeat latency considered lagging

	// StartupGrace is how long a shard that never connected counts as
	// starting rather than failing
	StartupGrace time.Duration
}

// DefaultMonitorConfig returns default monitoring configuration
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		CheckInterval: 30 * time.Second,
		MaxFailures:   3,
		MaxLatency:    10 * time.Second,
		StartupGrace:  2 * time.Minute,
	}
}

// Monitor probes shards on an interval
type Monitor struct {
	probe     Probe
	cfg       MonitorConfig
	log       *logger.Logger
	now       func() time.Time
	started   time.Time
	onFailure FailureHandler

	mu     sync.RWMutex
	shards map[int]*ShardHealth
}

// NewMonitor creates a monitor. Zero config fields take their defaults.
func NewMonitor(probe Probe, cfg MonitorConfig, log *logger.Logger) *Monitor {
	def := DefaultMonitorConfig()
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.MaxLatency == 0 {
		cfg.MaxLatency = def.MaxLatency
	}
	if cfg.StartupGrace == 0 {
		cfg.StartupGrace = def.StartupGrace
	}
	if log == nil {
		log = logger.Global()
	}

	return &Monitor{
		probe:   probe,
		cfg:     cfg,
		log:     log.WithComponent("health"),
		now:     time.Now,
		started: time.Now(),
		shards:  make(map[int]*ShardHealth),
	}
}

// SetClock replaces the time source. Used by tests.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
	m.started = now()
}

// SetFailureHandler sets the handler for shards that keep failing
func (m *Monitor) SetFailureHandler(handler FailureHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFailure = handler
}

// Run checks the shards every CheckInterval until ctx is cancelled
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("health monitor started",
		"check_interval", m.cfg.CheckInterval,
		"max_failures", m.cfg.MaxFailures)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("health monitor stopped")
			return nil
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check probes every shard once
func (m *Monitor) Check() {
	now := m.now()
	type failure struct {
		shard  int
		reason string
	}
	var failed []failure

	m.mu.Lock()
	for _, info := range m.probe() {
		h, ok := m.shards[info.ID]
		if !ok {
			h = &ShardHealth{ID: info.ID}
			m.shards[info.ID] = h
		}
		h.LastCheck = now
		h.Latency = info.Latency

		switch {
		case info.Connected && info.Latency <= m.cfg.MaxLatency:
			h.State = StateConnected
			h.FailureCount = 0
			h.LastHealthy = now
			continue
		case !info.Connected && h.LastHealthy.IsZero() && now.Sub(m.started) < m.cfg.StartupGrace:
			h.State = StateStarting
			continue
		case info.Connected:
			h.State = StateLagging
		default:
			h.State = StateDisconnected
		}

		h.FailureCount++
		m.log.Debug("shard check failed",
			slog.Int("shard", info.ID),
			slog.String("state", h.State),
			slog.Int("failure_count", h.FailureCount))

		if h.FailureCount == m.cfg.MaxFailures {
			failed = append(failed, failure{info.ID, m.reason(h)})
		}
	}
	handler := m.onFailure
	m.mu.Unlock()

	for _, f := range failed {
		m.log.Warn("shard unhealthy", "shard", f.shard, "reason", f.reason)
		if handler != nil {
			handler(f.shard, f.reason)
		}
	}
}

func (m *Monitor) reason(h *ShardHealth) string {
	if h.State == StateLagging {
		return fmt.Sprintf("heartbeat latency %s over %s for %d checks", h.Latency, m.cfg.MaxLatency, h.FailureCount)
	}
	return fmt.Sprintf("disconnected for %d checks", h.FailureCount)
}

// Status returns a copy of every tracked shard ordered by id
func (m *Monitor) Status() []ShardHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ShardHealth, 0, len(m.shards))
	for _, h := range m.shards {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Healthy reports whether no shard has reached MaxFailures
func (m *Monitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.shards {
		if h.FailureCount >= m.cfg.MaxFailures {
			return false
		}
	}
	return true
}

// ServeHTTP answers 200 when healthy and 503 otherwise, with the shard
// states as JSON
func (m *Monitor) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !m.Healthy() {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(struct {
		Status string        `json:"status"`
		Shards []ShardHealth `json:"shards"`
	}{status, m.Status()})
}
