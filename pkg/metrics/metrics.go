// Package metrics provides Prometheus metrics for the bot runtime
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatbot"

// Metrics groups every collector the runtime updates. Each instance owns its
// own registry so several bots (or tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	socketEvents     *prometheus.CounterVec
	commands         *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	failures         *prometheus.CounterVec
	extensions       *prometheus.GaugeVec
	gatewayLatency   *prometheus.GaugeVec
	gatewayReconnect *prometheus.CounterVec
	guilds           prometheus.Gauge
	chatReplies      *prometheus.CounterVec

	mu     sync.Mutex
	server *http.Server
	routes map[string]http.Handler
}

// New creates a metrics set registered on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		socketEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "socket_events_total",
				Help:      "Total number of gateway dispatch events received",
			},
			[]string{"event"},
		),

		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of command invocations by outcome",
			},
			[]string{"command", "outcome"},
		),

		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Time spent running command handlers",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"command"},
		),

		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "Total number of classified failures by rule and kind",
			},
			[]string{"rule", "kind"},
		),

		extensions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "extensions",
				Help:      "Number of known extensions per status",
			},
			[]string{"status"},
		),

		gatewayLatency: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "gateway_latency_seconds",
				Help:      "Heartbeat round trip per shard",
			},
			[]string{"shard"},
		),

		gatewayReconnect: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_reconnects_total",
				Help:      "Total number of gateway reconnect attempts per shard",
			},
			[]string{"shard"},
		),

		guilds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "guilds",
				Help:      "Number of guilds in the cache",
			},
		),

		chatReplies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_replies_total",
				Help:      "Total number of conversational replies by confidence tier",
			},
			[]string{"tier"},
		),
	}

	m.registry.MustRegister(
		m.socketEvents,
		m.commands,
		m.commandDuration,
		m.failures,
		m.extensions,
		m.gatewayLatency,
		m.gatewayReconnect,
		m.guilds,
		m.chatReplies,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordSocketEvent counts one gateway dispatch
func (m *Metrics) RecordSocketEvent(event string) {
	m.socketEvents.WithLabelValues(event).Inc()
}

// RecordCommand records a finished command invocation
func (m *Metrics) RecordCommand(command, outcome string, duration time.Duration) {
	m.commands.WithLabelValues(command, outcome).Inc()
	if duration > 0 {
		m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
	}
}

// RecordFailure counts a classified failure
func (m *Metrics) RecordFailure(rule, kind string) {
	m.failures.WithLabelValues(rule, kind).Inc()
}

// SetExtensions replaces the per-status extension gauges
func (m *Metrics) SetExtensions(counts map[string]int) {
	m.extensions.Reset()
	for status, n := range counts {
		m.extensions.WithLabelValues(status).Set(float64(n))
	}
}

// SetGatewayLatency records the last heartbeat round trip of a shard
func (m *Metrics) SetGatewayLatency(shard string, latency time.Duration) {
	m.gatewayLatency.WithLabelValues(shard).Set(latency.Seconds())
}

// RecordReconnect counts a reconnect attempt of a shard
func (m *Metrics) RecordReconnect(shard string) {
	m.gatewayReconnect.WithLabelValues(shard).Inc()
}

// SetGuilds records the cached guild count
func (m *Metrics) SetGuilds(n int) {
	m.guilds.Set(float64(n))
}

// RecordChatReply counts a conversational reply
func (m *Metrics) RecordChatReply(tier string) {
	m.chatReplies.WithLabelValues(tier).Inc()
}

// Handler returns the HTTP exposition handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Handle adds a route to the exposition server. Call it before Serve.
func (m *Metrics) Handle(pattern string, h http.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.routes == nil {
		m.routes = make(map[string]http.Handler)
	}
	m.routes[pattern] = h
}

// Serve exposes /metrics and any added routes on addr until ctx is
// cancelled or Shutdown is called
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.mu.Lock()
	for pattern, h := range m.routes {
		mux.Handle(pattern, h)
	}
	m.mu.Unlock()

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	m.mu.Lock()
	m.server = srv
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.Shutdown(context.Background())
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the exposition server if it is running
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	srv := m.server
	m.server = nil
	m.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
