package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/url"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
)

// Gateway opcodes
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opPresenceUpdate = 3
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// Dispatch event names consumed by the runtime
const (
	EventReady         = "READY"
	EventResumed       = "RESUMED"
	EventGuildCreate   = "GUILD_CREATE"
	EventGuildDelete   = "GUILD_DELETE"
	EventChannelCreate = "CHANNEL_CREATE"
	EventChannelUpdate = "CHANNEL_UPDATE"
	EventChannelDelete = "CHANNEL_DELETE"
	EventMessageCreate = "MESSAGE_CREATE"
	EventReactionAdd   = "MESSAGE_REACTION_ADD"
)

// Intents
const (
	IntentGuilds                 = 1 << 0
	IntentGuildMessages          = 1 << 9
	IntentGuildMessageReactions  = 1 << 10
	IntentDirectMessages         = 1 << 12
	IntentDirectMessageReactions = 1 << 13
	IntentMessageContent         = 1 << 15

	DefaultIntents = IntentGuilds | IntentGuildMessages | IntentGuildMessageReactions |
		IntentDirectMessages | IntentDirectMessageReactions | IntentMessageContent
)

const (
	// DefaultHeartbeatTimeout is how long a session waits for a heartbeat ACK
	// before treating the connection as lost
	DefaultHeartbeatTimeout = 150 * time.Second

	apiVersion   = "10"
	writeTimeout = 10 * time.Second
)

var (
	// ErrNotConnected is returned when a write is attempted without a connection
	ErrNotConnected = stderrors.New("gateway: not connected")

	// ErrAuthenticationFailed is returned when the gateway rejects the token.
	// Sessions do not reconnect after it.
	ErrAuthenticationFailed = stderrors.New("gateway: authentication failed")

	errHeartbeatTimeout   = stderrors.New("gateway: heartbeat ack timeout")
	errReconnectRequested = stderrors.New("gateway: reconnect requested")
	errInvalidSession     = stderrors.New("gateway: invalid session")
)

// fatalCloseCodes end a session without reconnecting
var fatalCloseCodes = []int{4004, 4010, 4011, 4012, 4013, 4014}

type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type outbound struct {
	Op int `json:"op"`
	D  any `json:"d"`
}

type hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identify struct {
	Token      string            `json:"token"`
	Intents    int               `json:"intents"`
	Properties map[string]string `json:"properties"`
	Shard      []int             `json:"shard,omitempty"`
	Presence   *Presence         `json:"presence,omitempty"`
}

type resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// SessionConfig configures one shard's connection
type SessionConfig struct {
	URL              string
	Token            string
	Intents          int
	ShardID          int
	ShardCount       int
	HeartbeatTimeout time.Duration
	Presence         *Presence
	Dialer           *websocket.Dialer
	MinBackoff       time.Duration
	MaxBackoff       time.Duration

	// OnEvent receives every dispatch in arrival order
	OnEvent func(Event)

	// OnReconnect is called before every reconnect attempt
	OnReconnect func(shard int, cause error)

	Logger *logger.Logger
}

// Session is a single shard connection. Run keeps it connected until the
// context is cancelled.
type Session struct {
	cfg SessionConfig
	log *logger.Logger

	writeMu sync.Mutex

	mu        sync.RWMutex
	conn      *websocket.Conn
	sessionID string
	resumeURL string

	seq           atomic.Int64
	latency       atomic.Int64
	lastHeartbeat atomic.Int64
	lastAck       atomic.Int64
}

// NewSession creates a session
func NewSession(cfg SessionConfig) *Session {
	if cfg.Intents == 0 {
		cfg.Intents = DefaultIntents
	}
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = 1
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global().WithComponent("gateway")
	}

	return &Session{
		cfg: cfg,
		log: cfg.Logger,
	}
}

// ShardID returns the shard this session serves
func (s *Session) ShardID() int {
	return s.cfg.ShardID
}

// ShardCount returns the total shard count
func (s *Session) ShardCount() int {
	return s.cfg.ShardCount
}

// Latency returns the last heartbeat round trip
func (s *Session) Latency() time.Duration {
	return time.Duration(s.latency.Load())
}

// Connected reports whether a websocket is currently open
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

// SessionID returns the id assigned by READY, empty before that
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Run connects and reconnects with exponential backoff until ctx is done.
// It returns nil on cancellation and ErrAuthenticationFailed when the
// gateway rejects the credentials.
func (s *Session) Run(ctx context.Context) error {
	backoff := s.cfg.MinBackoff

	for {
		start := time.Now()
		err := s.connect(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if stderrors.Is(err, ErrAuthenticationFailed) {
			return err
		}

		// a connection that stayed up resets the backoff
		if time.Since(start) > s.cfg.MaxBackoff {
			backoff = s.cfg.MinBackoff
		}

		s.log.Warn("gateway connection lost",
			"shard", s.cfg.ShardID,
			"error", err,
			"retry_in", backoff,
		)
		if s.cfg.OnReconnect != nil {
			s.cfg.OnReconnect(s.cfg.ShardID, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
}

// UpdatePresence sends an op 3 presence update
func (s *Session) UpdatePresence(p Presence) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return s.write(conn, opPresenceUpdate, p)
}

func (s *Session) connect(ctx context.Context) error {
	s.mu.RLock()
	target := s.cfg.URL
	resuming := s.sessionID != ""
	if resuming && s.resumeURL != "" {
		target = s.resumeURL
	}
	s.mu.RUnlock()

	target, err := gatewayURL(target)
	if err != nil {
		return err
	}

	conn, _, err := s.cfg.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.Close()

	// unblock the read loop on cancellation
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	interval, err := s.readHello(conn)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	if resuming {
		err = s.sendResume(conn)
	} else {
		err = s.sendIdentify(conn)
	}
	if err != nil {
		return err
	}

	s.lastAck.Store(time.Now().UnixNano())

	var timedOut atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.heartbeatLoop(gctx, conn, interval, &timedOut) })
	g.Go(func() error { return s.readLoop(conn) })
	err = g.Wait()

	// closing the socket also fails the read loop, report the root cause
	if timedOut.Load() {
		return errHeartbeatTimeout
	}
	return err
}

func gatewayURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	q := u.Query()
	if q.Get("v") == "" {
		q.Set("v", apiVersion)
	}
	if q.Get("encoding") == "" {
		q.Set("encoding", "json")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Session) readHello(conn *websocket.Conn) (time.Duration, error) {
	var p payload
	if err := conn.ReadJSON(&p); err != nil {
		return 0, fmt.Errorf("read hello: %w", err)
	}
	if p.Op != opHello {
		return 0, fmt.Errorf("expected hello, got op %d", p.Op)
	}

	var h hello
	if err := json.Unmarshal(p.D, &h); err != nil {
		return 0, fmt.Errorf("decode hello: %w", err)
	}
	if h.HeartbeatInterval <= 0 {
		return 0, fmt.Errorf("invalid heartbeat interval %d", h.HeartbeatInterval)
	}
	return time.Duration(h.HeartbeatInterval) * time.Millisecond, nil
}

func (s *Session) sendIdentify(conn *websocket.Conn) error {
	id := identify{
		Token:   s.cfg.Token,
		Intents: s.cfg.Intents,
		Properties: map[string]string{
			"os":      runtime.GOOS,
			"browser": "aiml-chatter-bot",
			"device":  "aiml-chatter-bot",
		},
		Presence: s.cfg.Presence,
	}
	if s.cfg.ShardCount > 1 {
		id.Shard = []int{s.cfg.ShardID, s.cfg.ShardCount}
	}
	return s.write(conn, opIdentify, id)
}

func (s *Session) sendResume(conn *websocket.Conn) error {
	s.mu.RLock()
	r := resume{Token: s.cfg.Token, SessionID: s.sessionID, Seq: s.seq.Load()}
	s.mu.RUnlock()
	return s.write(conn, opResume, r)
}

func (s *Session) sendHeartbeat(conn *websocket.Conn) error {
	var d any
	if seq := s.seq.Load(); seq > 0 {
		d = seq
	}
	s.lastHeartbeat.Store(time.Now().UnixNano())
	return s.write(conn, opHeartbeat, d)
}

func (s *Session) write(conn *websocket.Conn, op int, d any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(outbound{Op: op, D: d}); err != nil {
		return fmt.Errorf("write op %d: %w", op, err)
	}
	return nil
}

func (s *Session) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration, timedOut *atomic.Bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Since(time.Unix(0, s.lastAck.Load())) > s.cfg.HeartbeatTimeout {
			timedOut.Store(true)
			conn.Close()
			return errHeartbeatTimeout
		}
		if err := s.sendHeartbeat(conn); err != nil {
			return err
		}
	}
}

func (s *Session) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, fatalCloseCodes...) {
				return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
			}
			return fmt.Errorf("read: %w", err)
		}

		var p payload
		if err := json.Unmarshal(data, &p); err != nil {
			s.log.Warn("undecodable gateway payload", "shard", s.cfg.ShardID, "error", err)
			continue
		}

		switch p.Op {
		case opDispatch:
			if p.S != nil {
				s.seq.Store(*p.S)
			}
			s.dispatch(p)
		case opHeartbeat:
			if err := s.sendHeartbeat(conn); err != nil {
				return err
			}
		case opHeartbeatAck:
			now := time.Now()
			s.lastAck.Store(now.UnixNano())
			if sent := s.lastHeartbeat.Load(); sent > 0 {
				s.latency.Store(int64(now.Sub(time.Unix(0, sent))))
			}
		case opReconnect:
			return errReconnectRequested
		case opInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.D, &resumable)
			if !resumable {
				s.mu.Lock()
				s.sessionID = ""
				s.resumeURL = ""
				s.mu.Unlock()
				s.seq.Store(0)
			}
			return errInvalidSession
		}
	}
}

func (s *Session) dispatch(p payload) {
	ev := Event{
		Type:  p.T,
		Shard: s.cfg.ShardID,
		Seq:   s.seq.Load(),
		Raw:   p.D,
	}

	var target any
	switch p.T {
	case EventReady:
		target = &Ready{}
	case EventGuildCreate:
		target = &Guild{}
	case EventGuildDelete:
		target = &UnavailableGuild{}
	case EventChannelCreate, EventChannelUpdate, EventChannelDelete:
		target = &Channel{}
	case EventMessageCreate:
		target = &Message{}
	case EventReactionAdd:
		target = &ReactionAdd{}
	}

	if target != nil {
		if err := json.Unmarshal(p.D, target); err != nil {
			s.log.Warn("undecodable dispatch", "shard", s.cfg.ShardID, "event", p.T, "error", err)
		} else {
			ev.Data = target
		}
	}

	if ready, ok := ev.Data.(*Ready); ok {
		s.mu.Lock()
		s.sessionID = ready.SessionID
		s.resumeURL = ready.ResumeGatewayURL
		s.mu.Unlock()
	}

	if s.cfg.OnEvent != nil {
		s.cfg.OnEvent(ev)
	}
}
