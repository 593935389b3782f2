package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
)

// fakeGateway is a minimal gateway server. Each accepted connection gets a
// hello, then script runs with the connection.
type fakeGateway struct {
	t        *testing.T
	upgrader websocket.Upgrader
	script   func(conn *websocket.Conn, attempt int)

	mu       sync.Mutex
	attempts int
}

func newFakeGateway(t *testing.T, script func(conn *websocket.Conn, attempt int)) (*fakeGateway, string) {
	fg := &fakeGateway{t: t, script: script}
	srv := httptest.NewServer(http.HandlerFunc(fg.serve))
	t.Cleanup(srv.Close)
	return fg, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (fg *fakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := fg.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	fg.mu.Lock()
	fg.attempts++
	attempt := fg.attempts
	fg.mu.Unlock()

	send(conn, opHello, 0, "", hello{HeartbeatInterval: 20})
	fg.script(conn, attempt)
}

func send(conn *websocket.Conn, op int, seq int64, event string, d any) error {
	raw, _ := json.Marshal(d)
	p := payload{Op: op, D: raw, T: event}
	if seq > 0 {
		p.S = &seq
	}
	return conn.WriteJSON(p)
}

func readOp(conn *websocket.Conn) (payload, error) {
	var p payload
	err := conn.ReadJSON(&p)
	return p, err
}

// serveUntilClosed acknowledges heartbeats and forwards every other payload
func serveUntilClosed(conn *websocket.Conn, ack bool, others chan<- payload) {
	for {
		p, err := readOp(conn)
		if err != nil {
			return
		}
		switch {
		case p.Op == opHeartbeat && ack:
			send(conn, opHeartbeatAck, 0, "", nil)
		case p.Op != opHeartbeat && others != nil:
			others <- p
		}
	}
}

func testSession(url string, onEvent func(Event)) *Session {
	return NewSession(SessionConfig{
		URL:        url,
		Token:      "secret",
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
		OnEvent:    onEvent,
		Logger:     logger.Discard(),
	})
}

func TestSession_IdentifyAndDispatch(t *testing.T) {
	identified := make(chan identify, 1)
	presences := make(chan payload, 1)

	_, url := newFakeGateway(t, func(conn *websocket.Conn, attempt int) {
		p, err := readOp(conn)
		if err != nil || p.Op != opIdentify {
			return
		}
		var id identify
		json.Unmarshal(p.D, &id)
		identified <- id

		send(conn, opDispatch, 1, EventReady, Ready{SessionID: "sess", User: User{ID: "bot"}})
		send(conn, opDispatch, 2, EventGuildCreate, Guild{ID: "g1", Name: "Lounge", MemberCount: 3})
		send(conn, opDispatch, 3, EventMessageCreate, Message{ID: "m1", Content: "hi"})
		send(conn, opDispatch, 4, "TYPING_START", map[string]string{"user_id": "1"})
		serveUntilClosed(conn, true, presences)
	})

	var mu sync.Mutex
	var events []Event
	done := make(chan struct{})
	session := testSession(url, func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
		if len(events) == 4 {
			close(done)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- session.Run(ctx) }()

	id := <-identified
	assert.Equal(t, "secret", id.Token)
	assert.Equal(t, DefaultIntents, id.Intents)
	assert.Nil(t, id.Shard)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("events not delivered")
	}

	mu.Lock()
	assert.Equal(t, EventReady, events[0].Type)
	assert.IsType(t, &Ready{}, events[0].Data)
	assert.IsType(t, &Guild{}, events[1].Data)
	assert.Equal(t, "hi", events[2].Data.(*Message).Content)
	assert.Equal(t, "TYPING_START", events[3].Type)
	assert.Nil(t, events[3].Data)
	mu.Unlock()

	assert.Equal(t, "sess", session.SessionID())
	assert.True(t, session.Connected())

	require.NoError(t, session.UpdatePresence(NewPresence(ActivityWatching, "you")))
	select {
	case p := <-presences:
		assert.Equal(t, opPresenceUpdate, p.Op)
		var presence Presence
		require.NoError(t, json.Unmarshal(p.D, &presence))
		assert.Equal(t, ActivityWatching, presence.Activities[0].Type)
	case <-time.After(5 * time.Second):
		t.Fatal("presence update not received")
	}

	cancel()
	assert.NoError(t, <-runErr)
	assert.False(t, session.Connected())
	assert.ErrorIs(t, session.UpdatePresence(Presence{}), ErrNotConnected)
}

func TestSession_LatencyFromAck(t *testing.T) {
	_, url := newFakeGateway(t, func(conn *websocket.Conn, attempt int) {
		readOp(conn)
		serveUntilClosed(conn, true, nil)
	})

	session := testSession(url, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	assert.Eventually(t, func() bool { return session.Latency() > 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestSession_HeartbeatTimeoutReconnects(t *testing.T) {
	_, url := newFakeGateway(t, func(conn *websocket.Conn, attempt int) {
		readOp(conn)
		// never acknowledge
		serveUntilClosed(conn, false, nil)
	})

	causes := make(chan error, 4)
	session := NewSession(SessionConfig{
		URL:              url,
		Token:            "secret",
		HeartbeatTimeout: 50 * time.Millisecond,
		MinBackoff:       10 * time.Millisecond,
		OnReconnect: func(_ int, cause error) {
			select {
			case causes <- cause:
			default:
			}
		},
		Logger: logger.Discard(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	select {
	case cause := <-causes:
		assert.ErrorIs(t, cause, errHeartbeatTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("heartbeat timeout not detected")
	}
}

func TestSession_ResumesAfterReconnectRequest(t *testing.T) {
	resumed := make(chan resume, 1)

	_, url := newFakeGateway(t, func(conn *websocket.Conn, attempt int) {
		p, err := readOp(conn)
		if err != nil {
			return
		}
		if attempt == 1 {
			send(conn, opDispatch, 1, EventReady, Ready{SessionID: "sess"})
			send(conn, opReconnect, 0, "", nil)
			serveUntilClosed(conn, true, nil)
			return
		}
		if p.Op == opResume {
			var r resume
			json.Unmarshal(p.D, &r)
			resumed <- r
		}
		serveUntilClosed(conn, true, nil)
	})

	session := testSession(url, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	select {
	case r := <-resumed:
		assert.Equal(t, "sess", r.SessionID)
		assert.Equal(t, int64(1), r.Seq)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not resume")
	}
}

func TestSession_AuthenticationFailureStops(t *testing.T) {
	_, url := newFakeGateway(t, func(conn *websocket.Conn, attempt int) {
		readOp(conn)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4004, "Authentication failed."))
		time.Sleep(50 * time.Millisecond)
	})

	err := testSession(url, nil).Run(context.Background())
	assert.True(t, stderrors.Is(err, ErrAuthenticationFailed), "got %v", err)
}

func TestGatewayURL(t *testing.T) {
	got, err := gatewayURL("wss://gateway.example/?v=9")
	require.NoError(t, err)
	assert.Contains(t, got, "v=9")
	assert.Contains(t, got, "encoding=json")
}

func TestGateway_ShardsAndPresence(t *testing.T) {
	_, url := newFakeGateway(t, func(conn *websocket.Conn, attempt int) {
		readOp(conn)
		serveUntilClosed(conn, true, nil)
	})

	gw := New(Config{URL: url, ShardCount: 2, Token: "secret", Logger: logger.Discard()}, nil, nil)
	assert.ErrorIs(t, gw.UpdatePresence(Presence{}), ErrNotConnected)

	done := make(chan error, 1)
	go func() { done <- gw.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		shards := gw.Shards()
		return len(shards) == 2 && shards[0].Connected && shards[1].Connected
	}, 5*time.Second, 10*time.Millisecond)

	assert.NoError(t, gw.UpdatePresence(NewPresence(ActivityPlaying, "chess")))
	assert.Equal(t, 2, gw.Shards()[1].Count)

	gw.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not stop")
	}
}

func TestGateway_ResolveViaREST(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url":"wss://gateway.example","shards":3}`))
	})

	gw := New(Config{Logger: logger.Discard()}, client, nil)
	url, shards, err := gw.resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wss://gateway.example", url)
	assert.Equal(t, 3, shards)

	_, _, err = New(Config{Logger: logger.Discard()}, nil, nil).resolve(context.Background())
	assert.Error(t, err)
}

func TestShardFor(t *testing.T) {
	assert.Equal(t, 0, ShardFor("81384788765712384", 1))
	assert.Equal(t, int((uint64(81384788765712384)>>22)%2), ShardFor("81384788765712384", 2))
	assert.Equal(t, 0, ShardFor("not-a-number", 4))
}
