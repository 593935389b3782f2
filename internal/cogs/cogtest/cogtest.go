// Package cogtest runs bundled extensions against a bot wired to a fake REST
// API, for the extensions' tests.
package cogtest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/bot"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/config"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/extension"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/gateway"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
)

// Owner is the user id configured as bot owner
const Owner = "owner"

// API is a fake REST API that records what the bot sends
type API struct {
	mu        sync.Mutex
	sent      map[string][]gateway.MessageSend
	reactions []string
	nextID    int
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case r.Method == http.MethodPut && len(parts) >= 6 && parts[4] == "reactions":
		a.reactions = append(a.reactions, parts[5])
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "messages":
		var msg gateway.MessageSend
		_ = json.NewDecoder(r.Body).Decode(&msg)
		a.sent[parts[1]] = append(a.sent[parts[1]], msg)
		a.nextID++
		json.NewEncoder(w).Encode(gateway.Message{ID: "sent-" + strconv.Itoa(a.nextID), ChannelID: parts[1]})
	case r.Method == http.MethodGet && len(parts) == 4 && parts[2] == "messages":
		json.NewEncoder(w).Encode(gateway.Message{ID: parts[3], ChannelID: parts[1]})
	case r.Method == http.MethodDelete && parts[0] == "channels":
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":10003,"message":"Unknown"}`))
	}
}

// Messages returns what was posted to channel
func (a *API) Messages(channel string) []gateway.MessageSend {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]gateway.MessageSend(nil), a.sent[channel]...)
}

// Reactions returns every emoji the bot reacted with
func (a *API) Reactions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.reactions...)
}

// NewBot wires a bot whose only extensions are setups, loads them and
// registers cleanup. mutate may adjust the configuration first.
func NewBot(t *testing.T, setups map[string]extension.SetupFunc, mutate func(*config.Config)) (*bot.Bot, *API) {
	t.Helper()
	api := &API{sent: make(map[string][]gateway.MessageSend)}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.Bot.Token = "token"
	cfg.Bot.Owners = []string{Owner}
	cfg.Gateway.APIBaseURL = srv.URL
	cfg.AIML.ScriptsDir = filepath.Join(t.TempDir(), "aiml")
	cfg.Supervisor.StorePath = filepath.Join(t.TempDir(), "failures.db")
	if mutate != nil {
		mutate(cfg)
	}

	catalog := extension.NewCatalog()
	for id, setup := range setups {
		catalog.RegisterSetup(id, setup)
	}

	b, err := bot.New(bot.Options{
		Config:     cfg,
		Logger:     logger.Discard(),
		HTTPClient: srv.Client(),
		Sources:    []extension.Source{catalog},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		b.Registry().UnloadAll(context.Background())
		b.Supervisor().Stop()
	})

	require.NoError(t, b.Registry().Refresh(context.Background()))
	require.NoError(t, b.Registry().LoadAll(context.Background()))
	return b, api
}

// Message builds an inbound message. An empty guild makes it a DM.
func Message(author, channel, guild, content string) *gateway.Message {
	return &gateway.Message{
		ID:        "in-1",
		ChannelID: channel,
		GuildID:   guild,
		Author:    gateway.User{ID: author, Username: author},
		Content:   content,
	}
}
