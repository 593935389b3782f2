package bot

import (
	"maps"
	"sync"
	"time"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/command"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/gateway"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/present"
)

// SocketStats counts gateway dispatches by event name
type SocketStats struct {
	mu     sync.Mutex
	counts map[string]int
	since  time.Time
	now    func() time.Time
}

// NewSocketStats creates an empty counter
func NewSocketStats(now func() time.Time) *SocketStats {
	if now == nil {
		now = time.Now
	}
	return &SocketStats{counts: make(map[string]int), since: now(), now: now}
}

// Add counts one event. Empty names are counted as UNKNOWN.
func (s *SocketStats) Add(event string) {
	if event == "" {
		event = "UNKNOWN"
	}
	s.mu.Lock()
	s.counts[event]++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counts and the time since the last reset
func (s *SocketStats) Snapshot() (map[string]int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.counts), s.now().Sub(s.since)
}

// Reset clears every count
func (s *SocketStats) Reset() {
	s.mu.Lock()
	s.counts = make(map[string]int)
	s.since = s.now()
	s.mu.Unlock()
}

// Snapshot gathers the bot state shown by the status commands. c may be nil.
func (b *Bot) Snapshot(c *command.Context) present.Snapshot {
	shards := b.gateway.Shards()
	s := present.Snapshot{
		BotName:      b.cfg.BotName("Chatter"),
		Creator:      b.cfg.Bot.Creator,
		Version:      b.cfg.Bot.Version,
		Guilds:       b.cache.GuildCount(),
		Members:      b.cache.MemberCount(),
		Commands:     b.router.Len(),
		Uptime:       b.Uptime(),
		ShardCount:   len(shards),
		CurrentShard: -1,
	}
	if user := b.User(); user != nil {
		if b.cfg.Bot.Branding == "" {
			s.BotName = user.Username
		}
		s.AvatarURL = avatarURL(user)
	}
	if c != nil && c.Message != nil && c.Message.GuildID != "" {
		s.CurrentShard = gateway.ShardFor(c.Message.GuildID, max(len(shards), 1))
	}
	return s
}

func avatarURL(u *gateway.User) string {
	if u.Avatar == "" {
		return ""
	}
	return "https://cdn.discordapp.com/avatars/" + u.ID + "/" + u.Avatar + ".png"
}
