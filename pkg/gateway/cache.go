package gateway

import (
	"sort"
	"sync"
)

// Cache tracks the guilds and channels announced over the gateway
type Cache struct {
	mu       sync.RWMutex
	guilds   map[string]*Guild
	channels map[string]Channel
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{
		guilds:   make(map[string]*Guild),
		channels: make(map[string]Channel),
	}
}

// AddGuild stores a guild and its channels, replacing any previous copy
func (c *Cache) AddGuild(g Guild) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.guilds[g.ID]; ok {
		for _, ch := range old.Channels {
			delete(c.channels, ch.ID)
		}
	}

	stored := g
	stored.Channels = make([]Channel, len(g.Channels))
	for i, ch := range g.Channels {
		ch.GuildID = g.ID
		stored.Channels[i] = ch
		c.channels[ch.ID] = ch
	}
	c.guilds[g.ID] = &stored
}

// RemoveGuild drops a guild and its channels
func (c *Cache) RemoveGuild(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.guilds[id]
	if !ok {
		return
	}
	for _, ch := range g.Channels {
		delete(c.channels, ch.ID)
	}
	delete(c.guilds, id)
}

// PutChannel stores a channel outside of a guild payload, e.g. a DM
func (c *Cache) PutChannel(ch Channel) {
	c.mu.Lock()
	c.channels[ch.ID] = ch
	c.mu.Unlock()
}

// Guild returns a copy of a cached guild
func (c *Cache) Guild(id string) (Guild, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.guilds[id]
	if !ok {
		return Guild{}, false
	}
	return *g, true
}

// Channel returns a cached channel
func (c *Cache) Channel(id string) (Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[id]
	return ch, ok
}

// Guilds returns every cached guild ordered by id
func (c *Cache) Guilds() []Guild {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Guild, 0, len(c.guilds))
	for _, g := range c.guilds {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GuildCount returns the number of cached guilds
func (c *Cache) GuildCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.guilds)
}

// MemberCount sums the member counts of every cached guild
func (c *Cache) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, g := range c.guilds {
		total += g.MemberCount
	}
	return total
}

// Apply updates the cache from a dispatch event
func (c *Cache) Apply(ev Event) {
	switch data := ev.Data.(type) {
	case *Guild:
		g := *data
		g.Shard = ev.Shard
		c.AddGuild(g)
	case *UnavailableGuild:
		// unavailable means an outage, not a removal
		if !data.Unavailable {
			c.RemoveGuild(data.ID)
		}
	case *Channel:
		if ev.Type == EventChannelDelete {
			c.mu.Lock()
			delete(c.channels, data.ID)
			c.mu.Unlock()
			return
		}
		c.PutChannel(*data)
	}
}
