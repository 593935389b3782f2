package command

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
)

// Cooldown allows Rate invocations per Per for each bucket
type Cooldown struct {
	Rate   int
	Per    time.Duration
	Bucket errors.BucketType
}

// Concurrency caps simultaneous invocations for each bucket
type Concurrency struct {
	Number int
	Bucket errors.BucketType
}

// bucketKey derives the limiter key for an invocation
func bucketKey(bucket errors.BucketType, c *Context) string {
	msg := c.Message
	switch bucket {
	case errors.BucketUser:
		return msg.Author.ID
	case errors.BucketGuild:
		if msg.GuildID != "" {
			return msg.GuildID
		}
		return msg.Author.ID
	case errors.BucketChannel:
		return msg.ChannelID
	case errors.BucketMember:
		return msg.GuildID + ":" + msg.Author.ID
	case errors.BucketCategory:
		if c.Channel.ParentID != "" {
			return c.Channel.ParentID
		}
		return msg.ChannelID
	case errors.BucketRole:
		if msg.Member != nil && len(msg.Member.Roles) > 0 {
			return msg.Member.Roles[0]
		}
		return msg.ChannelID
	default:
		return ""
	}
}

const pruneThreshold = 256

type cooldownMapping struct {
	spec Cooldown

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func newCooldownMapping(spec Cooldown) *cooldownMapping {
	if spec.Rate <= 0 {
		spec.Rate = 1
	}
	if spec.Bucket == "" {
		spec.Bucket = errors.BucketDefault
	}
	return &cooldownMapping{spec: spec, buckets: make(map[string]*rate.Limiter)}
}

// take consumes one token for key and returns the remaining wait when the
// bucket is exhausted. A rejected attempt does not consume a token.
func (m *cooldownMapping) take(key string, now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.buckets) > pruneThreshold {
		m.prune(now)
	}

	lim, ok := m.buckets[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(m.spec.Per/time.Duration(m.spec.Rate)), m.spec.Rate)
		m.buckets[key] = lim
	}

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return m.spec.Per
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return delay
	}
	return 0
}

// reset forgets the bucket for key
func (m *cooldownMapping) reset(key string) {
	m.mu.Lock()
	delete(m.buckets, key)
	m.mu.Unlock()
}

// prune drops buckets that have fully refilled
func (m *cooldownMapping) prune(now time.Time) {
	for key, lim := range m.buckets {
		if lim.TokensAt(now) >= float64(lim.Burst()) {
			delete(m.buckets, key)
		}
	}
}

type concurrencyMapping struct {
	spec Concurrency

	mu      sync.Mutex
	running map[string]int
}

func newConcurrencyMapping(spec Concurrency) *concurrencyMapping {
	if spec.Number <= 0 {
		spec.Number = 1
	}
	if spec.Bucket == "" {
		spec.Bucket = errors.BucketDefault
	}
	return &concurrencyMapping{spec: spec, running: make(map[string]int)}
}

// acquire reserves a slot for key. The returned release must be called once.
func (m *concurrencyMapping) acquire(key string) (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running[key] >= m.spec.Number {
		return nil, false
	}
	m.running[key]++

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.running[key] <= 1 {
				delete(m.running, key)
				return
			}
			m.running[key]--
		})
	}, true
}
