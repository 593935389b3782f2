package errors

import (
	"context"
	stderrors "errors"
	"sync"
	"time"
)

// AlertTarget is the channel operator alerts are posted to
type AlertTarget struct {
	ChannelID string `json:"channel_id"`
	Source    string `json:"source"` // "config", "owner_dm"
}

// DMOpener opens a direct-message channel with a user
type DMOpener interface {
	OpenDM(ctx context.Context, userID string) (string, error)
}

// ErrNoAlertTarget is returned when neither an alert channel nor an owner is
// configured
var ErrNoAlertTarget = stderrors.New("no alert target could be resolved")

// AlertResolver picks the alert channel: the configured channel first, then
// a DM with the first owner that can be reached.
type AlertResolver struct {
	mu sync.Mutex

	channelID string
	owners    func() []string
	dm        DMOpener

	cached      *AlertTarget
	cacheExpiry time.Time
	cacheTTL    time.Duration
}

// AlertConfig configures the alert resolver
type AlertConfig struct {
	ChannelID string
	Owners    func() []string
	DM        DMOpener
	CacheTTL  time.Duration
}

// NewAlertResolver creates a resolver
func NewAlertResolver(cfg AlertConfig) *AlertResolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &AlertResolver{
		channelID: cfg.ChannelID,
		owners:    cfg.Owners,
		dm:        cfg.DM,
		cacheTTL:  cfg.CacheTTL,
	}
}

// Resolve returns the alert target, caching owner DM lookups
func (r *AlertResolver) Resolve(ctx context.Context) (*AlertTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channelID != "" {
		return &AlertTarget{ChannelID: r.channelID, Source: "config"}, nil
	}
	if r.cached != nil && time.Now().Before(r.cacheExpiry) {
		return r.cached, nil
	}

	if r.owners == nil || r.dm == nil {
		return nil, ErrNoAlertTarget
	}

	var lastErr error
	for _, owner := range r.owners() {
		channelID, err := r.dm.OpenDM(ctx, owner)
		if err != nil {
			lastErr = err
			continue
		}
		r.cached = &AlertTarget{ChannelID: channelID, Source: "owner_dm"}
		r.cacheExpiry = time.Now().Add(r.cacheTTL)
		return r.cached, nil
	}

	if lastErr != nil {
		return nil, stderrors.Join(ErrNoAlertTarget, lastErr)
	}
	return nil, ErrNoAlertTarget
}

// SetChannel overrides the configured alert channel
func (r *AlertResolver) SetChannel(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channelID = channelID
	r.cached = nil
}
