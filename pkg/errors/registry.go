package errors

import (
	"sync"
	"time"
)

// SampleRecord tracks occurrences of one failure signature
type SampleRecord struct {
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Count     int       `json:"count"`
	TraceID   string    `json:"trace_id"`
	Notified  bool      `json:"notified"`
}

// SamplingRegistry rate limits operator alerts per failure signature
type SamplingRegistry struct {
	seen            map[string]*SampleRecord
	mu              sync.Mutex
	rateLimitWindow time.Duration
	retentionPeriod time.Duration
	lastCleanup     time.Time
}

// SamplingConfig configures the sampling registry
type SamplingConfig struct {
	RateLimitWindow time.Duration // default 5m
	RetentionPeriod time.Duration // default 24h
}

// DefaultSamplingConfig returns default configuration
func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		RateLimitWindow: 5 * time.Minute,
		RetentionPeriod: 24 * time.Hour,
	}
}

// NewSamplingRegistry creates a new sampling registry
func NewSamplingRegistry(cfg SamplingConfig) *SamplingRegistry {
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = 5 * time.Minute
	}
	if cfg.RetentionPeriod <= 0 {
		cfg.RetentionPeriod = 24 * time.Hour
	}

	return &SamplingRegistry{
		seen:            make(map[string]*SampleRecord),
		rateLimitWindow: cfg.RateLimitWindow,
		retentionPeriod: cfg.RetentionPeriod,
		lastCleanup:     time.Now(),
	}
}

// Signature groups failures for sampling: the kind plus the command it came
// from, so one broken command does not mute alerts for another.
func Signature(f *Failure) string {
	if f.Context.Command != nil {
		return string(f.Kind) + "@" + f.Context.Command.String()
	}
	if f.Context.Extension != "" {
		return string(f.Kind) + "@" + f.Context.Extension
	}
	return string(f.Kind)
}

// ShouldNotify reports whether f should reach the operator.
//   - Critical: always
//   - First occurrence of a signature: yes
//   - Repeat within the window: no, counted
//   - Repeat after the window: yes, returning the accumulated count
func (r *SamplingRegistry) ShouldNotify(f *Failure) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.maybeCleanup(f.Timestamp)

	sig := Signature(f)
	record, exists := r.seen[sig]

	if !exists {
		r.seen[sig] = &SampleRecord{
			FirstSeen: f.Timestamp,
			LastSeen:  f.Timestamp,
			Count:     1,
			TraceID:   f.TraceID,
			Notified:  true,
		}
		return true, 0
	}

	if f.Severity == SeverityCritical {
		record.LastSeen = f.Timestamp
		record.Count++
		record.TraceID = f.TraceID
		return true, 0
	}

	if f.Timestamp.Sub(record.LastSeen) < r.rateLimitWindow {
		record.Count++
		record.LastSeen = f.Timestamp
		return false, 0
	}

	repeats := record.Count
	record.LastSeen = f.Timestamp
	record.Count = 1
	record.TraceID = f.TraceID
	record.Notified = true
	return true, repeats
}

// Get returns a copy of the record for a signature
func (r *SamplingRegistry) Get(signature string) (SampleRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record, ok := r.seen[signature]; ok {
		return *record, true
	}
	return SampleRecord{}, false
}

// Forget drops a signature so its next occurrence counts as the first
func (r *SamplingRegistry) Forget(signature string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.seen, signature)
}

// Stats returns statistics about the registry
func (r *SamplingRegistry) Stats() SamplingStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := SamplingStats{
		Signatures:      len(r.seen),
		RateLimitWindow: r.rateLimitWindow,
		RetentionPeriod: r.retentionPeriod,
	}
	for _, record := range r.seen {
		stats.TotalOccurrences += record.Count
	}
	return stats
}

// SamplingStats holds registry statistics
type SamplingStats struct {
	Signatures       int           `json:"signatures"`
	TotalOccurrences int           `json:"total_occurrences"`
	RateLimitWindow  time.Duration `json:"rate_limit_window"`
	RetentionPeriod  time.Duration `json:"retention_period"`
}

func (r *SamplingRegistry) maybeCleanup(now time.Time) {
	if now.Sub(r.lastCleanup) < time.Hour {
		return
	}
	r.prune(now)
}

func (r *SamplingRegistry) prune(now time.Time) {
	r.lastCleanup = now
	for sig, record := range r.seen {
		if now.Sub(record.LastSeen) > r.retentionPeriod {
			delete(r.seen, sig)
		}
	}
}

// Prune drops records idle for longer than the retention period
func (r *SamplingRegistry) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(time.Now())
}
