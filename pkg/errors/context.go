package errors

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Breadcrumb is one recorded component event
type Breadcrumb struct {
	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
}

// RingBuffer is a thread-safe circular buffer of breadcrumbs
type RingBuffer struct {
	events []Breadcrumb
	size   int
	head   int
	count  int
	mu     sync.RWMutex
}

// NewRingBuffer creates a ring buffer with the given capacity
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 10
	}
	return &RingBuffer{
		events: make([]Breadcrumb, size),
		size:   size,
	}
}

// Add adds an event, overwriting the oldest when full
func (rb *RingBuffer) Add(event Breadcrumb) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.events[rb.head] = event
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}
}

// Last returns up to n most recent events, oldest first
func (rb *RingBuffer) Last(n int) []Breadcrumb {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 || n <= 0 {
		return nil
	}
	if n > rb.count {
		n = rb.count
	}

	result := make([]Breadcrumb, n)
	for i := 0; i < n; i++ {
		idx := (rb.head - 1 - i + rb.size) % rb.size
		result[n-1-i] = rb.events[idx]
	}
	return result
}

// Count returns the number of buffered events
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Tracker records breadcrumbs for one component
type Tracker struct {
	name   string
	buffer *RingBuffer
}

// Event records an event
func (t *Tracker) Event(event, detail string) {
	t.buffer.Add(Breadcrumb{
		Timestamp: time.Now(),
		Component: t.name,
		Event:     event,
		Detail:    detail,
	})
}

// Eventf records an event with a formatted detail
func (t *Tracker) Eventf(event, format string, args ...any) {
	t.Event(event, fmt.Sprintf(format, args...))
}

// Failure records a failed operation
func (t *Tracker) Failure(operation string, err error) {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	t.Event(operation+"_failure", detail)
}

// Recent returns up to n most recent events
func (t *Tracker) Recent(n int) []Breadcrumb {
	return t.buffer.Last(n)
}

// Breadcrumbs holds a tracker per component. The supervisor attaches the
// recent trail of the relevant components to every alert.
type Breadcrumbs struct {
	mu       sync.RWMutex
	size     int
	trackers map[string]*Tracker
}

// NewBreadcrumbs creates an empty set with the given per-component capacity
func NewBreadcrumbs(size int) *Breadcrumbs {
	return &Breadcrumbs{
		size:     size,
		trackers: make(map[string]*Tracker),
	}
}

// Component returns the tracker for name, creating it on first use
func (b *Breadcrumbs) Component(name string) *Tracker {
	b.mu.RLock()
	t, ok := b.trackers[name]
	b.mu.RUnlock()
	if ok {
		return t
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.trackers[name]; ok {
		return t
	}
	t = &Tracker{name: name, buffer: NewRingBuffer(b.size)}
	b.trackers[name] = t
	return t
}

// Recent merges up to n events from each named component, oldest first
func (b *Breadcrumbs) Recent(components []string, n int) []Breadcrumb {
	var all []Breadcrumb
	for _, name := range components {
		b.mu.RLock()
		t, ok := b.trackers[name]
		b.mu.RUnlock()
		if ok {
			all = append(all, t.Recent(n)...)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return all
}

// componentsFor maps a failure category to the components whose trail
// helps explain it
func componentsFor(category Category) []string {
	switch category {
	case CategoryTransport:
		return []string{"gateway", "rest"}
	case CategoryExtension:
		return []string{"extension"}
	case CategoryInvocation:
		return []string{"command", "extension", "gateway"}
	default:
		return []string{"command"}
	}
}
