package executor

import (
	"sync"
	"time"
)

// Dedup remembers keys for a fixed window. A zero or negative window
// remembers nothing. Expired entries are pruned lazily, at most once per
// window.
type Dedup struct {
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	expires   map[string]time.Time
	nextPrune time.Time
}

// NewDedup creates a Dedup that reports a key as seen for window after it
// was first recorded.
func NewDedup(window time.Duration) *Dedup {
	return &Dedup{
		window:  window,
		now:     time.Now,
		expires: make(map[string]time.Time),
	}
}

// Seen reports whether key was recorded within the window and records it
// when it was not. A repeat does not extend the window.
func (d *Dedup) Seen(key string) bool {
	if d.window <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.After(d.nextPrune) {
		d.prune(now)
		d.nextPrune = now.Add(d.window)
	}
	if exp, ok := d.expires[key]; ok && now.Before(exp) {
		return true
	}
	d.expires[key] = now.Add(d.window)
	return false
}

// Prune drops expired keys and returns how many remain.
func (d *Dedup) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prune(d.now())
	return len(d.expires)
}

func (d *Dedup) prune(now time.Time) {
	for k, exp := range d.expires {
		if !now.Before(exp) {
			delete(d.expires, k)
		}
	}
}
