package moderation

import (
	"sync"
	"time"
)

type bucket struct {
	count int
	until time.Time
}

// Limiter counts events per key in fixed windows.
type Limiter struct {
	mu        sync.Mutex
	limit     int
	per       time.Duration
	buckets   map[string]*bucket
	lastPrune time.Time
	now       func() time.Time
}

// NewLimiter allows limit events per key in each window of length per.
// A limit of zero or less disables limiting.
func NewLimiter(limit int, per time.Duration) *Limiter {
	return &Limiter{limit: limit, per: per, buckets: make(map[string]*bucket), now: time.Now}
}

// Allow records one event for key. When the key is over its limit it returns
// false and the time left until the window resets.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l.limit <= 0 {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	b, ok := l.buckets[key]
	if !ok || now.After(b.until) {
		b = &bucket{until: now.Add(l.per)}
		l.buckets[key] = b
	}
	if b.count >= l.limit {
		return false, b.until.Sub(now)
	}
	b.count++
	return true, 0
}

// prune drops expired buckets at most once per window.
func (l *Limiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < l.per {
		return
	}
	for k, b := range l.buckets {
		if now.After(b.until) {
			delete(l.buckets, k)
		}
	}
	l.lastPrune = now
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
