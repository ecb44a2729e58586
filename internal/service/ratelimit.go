package service

import (
	"sync"
	"time"
)

// ChatRateLimiter admits at most max messages per sender per room within any
// rolling window. Keys are held in a bounded map with per-key locking; idle
// keys are evicted lazily when the map grows past maxKeys and by Sweep.
type ChatRateLimiter struct {
	max     int
	window  time.Duration
	maxKeys int

	mu      sync.Mutex // guards entries map only, never held while checking a key
	entries map[limiterKey]*limiterEntry

	now func() time.Time
}

type limiterKey struct {
	roomID string
	sender string
}

type limiterEntry struct {
	mu    sync.Mutex
	times []time.Time // send times still inside the window, oldest first
}

// NewChatRateLimiter creates a limiter admitting max events per window.
func NewChatRateLimiter(max int, window time.Duration) *ChatRateLimiter {
	return &ChatRateLimiter{
		max:     max,
		window:  window,
		maxKeys: 10000,
		entries: make(map[limiterKey]*limiterEntry),
		now:     time.Now,
	}
}

// Allow records one message attempt and reports whether it is admitted.
// Fails closed: the attempt is rejected when the sender already has max
// messages inside the window at check time.
func (l *ChatRateLimiter) Allow(roomID, sender string) bool {
	key := limiterKey{roomID: roomID, sender: sender}
	now := l.now()

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		if len(l.entries) >= l.maxKeys {
			l.evictStaleLocked(now)
		}
		e = &limiterEntry{}
		l.entries[key] = e
	}
	l.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := e.times[:0]
	for _, t := range e.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.times = kept

	if len(e.times) >= l.max {
		return false
	}
	e.times = append(e.times, now)
	return true
}

// Sweep drops keys whose newest entry fell out of the window. Run
// periodically so idle rooms do not pin memory.
func (l *ChatRateLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictStaleLocked(l.now())
}

func (l *ChatRateLimiter) evictStaleLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	for key, e := range l.entries {
		e.mu.Lock()
		stale := len(e.times) == 0 || !e.times[len(e.times)-1].After(cutoff)
		e.mu.Unlock()
		if stale {
			delete(l.entries, key)
		}
	}
}

// StartSweeper runs Sweep every interval until stop is closed.
func (l *ChatRateLimiter) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-stop:
				return
			}
		}
	}()
}
