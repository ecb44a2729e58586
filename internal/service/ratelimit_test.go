package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(max int, window time.Duration) (*ChatRateLimiter, *time.Time) {
	l := NewChatRateLimiter(max, window)
	now := time.Now()
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiterAllowsUpToMax(t *testing.T) {
	l, _ := newTestLimiter(5, 10*time.Second)
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("room", "alice"), "message %d should be admitted", i+1)
	}
	assert.False(t, l.Allow("room", "alice"), "sixth message inside the window must be rejected")
}

func TestLimiterWindowSlides(t *testing.T) {
	l, now := newTestLimiter(5, 10*time.Second)
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("room", "alice"))
	}
	assert.False(t, l.Allow("room", "alice"))

	*now = now.Add(11 * time.Second)
	assert.True(t, l.Allow("room", "alice"), "window passed, sender admitted again")
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 10*time.Second)
	assert.True(t, l.Allow("room", "alice"))
	assert.False(t, l.Allow("room", "alice"))
	assert.True(t, l.Allow("room", "bob"), "other sender unaffected")
	assert.True(t, l.Allow("room2", "alice"), "same nickname in another room unaffected")
}

func TestLimiterSweepEvictsIdleKeys(t *testing.T) {
	l, now := newTestLimiter(5, 10*time.Second)
	l.Allow("room", "alice")
	l.Allow("room", "bob")

	*now = now.Add(time.Minute)
	l.Sweep()

	l.mu.Lock()
	remaining := len(l.entries)
	l.mu.Unlock()
	assert.Zero(t, remaining)
}

func TestLimiterEvictsWhenFull(t *testing.T) {
	l, now := newTestLimiter(5, 10*time.Second)
	l.maxKeys = 3
	for i := 0; i < 3; i++ {
		l.Allow("room", fmt.Sprintf("sender-%d", i))
	}

	// All three keys are stale once the window passes; the next new key
	// triggers eviction instead of unbounded growth.
	*now = now.Add(time.Minute)
	assert.True(t, l.Allow("room", "fresh"))

	l.mu.Lock()
	remaining := len(l.entries)
	l.mu.Unlock()
	assert.Equal(t, 1, remaining)
}
