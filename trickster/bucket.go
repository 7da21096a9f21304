package trickster

import (
	"sync"
	"time"
)

const (
	userBucketLimit  = 10
	userBucketWindow = 30 * time.Second

	channelBucketLimit  = 120
	channelBucketWindow = time.Minute

	dmBucketLimit  = 30
	dmBucketWindow = time.Hour

	// If a user's bucket clears within this window, the handler sleeps
	// it out instead of dropping the message.
	userBucketSleepLimit = 5 * time.Second
)

// Bucket is a sliding-window rate limiter keyed by an arbitrary string
// (user ID, channel ID). State is in-memory only and resets on restart.
type Bucket struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	entries map[string][]time.Time

	// for tests
	now func() time.Time
}

func NewBucket(limit int, window time.Duration) *Bucket {
	return &Bucket{
		limit:   limit,
		window:  window,
		entries: map[string][]time.Time{},
		now:     time.Now,
	}
}

// Check reports whether an action under the given key would currently
// be allowed, without recording anything. When the key is limited, the
// returned duration is how long until the oldest recorded action leaves
// the window.
func (b *Bucket) Check(key string) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	recent := b.prune(key)
	if len(recent) < b.limit {
		return 0, true
	}
	wait := b.window - b.now().Sub(recent[0])
	if wait < 0 {
		wait = 0
	}
	return wait, false
}

// Register records an action under the given key. Only effectful
// outcomes should be registered, so a message that produced no response
// never counts against its sender.
func (b *Bucket) Register(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = append(b.prune(key), b.now())
}

// prune drops timestamps older than the window. Caller holds b.mu.
func (b *Bucket) prune(key string) []time.Time {
	cutoff := b.now().Add(-b.window)
	recent := b.entries[key][:0]
	for _, ts := range b.entries[key] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	if len(recent) == 0 {
		delete(b.entries, key)
		return nil
	}
	b.entries[key] = recent
	return recent
}
