package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter admits or rejects a request for a client key. Implementations must
// be safe for concurrent use; callers consult the limiter before any store or
// hashing work so that abusive bursts stay cheap.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

const (
	bucketTTL     = 5 * time.Minute
	sweepInterval = time.Minute
)

type bucket struct {
	lim *rate.Limiter
	ts  time.Time
}

// Memory is a process-local limiter: one token bucket per key, sized so that
// perMinute requests pass within a minute and the next is rejected. Stale
// buckets are swept periodically.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewMemory constructs a Memory limiter allowing perMinute requests per key.
func NewMemory(perMinute int) *Memory {
	if perMinute < 1 {
		perMinute = 1
	}
	m := &Memory{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

func (m *Memory) Allow(_ context.Context, key string) bool {
	if key == "" {
		key = "unknown"
	}
	m.mu.Lock()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(m.limit, m.burst)}
		m.buckets[key] = b
	}
	b.ts = m.now()
	m.mu.Unlock()
	return b.lim.Allow()
}

func (m *Memory) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := m.now()
			m.mu.Lock()
			for k, b := range m.buckets {
				if now.Sub(b.ts) > bucketTTL {
					delete(m.buckets, k)
				}
			}
			m.mu.Unlock()
		case <-m.stop:
			return
		}
	}
}

// Close stops the background sweeper.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.stop) })
}
