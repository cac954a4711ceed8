package signal

import (
	"sync"
	"time"

	"github.com/juju/ratelimit"

	"github.com/dkeye/pulse/internal/core"
	"github.com/dkeye/pulse/internal/domain"
)

// FloodGuard allows each connection a burst of limit messages, refilled at
// limit per interval.
type FloodGuard struct {
	mu       sync.Mutex
	buckets  map[domain.ConnID]*ratelimit.Bucket
	limit    int64
	interval time.Duration
}

var _ core.FloodChecker = (*FloodGuard)(nil)

func NewFloodGuard(limit int, interval time.Duration) *FloodGuard {
	if limit <= 0 {
		limit = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &FloodGuard{
		buckets:  make(map[domain.ConnID]*ratelimit.Bucket),
		limit:    int64(limit),
		interval: interval,
	}
}

func (g *FloodGuard) IsFlooding(id domain.ConnID) bool {
	g.mu.Lock()
	b, ok := g.buckets[id]
	if !ok {
		b = ratelimit.NewBucketWithQuantum(g.interval, g.limit, g.limit)
		g.buckets[id] = b
	}
	g.mu.Unlock()
	return b.TakeAvailable(1) == 0
}

func (g *FloodGuard) Forget(id domain.ConnID) {
	g.mu.Lock()
	delete(g.buckets, id)
	g.mu.Unlock()
}
