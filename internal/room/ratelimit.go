package room

import (
	"time"

	"github.com/roach88/voxelroom/internal/clock"
)

// Default token bucket parameters.
const (
	DefaultBucketCapacity = 80
	DefaultRefillInterval = 50 * time.Millisecond
)

// RateLimiter keeps one token bucket per connection.
//
// Buckets hold whole tokens. Refill is lazy: each check adds one token per
// full refill interval elapsed since the last credited instant, truncating
// the remainder, and never exceeds capacity. A batch is charged its full
// operation count at once; an insufficient balance leaves the bucket
// untouched.
//
// Not safe for concurrent use. The room loop owns it.
type RateLimiter struct {
	capacity int
	refill   time.Duration
	clock    clock.Clock
	buckets  map[ConnID]*bucket
}

type bucket struct {
	tokens int
	last   time.Time // instant up to which refill has been credited
}

// NewRateLimiter creates a limiter. Non-positive arguments fall back to
// the defaults.
func NewRateLimiter(capacity int, refill time.Duration, clk clock.Clock) *RateLimiter {
	if capacity <= 0 {
		capacity = DefaultBucketCapacity
	}
	if refill <= 0 {
		refill = DefaultRefillInterval
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &RateLimiter{
		capacity: capacity,
		refill:   refill,
		clock:    clk,
		buckets:  make(map[ConnID]*bucket),
	}
}

// Capacity returns the bucket size.
func (l *RateLimiter) Capacity() int {
	return l.capacity
}

// Open allocates a full bucket for conn.
func (l *RateLimiter) Open(conn ConnID) {
	l.buckets[conn] = &bucket{tokens: l.capacity, last: l.clock.Now()}
}

// Close discards conn's bucket.
func (l *RateLimiter) Close(conn ConnID) {
	delete(l.buckets, conn)
}

// Permit refills conn's bucket, then deducts cost if the balance covers it.
// Unknown connections are never permitted.
func (l *RateLimiter) Permit(conn ConnID, cost int) bool {
	b, ok := l.buckets[conn]
	if !ok {
		return false
	}
	l.refillBucket(b)
	if cost < 0 {
		cost = 0
	}
	if b.tokens < cost {
		return false
	}
	b.tokens -= cost
	return true
}

// Tokens returns conn's balance after refill.
func (l *RateLimiter) Tokens(conn ConnID) int {
	b, ok := l.buckets[conn]
	if !ok {
		return 0
	}
	l.refillBucket(b)
	return b.tokens
}

// RetryAfter estimates how long conn must wait before cost tokens are
// available. Costs above capacity are estimated as a full bucket.
func (l *RateLimiter) RetryAfter(conn ConnID, cost int) time.Duration {
	b, ok := l.buckets[conn]
	if !ok {
		return 0
	}
	l.refillBucket(b)

	need := min(cost, l.capacity) - b.tokens
	if need <= 0 {
		return 0
	}
	wait := time.Duration(need)*l.refill - l.clock.Now().Sub(b.last)
	if wait < 0 {
		return 0
	}
	return wait
}

func (l *RateLimiter) refillBucket(b *bucket) {
	now := l.clock.Now()
	elapsed := now.Sub(b.last)
	if elapsed < 0 {
		// Wall clock stepped backwards; restart crediting from now.
		b.last = now
		return
	}

	n := int64(elapsed / l.refill)
	if n <= 0 {
		return
	}
	if int64(b.tokens)+n >= int64(l.capacity) {
		b.tokens = l.capacity
		b.last = now
		return
	}
	b.tokens += int(n)
	b.last = b.last.Add(time.Duration(n) * l.refill)
}
