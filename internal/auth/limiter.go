package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const throttleEntryTTL = 10 * time.Minute

// Throttle is a per-key token bucket used to slow credential-stuffing
// against Login. State is in-memory and best-effort: it guards the bcrypt
// work, it is not the durable source of truth. Stale buckets are pruned
// lazily on use so no background goroutine is needed.
type Throttle struct {
	mu      sync.Mutex
	buckets map[string]*throttleBucket
	limit   rate.Limit
	burst   int
	pruned  time.Time
	now     func() time.Time
}

type throttleBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewThrottle allows perMinute sustained attempts per key with the given
// burst.
func NewThrottle(perMinute, burst int) *Throttle {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &Throttle{
		buckets: make(map[string]*throttleBucket),
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow reports whether an attempt for key may proceed now.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Sub(t.pruned) > throttleEntryTTL {
		for k, b := range t.buckets {
			if now.Sub(b.seen) > throttleEntryTTL {
				delete(t.buckets, k)
			}
		}
		t.pruned = now
	}

	b, ok := t.buckets[key]
	if !ok {
		b = &throttleBucket{lim: rate.NewLimiter(t.limit, t.burst)}
		t.buckets[key] = b
	}
	b.seen = now
	return b.lim.Allow()
}
