package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleBucketTTL is how long an unused key keeps its limiter before it is
// pruned. A pruned key starts over with a full burst.
const idleBucketTTL = 10 * time.Minute

type RateLimitConfig struct {
	IPPerMinute   int
	IPBurst       int
	UserPerMinute int
	UserBurst     int
}

// RateLimiter throttles by client IP and, once a session is known, by user.
// It sits behind AuthMiddleware.
type RateLimiter struct {
	byIP   *keyedLimiter
	byUser *keyedLimiter
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		byIP:   newKeyedLimiter(cfg.IPPerMinute, cfg.IPBurst),
		byUser: newKeyedLimiter(cfg.UserPerMinute, cfg.UserBurst),
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := clientIP(r); ip != "" {
			if wait, ok := l.byIP.reserve(ip); !ok {
				rejectRateLimited(w, r, wait)
				return
			}
		}
		if info, ok := authFromContext(r.Context()); ok {
			if wait, ok := l.byUser.reserve(info.User.UserID); !ok {
				rejectRateLimited(w, r, wait)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func rejectRateLimited(w http.ResponseWriter, r *http.Request, wait time.Duration) {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
}

// keyedLimiter keeps one token bucket per key.
type keyedLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	entries   map[string]*limiterEntry
	lastPrune time.Time
}

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newKeyedLimiter(perMinute, burst int) *keyedLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &keyedLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		now:     time.Now,
		entries: make(map[string]*limiterEntry),
	}
}

// reserve takes a token for key. When none is left it reports how long the
// caller should wait and consumes nothing.
func (l *keyedLimiter) reserve(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.seen = now

	reservation := entry.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return delay, false
	}
	return 0, true
}

func (l *keyedLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < idleBucketTTL {
		return
	}
	l.lastPrune = now
	for key, entry := range l.entries {
		if now.Sub(entry.seen) >= idleBucketTTL {
			delete(l.entries, key)
		}
	}
}

func (l *keyedLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
