package server

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Rejection reasons reported by ConnLimits.Acquire.
const (
	limitReasonGlobal = "global_limit"
	limitReasonRate   = "rate_limit"
)

// ConnLimits caps the total number of concurrent connections on this
// instance and rate-limits new connections per client IP with a token
// bucket. It guards the upgrade path only; established connections are
// unaffected.
type ConnLimits struct {
	current atomic.Int64
	max     int64

	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnLimits(maxConnections int64, connectionsPerSecond float64, burst int) *ConnLimits {
	return &ConnLimits{
		max:       maxConnections,
		visitors:  make(map[string]*visitor),
		rate:      rate.Limit(connectionsPerSecond),
		burst:     burst,
		cleanupAt: time.Now().Add(5 * time.Minute),
	}
}

// Acquire reserves a connection slot for the given IP. Returns false and a
// rejection reason when either the per-IP rate or the instance-wide cap is
// exceeded.
func (l *ConnLimits) Acquire(ip string) (bool, string) {
	if !l.allowRate(ip) {
		return false, limitReasonRate
	}

	for {
		current := l.current.Load()
		if current >= l.max {
			return false, limitReasonGlobal
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true, ""
		}
	}
}

// Release frees a previously acquired slot.
func (l *ConnLimits) Release() {
	l.current.Add(-1)
}

// Current returns the number of held slots.
func (l *ConnLimits) Current() int64 {
	return l.current.Load()
}

func (l *ConnLimits) allowRate(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now := time.Now(); now.After(l.cleanupAt) {
		l.evictIdleVisitors(now)
		l.cleanupAt = now.Add(5 * time.Minute)
	}

	v, exists := l.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()

	return v.limiter.Allow()
}

// evictIdleVisitors drops limiters not seen for 10 minutes. Caller holds mu.
func (l *ConnLimits) evictIdleVisitors(now time.Time) {
	cutoff := now.Add(-10 * time.Minute)
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}
