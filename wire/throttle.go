package wire

import (
	"time"

	"github.com/golang/groupcache/lru"
)

// Throttle bounds the set of distinct source IPs tracked for the
// registration port, reusing the teacher's groupcache/lru dependency
// (originally the per-infohash peer-contact cache in peer/peer_store.go)
// for a different resource-exhaustion guard: capping abuse from an
// unbounded number of distinct hosts hammering the registration port.
type Throttle struct {
	cache  *lru.Cache
	window time.Duration
	limit  int
}

type throttleEntry struct {
	windowStart time.Time
	count       int
}

// NewThrottle bounds tracking to maxClients distinct source IPs, each
// allowed up to limit datagrams per window.
func NewThrottle(maxClients int, limit int, window time.Duration) *Throttle {
	return &Throttle{
		cache:  lru.New(maxClients),
		window: window,
		limit:  limit,
	}
}

// Allow reports whether a datagram from ip should be processed, updating
// the per-IP counter. Each new window resets the count.
func (t *Throttle) Allow(ip string, now time.Time) bool {
	if t.limit <= 0 {
		return true
	}
	var e *throttleEntry
	if v, ok := t.cache.Get(ip); ok {
		e = v.(*throttleEntry)
	} else {
		e = &throttleEntry{windowStart: now}
	}
	if now.Sub(e.windowStart) > t.window {
		e.windowStart = now
		e.count = 0
	}
	e.count++
	t.cache.Add(ip, e)
	return e.count <= t.limit
}
