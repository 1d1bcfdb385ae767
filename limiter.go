/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = time.Hour

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter keeps one token bucket per client address. Buckets unused for
// an hour are dropped on the next sweep.
type ipLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

func newIPLimiter(perSecond float64, burst int) *ipLimiter {
	return &ipLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

// allow reports whether a request from addr may proceed. A nil limiter
// allows everything.
func (l *ipLimiter) allow(addr string) bool {
	if l == nil {
		return true
	}

	key := addr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		key = host
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	return b.limiter.AllowN(now, 1)
}

func (l *ipLimiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-limiterIdle)
	removed := 0

	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}

	return removed
}
