package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucketLimiter keeps one x/time/rate limiter per client. Each bucket
// holds Limit tokens and refills Limit tokens per Window.
type TokenBucketLimiter struct {
	mu      sync.Mutex
	limit   int
	rps     rate.Limit
	idleTTL time.Duration
	clock   Clock
	entries map[string]*bucketEntry
	janitor *janitor
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucketLimiter builds a TokenBucketLimiter and starts its idle janitor.
func NewTokenBucketLimiter(opts Options) *TokenBucketLimiter {
	opts = opts.withDefaults()
	l := &TokenBucketLimiter{
		limit:   opts.Limit,
		rps:     rate.Limit(float64(opts.Limit) / opts.Window.Seconds()),
		idleTTL: opts.IdleTTL,
		clock:   opts.Clock,
		entries: make(map[string]*bucketEntry),
	}
	l.janitor = startJanitor(opts.CleanupEvery, func() { l.Sweep(l.clock.Now()) })
	return l
}

func (l *TokenBucketLimiter) Check(_ context.Context, address string) Decision {
	if address == "" {
		return denied(l.limit, 0)
	}

	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	ent, ok := l.entries[address]
	if !ok {
		ent = &bucketEntry{lim: rate.NewLimiter(l.rps, l.limit)}
		l.entries[address] = ent
	}
	ent.lastSeen = now

	if !ent.lim.AllowN(now, 1) {
		missing := 1 - ent.lim.TokensAt(now)
		wait := time.Duration(missing / float64(l.rps) * float64(time.Second))
		return denied(l.limit, wait)
	}

	remaining := int(math.Floor(ent.lim.TokensAt(now)))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Limit: l.limit, Remaining: remaining}
}

// Sweep evicts buckets not used within the idle TTL.
func (l *TokenBucketLimiter) Sweep(now time.Time) int {
	cutoff := now.Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for address, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, address)
			evicted++
		}
	}
	return evicted
}

func (l *TokenBucketLimiter) Reset(address string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, address)
}

func (l *TokenBucketLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *TokenBucketLimiter) Strategy() Strategy { return StrategyTokenBucket }

func (l *TokenBucketLimiter) Stop() { l.janitor.stop() }
