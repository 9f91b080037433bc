package ratelimit

import (
	"context"
	"sync"
	"time"
)

// WindowLimiter admits Limit requests per fixed window. A window opens on a
// client's first request and is replaced by a fresh one on the first request
// after it closes.
type WindowLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clock   Clock
	records map[string]*windowRecord
	janitor *janitor
}

type windowRecord struct {
	count int
	start time.Time
}

// NewWindowLimiter builds a WindowLimiter and starts its eviction janitor.
func NewWindowLimiter(opts Options) *WindowLimiter {
	opts = opts.withDefaults()
	l := &WindowLimiter{
		limit:   opts.Limit,
		window:  opts.Window,
		clock:   opts.Clock,
		records: make(map[string]*windowRecord),
	}
	l.janitor = startJanitor(opts.CleanupEvery, func() { l.Sweep(l.clock.Now()) })
	return l
}

func (l *WindowLimiter) Check(_ context.Context, address string) Decision {
	if address == "" {
		return denied(l.limit, 0)
	}

	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[address]
	if !ok || !now.Before(rec.start.Add(l.window)) {
		rec = &windowRecord{start: now}
		l.records[address] = rec
	}

	if rec.count >= l.limit {
		return denied(l.limit, rec.start.Add(l.window).Sub(now))
	}
	rec.count++

	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - rec.count}
}

// Sweep evicts clients whose window closed before now.
func (l *WindowLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for address, rec := range l.records {
		if !now.Before(rec.start.Add(l.window)) {
			delete(l.records, address)
			evicted++
		}
	}
	return evicted
}

func (l *WindowLimiter) Reset(address string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, address)
}

func (l *WindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *WindowLimiter) Strategy() Strategy { return StrategyWindow }

func (l *WindowLimiter) Stop() { l.janitor.stop() }
