package ratelimit

import (
	"context"
	"sync"
	"time"
)

// ThresholdLimiter increments a counter on every request and denies once the
// counter exceeds the limit. The counter is reset only by a timer armed at
// the moment it equals the limit.
type ThresholdLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	clock     Clock
	scheduler Scheduler
	records   map[string]*thresholdRecord
}

type thresholdRecord struct {
	count   int
	resetAt time.Time
	timer   Timer
}

// NewThresholdLimiter builds a ThresholdLimiter. Zero fields in opts take
// package defaults.
func NewThresholdLimiter(opts Options) *ThresholdLimiter {
	opts = opts.withDefaults()
	return &ThresholdLimiter{
		limit:     opts.Limit,
		window:    opts.Window,
		clock:     opts.Clock,
		scheduler: opts.Scheduler,
		records:   make(map[string]*thresholdRecord),
	}
}

func (l *ThresholdLimiter) Check(_ context.Context, address string) Decision {
	if address == "" {
		return denied(l.limit, 0)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[address]
	if !ok {
		rec = &thresholdRecord{}
		l.records[address] = rec
	}
	rec.count++

	if rec.count > l.limit {
		var retryAfter time.Duration
		if rec.timer != nil {
			retryAfter = rec.resetAt.Sub(l.clock.Now())
		}
		return denied(l.limit, retryAfter)
	}

	if rec.count == l.limit && rec.timer == nil {
		rec.resetAt = l.clock.Now().Add(l.window)
		rec.timer = l.scheduler.AfterFunc(l.window, func() { l.expire(address, rec) })
	}

	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - rec.count}
}

// expire drops the record if it is still the one the timer was armed for.
// An absent record and a zero count behave identically on the next request.
func (l *ThresholdLimiter) expire(address string, rec *thresholdRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if current, ok := l.records[address]; ok && current == rec {
		delete(l.records, address)
	}
}

// Count returns the current counter for address.
func (l *ThresholdLimiter) Count(address string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.records[address]; ok {
		return rec.count
	}
	return 0
}

func (l *ThresholdLimiter) Reset(address string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.records[address]; ok {
		if rec.timer != nil {
			rec.timer.Stop()
		}
		delete(l.records, address)
	}
}

func (l *ThresholdLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *ThresholdLimiter) Strategy() Strategy { return StrategyThreshold }

func (l *ThresholdLimiter) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range l.records {
		if rec.timer != nil {
			rec.timer.Stop()
			rec.timer = nil
		}
	}
}
