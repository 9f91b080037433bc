// Package ratelimit decides, per client address, whether a request may
// proceed. Each Limiter owns its counters; nothing is shared between
// instances or processes.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Strategy names a counting algorithm.
type Strategy string

const (
	// StrategyThreshold counts every request and arms a one-shot reset timer
	// when a client reaches the ceiling exactly. A client that stops before
	// the ceiling keeps its count indefinitely.
	StrategyThreshold Strategy = "threshold"
	// StrategyWindow is a fixed window starting at a client's first request.
	StrategyWindow Strategy = "window"
	// StrategyTokenBucket refills Limit tokens per Window continuously.
	StrategyTokenBucket Strategy = "token_bucket"
)

// Defaults used when Options leave a field zero.
const (
	DefaultLimit        = 10
	DefaultWindow       = 2 * time.Minute
	DefaultIdleTTL      = 15 * time.Minute
	DefaultCleanupEvery = 2 * time.Minute
)

// Decision is the verdict for one request.
type Decision struct {
	Allowed bool
	Limit   int
	// Remaining is Limit minus the requests counted so far. Only meaningful
	// when Allowed.
	Remaining int
	// RetryAfter is how long until the client is expected to be admitted
	// again. Zero when unknown.
	RetryAfter time.Duration
}

// Limiter gates requests by client address.
type Limiter interface {
	// Check counts one request for address and reports whether it may
	// proceed. An empty address is always denied.
	Check(ctx context.Context, address string) Decision
	// Reset forgets everything known about address.
	Reset(address string)
	// Len reports how many addresses are currently tracked.
	Len() int
	// Strategy names the algorithm in use.
	Strategy() Strategy
	// Stop releases timers and background goroutines.
	Stop()
}

// Options configures New.
type Options struct {
	Strategy Strategy
	Limit    int
	Window   time.Duration

	// IdleTTL and CleanupEvery drive eviction for the window and token
	// bucket strategies.
	IdleTTL      time.Duration
	CleanupEvery time.Duration

	Clock     Clock
	Scheduler Scheduler
}

// ParseStrategy normalizes a configured strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case "", StrategyThreshold:
		return StrategyThreshold, nil
	case StrategyWindow, "fixed_window":
		return StrategyWindow, nil
	case StrategyTokenBucket, "token", "bucket":
		return StrategyTokenBucket, nil
	default:
		return "", fmt.Errorf("unknown rate limit strategy %q", name)
	}
}

// New builds a Limiter for opts.Strategy.
func New(opts Options) (Limiter, error) {
	strategy, err := ParseStrategy(string(opts.Strategy))
	if err != nil {
		return nil, err
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", opts.Limit)
	}
	if opts.Window < 0 {
		return nil, fmt.Errorf("rate limit window must be positive, got %s", opts.Window)
	}
	opts = opts.withDefaults()

	switch strategy {
	case StrategyWindow:
		return NewWindowLimiter(opts), nil
	case StrategyTokenBucket:
		return NewTokenBucketLimiter(opts), nil
	default:
		return NewThresholdLimiter(opts), nil
	}
}

func (o Options) withDefaults() Options {
	if o.Limit == 0 {
		o.Limit = DefaultLimit
	}
	if o.Window == 0 {
		o.Window = DefaultWindow
	}
	if o.IdleTTL == 0 {
		o.IdleTTL = DefaultIdleTTL
	}
	if o.CleanupEvery == 0 {
		o.CleanupEvery = DefaultCleanupEvery
	}
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	if o.Scheduler == nil {
		o.Scheduler = SystemClock{}
	}
	return o
}

func denied(limit int, retryAfter time.Duration) Decision {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Decision{Allowed: false, Limit: limit, RetryAfter: retryAfter}
}
