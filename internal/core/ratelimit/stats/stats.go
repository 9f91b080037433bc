// Package stats records rate-limit decisions for later inspection. Recording
// is best effort: callers log failures and carry on serving.
package stats

import (
	"context"
	"strings"
	"time"
)

// Event is one limiter decision.
type Event struct {
	Key     string
	Allowed bool
	Method  string
	Path    string
	At      time.Time
}

// Recorder persists decision events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Snapshotter exposes aggregated counters.
type Snapshotter interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Counts splits a total into allowed and denied decisions.
type Counts struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// Total is the sum of allowed and denied.
func (c Counts) Total() int64 { return c.Allowed + c.Denied }

func (c *Counts) add(allowed bool, n int64) {
	if allowed {
		c.Allowed += n
	} else {
		c.Denied += n
	}
}

// Snapshot aggregates decisions overall, per route and per client key.
type Snapshot struct {
	Backend string            `json:"backend"`
	Total   Counts            `json:"total"`
	Routes  map[string]Counts `json:"routes,omitempty"`
	Keys    map[string]Counts `json:"keys,omitempty"`
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

func (Nop) Snapshot(context.Context) (Snapshot, error) {
	return Snapshot{Backend: "none"}, nil
}

func routeField(method, path string) string {
	return strings.TrimSpace(strings.TrimSpace(method) + " " + strings.TrimSpace(path))
}
