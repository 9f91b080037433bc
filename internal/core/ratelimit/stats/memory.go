package stats

import (
	"context"
	"strings"
	"sync"
)

// MemoryRecorder keeps counters in process memory.
type MemoryRecorder struct {
	mu        sync.Mutex
	trackKeys bool
	total     Counts
	routes    map[string]Counts
	keys      map[string]Counts
}

// NewMemoryRecorder builds a MemoryRecorder. Per-key counters are kept only
// when trackKeys is set.
func NewMemoryRecorder(trackKeys bool) *MemoryRecorder {
	return &MemoryRecorder{
		trackKeys: trackKeys,
		routes:    make(map[string]Counts),
		keys:      make(map[string]Counts),
	}
}

func (m *MemoryRecorder) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total.add(ev.Allowed, 1)

	if route := routeField(ev.Method, ev.Path); route != "" {
		c := m.routes[route]
		c.add(ev.Allowed, 1)
		m.routes[route] = c
	}

	if m.trackKeys {
		if k := strings.TrimSpace(ev.Key); k != "" {
			c := m.keys[k]
			c.add(ev.Allowed, 1)
			m.keys[k] = c
		}
	}
	return nil
}

func (m *MemoryRecorder) Snapshot(context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{Backend: "memory", Total: m.total}
	if len(m.routes) > 0 {
		snap.Routes = make(map[string]Counts, len(m.routes))
		for k, v := range m.routes {
			snap.Routes[k] = v
		}
	}
	if len(m.keys) > 0 {
		snap.Keys = make(map[string]Counts, len(m.keys))
		for k, v := range m.keys {
			snap.Keys[k] = v
		}
	}
	return snap, nil
}
