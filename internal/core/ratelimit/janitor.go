package ratelimit

import (
	"sync"
	"time"
)

type janitor struct {
	done chan struct{}
	once sync.Once
}

// startJanitor calls sweep every interval until stopped. A non-positive
// interval disables it.
func startJanitor(every time.Duration, sweep func()) *janitor {
	j := &janitor{done: make(chan struct{})}
	if every <= 0 {
		return j
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-j.done:
				return
			case <-t.C:
				sweep()
			}
		}
	}()
	return j
}

func (j *janitor) stop() {
	if j == nil {
		return
	}
	j.once.Do(func() { close(j.done) })
}
