package stats

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrQueueFull is returned when the async queue has no room; the event
	// is dropped.
	ErrQueueFull = errors.New("stats queue full")
	// ErrClosed is returned by Record after Close.
	ErrClosed = errors.New("stats recorder closed")
)

const (
	DefaultQueueSize     = 1024
	DefaultRecordTimeout = 250 * time.Millisecond
)

// AsyncRecorder queues events for a single background writer so the
// request path never waits on the backend. Each write is bounded by a
// timeout; failures go to onError.
type AsyncRecorder struct {
	inner   Recorder
	events  chan Event
	timeout time.Duration
	onError func(error)

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

func NewAsyncRecorder(inner Recorder, queueSize int, timeout time.Duration, onError func(error)) *AsyncRecorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultRecordTimeout
	}
	a := &AsyncRecorder{
		inner:   inner,
		events:  make(chan Event, queueSize),
		timeout: timeout,
		onError: onError,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Record enqueues ev without blocking. The request context is not used by
// the write, which outlives the request.
func (a *AsyncRecorder) Record(_ context.Context, ev Event) error {
	select {
	case <-a.stop:
		return ErrClosed
	default:
	}

	select {
	case a.events <- ev:
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

// Snapshot passes through to the wrapped recorder when it supports it.
func (a *AsyncRecorder) Snapshot(ctx context.Context) (Snapshot, error) {
	s, ok := a.inner.(Snapshotter)
	if !ok {
		return Snapshot{Backend: "unknown"}, nil
	}
	return s.Snapshot(ctx)
}

// Unwrap returns the recorder that receives the queued events.
func (a *AsyncRecorder) Unwrap() Recorder { return a.inner }

// Dropped counts events rejected because the queue was full.
func (a *AsyncRecorder) Dropped() int64 { return a.dropped.Load() }

// Close stops accepting events and waits for the queued ones to be written
// or for ctx to end.
func (a *AsyncRecorder) Close(ctx context.Context) error {
	a.closeOnce.Do(func() { close(a.stop) })
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AsyncRecorder) run() {
	defer close(a.done)
	for {
		select {
		case ev := <-a.events:
			a.write(ev)
		case <-a.stop:
			for {
				select {
				case ev := <-a.events:
					a.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (a *AsyncRecorder) write(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.inner.Record(ctx, ev); err != nil && a.onError != nil {
		a.onError(err)
	}
}
