package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stallingRecorder blocks every write until its context ends.
type stallingRecorder struct {
	mu    sync.Mutex
	calls int
}

func (s *stallingRecorder) Record(ctx context.Context, _ Event) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (s *stallingRecorder) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestAsyncRecorderDoesNotWaitOnBackend(t *testing.T) {
	errs := make(chan error, 4)
	inner := &stallingRecorder{}
	rec := NewAsyncRecorder(inner, 4, 20*time.Millisecond, func(err error) { errs <- err })
	t.Cleanup(func() { _ = rec.Close(context.Background()) })

	start := time.Now()
	require.NoError(t, rec.Record(context.Background(), Event{Allowed: true}))
	assert.Less(t, time.Since(start), 10*time.Millisecond)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("write was not bounded by the record timeout")
	}
	assert.Equal(t, 1, inner.Calls())
}

func TestAsyncRecorderDropsWhenQueueFull(t *testing.T) {
	rec := NewAsyncRecorder(&stallingRecorder{}, 1, time.Second, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rec.Close(ctx)
	})

	var full int
	for i := 0; i < 10; i++ {
		if err := rec.Record(context.Background(), Event{}); err != nil {
			assert.ErrorIs(t, err, ErrQueueFull)
			full++
		}
	}
	assert.GreaterOrEqual(t, full, 8)
	assert.Equal(t, int64(full), rec.Dropped())
}

func TestAsyncRecorderCloseDrainsQueue(t *testing.T) {
	mem := NewMemoryRecorder(false)
	rec := NewAsyncRecorder(mem, 16, time.Second, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, rec.Record(context.Background(), Event{Allowed: i%2 == 0}))
	}
	require.NoError(t, rec.Close(context.Background()))
	assert.ErrorIs(t, rec.Record(context.Background(), Event{}), ErrClosed)

	snap, err := rec.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Counts{Allowed: 3, Denied: 2}, snap.Total)
	assert.Same(t, mem, rec.Unwrap())
}

func TestAsyncRecorderWritesToRedis(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rec := NewAsyncRecorder(NewRedisRecorder(db, WithPrefix("bb"), WithBucket("none")), 4, time.Second, func(err error) {
		t.Errorf("unexpected stats error: %v", err)
	})

	mock.ExpectHIncrBy("bb:total", "allowed", 1).SetVal(1)

	require.NoError(t, rec.Record(context.Background(), Event{Allowed: true}))
	require.NoError(t, rec.Close(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
