package stats

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRecorder writes counters into Redis hashes:
//
//	<prefix>:total                 allowed|denied
//	<prefix>:minute:<yyyymmddhhmm> allowed|denied   (bucket "minute")
//	<prefix>:route                 "<METHOD> <path>:allowed|denied"
//	<prefix>:key:<client>          allowed|denied   (track keys)
//
// Only the total hash is kept forever; the others expire after the TTL.
type RedisRecorder struct {
	rdb       redis.Cmdable
	prefix    string
	ttl       time.Duration
	bucket    string
	trackKeys bool
}

// RedisOption configures a RedisRecorder.
type RedisOption func(*RedisRecorder)

func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) { r.prefix = strings.Trim(prefix, ":") }
}

func WithTTL(d time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.ttl = d }
}

// WithBucket selects time bucketing: "minute" (default) or "none".
func WithBucket(bucket string) RedisOption {
	return func(r *RedisRecorder) { r.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithTrackKeys(track bool) RedisOption {
	return func(r *RedisRecorder) { r.trackKeys = track }
}

// NewRedisRecorder builds a RedisRecorder on rdb.
func NewRedisRecorder(rdb redis.Cmdable, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		rdb:    rdb,
		prefix: "ballotbox:ratelimit",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRecorder) Record(ctx context.Context, ev Event) error {
	if r == nil || r.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := decisionField(ev.Allowed)

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, r.prefix+":total", field, 1)

	if r.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if r.ttl > 0 {
			pipe.Expire(ctx, bucketKey, r.ttl)
		}
	}

	if route := routeField(ev.Method, ev.Path); route != "" {
		pipe.HIncrBy(ctx, r.prefix+":route", route+":"+field, 1)
	}

	if r.trackKeys {
		if k := strings.TrimSpace(ev.Key); k != "" {
			keyKey := r.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if r.ttl > 0 {
				pipe.Expire(ctx, keyKey, r.ttl)
			}
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record rate limit stats: %w", err)
	}
	return nil
}

// Snapshot reads the total and per-route hashes. Per-key hashes are not
// enumerated.
func (r *RedisRecorder) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Backend: "redis"}

	total, err := r.rdb.HGetAll(ctx, r.prefix+":total").Result()
	if err != nil {
		return snap, fmt.Errorf("read total stats: %w", err)
	}
	snap.Total.Allowed = parseCount(total["allowed"])
	snap.Total.Denied = parseCount(total["denied"])

	routes, err := r.rdb.HGetAll(ctx, r.prefix+":route").Result()
	if err != nil {
		return snap, fmt.Errorf("read route stats: %w", err)
	}
	for field, value := range routes {
		idx := strings.LastIndex(field, ":")
		if idx <= 0 {
			continue
		}
		route, decision := field[:idx], field[idx+1:]
		if decision != "allowed" && decision != "denied" {
			continue
		}
		if snap.Routes == nil {
			snap.Routes = make(map[string]Counts)
		}
		c := snap.Routes[route]
		c.add(decision == "allowed", parseCount(value))
		snap.Routes[route] = c
	}

	return snap, nil
}

// Keys lists every key under the recorder's prefix in sorted order.
func (r *RedisRecorder) Keys(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.rdb.Scan(ctx, cursor, r.prefix+":*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan stats keys: %w", err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(keys)
	return keys, nil
}

// Reset deletes every key under the recorder's prefix and returns how many
// were removed.
func (r *RedisRecorder) Reset(ctx context.Context) (int64, error) {
	keys, err := r.Keys(ctx)
	if err != nil || len(keys) == 0 {
		return 0, err
	}
	deleted, err := r.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete stats keys: %w", err)
	}
	return deleted, nil
}

// Prefix returns the key prefix in use.
func (r *RedisRecorder) Prefix() string { return r.prefix }

func decisionField(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

func parseCount(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
