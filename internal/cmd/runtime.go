package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ballotbox/ballotbox/internal/config"
	"github.com/ballotbox/ballotbox/internal/core/candidates"
	"github.com/ballotbox/ballotbox/internal/core/ratelimit"
	"github.com/ballotbox/ballotbox/internal/core/ratelimit/stats"
	"github.com/ballotbox/ballotbox/internal/metrics"
	"github.com/ballotbox/ballotbox/internal/observability"
)

// loadConfig decodes the viper state and logs any corrected values on logger.
func loadConfig(logger *logging.Logger) (*config.Config, error) {
	cfg, diagnostics, err := config.Load(viper.GetViper())
	if logger != nil {
		for _, d := range diagnostics {
			logger.Warn("Configuration corrected",
				zap.String("key", d.Key),
				zap.String("detail", d.Message))
		}
	}
	return cfg, err
}

func newLimiter(cfg config.RateLimitConfig) (ratelimit.Limiter, error) {
	return ratelimit.New(ratelimit.Options{
		Strategy:     ratelimit.Strategy(cfg.Strategy),
		Limit:        cfg.Limit,
		Window:       cfg.Window,
		IdleTTL:      cfg.IdleTTL,
		CleanupEvery: cfg.CleanupEvery,
	})
}

func newRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	})
}

func newRedisRecorder(rdb redis.Cmdable, cfg config.RedisConfig) *stats.RedisRecorder {
	return stats.NewRedisRecorder(rdb,
		stats.WithPrefix(cfg.Prefix),
		stats.WithTTL(cfg.TTL),
		stats.WithBucket(cfg.Bucket),
		stats.WithTrackKeys(cfg.TrackKeys),
	)
}

// newStatsRecorder builds the configured recorder. rdb is only used by the
// redis backend, where the recorder sits behind a circuit breaker.
func newStatsRecorder(cfg config.StatsConfig, rdb redis.Cmdable) stats.Recorder {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Backend == "redis" && rdb != nil {
		return stats.NewBreakerRecorder(newRedisRecorder(rdb, cfg.Redis), "ratelimit-stats", cfg.Breaker.Timeout, cfg.Breaker.MaxFailures)
	}
	return stats.NewMemoryRecorder(cfg.Redis.TrackKeys)
}

// newAsyncStats moves recording off the request path. Write failures are
// counted and logged from the background writer.
func newAsyncStats(inner stats.Recorder, cfg config.StatsConfig) *stats.AsyncRecorder {
	return stats.NewAsyncRecorder(inner, cfg.QueueSize, cfg.RecordTimeout, func(err error) {
		metrics.RecordStatsError(cfg.Backend)
		if observability.ServerLogger != nil {
			observability.ServerLogger.Warn("Failed to record rate limit stats",
				zap.String("backend", cfg.Backend),
				zap.Error(err))
		}
	})
}

func newCandidateStore(cfg config.CandidatesConfig) (candidates.Store, error) {
	if cfg.Source != candidates.SourceFile {
		return candidates.StubStore{}, nil
	}
	store, err := candidates.NewFileStore(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open candidate store: %w", err)
	}
	return store, nil
}

// pingRedis checks connectivity within timeout.
func pingRedis(ctx context.Context, rdb redis.Cmdable, timeout time.Duration) error {
	if rdb == nil {
		return errors.New("redis client not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return rdb.Ping(ctx).Err()
}
