package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ballotbox/ballotbox/internal/config"
	"github.com/ballotbox/ballotbox/internal/core/candidates"
	"github.com/ballotbox/ballotbox/internal/core/ratelimit"
	"github.com/ballotbox/ballotbox/internal/core/ratelimit/stats"
	apperrors "github.com/ballotbox/ballotbox/internal/errors"
	"github.com/ballotbox/ballotbox/internal/metrics"
	"github.com/ballotbox/ballotbox/internal/observability"
	"github.com/ballotbox/ballotbox/internal/server"
	"github.com/ballotbox/ballotbox/internal/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the voting API with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read the config file and reload the candidate file

A port that is not a number falls back to 8080 with a warning.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "server host (empty listens on all interfaces)")
	serveCmd.Flags().StringP("port", "p", "", "server port (default 8080)")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	identity := GetAppIdentity()
	namespace := identity.TelemetryNamespace()

	observability.InitServerLogger(observability.ServerLoggerOptions{
		Service:   identity.BinaryName,
		Level:     viper.GetString("logging.level"),
		Namespace: namespace,
		Format:    viper.GetString("logging.format"),
	})
	logger := observability.ServerLogger

	cfg, err := loadConfig(logger)
	if err != nil {
		ExitWithCode(logger, ExitCodeFor(err), "Invalid configuration", err)
	}

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(namespace, cfg.Metrics.Port); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return apperrors.WrapInternal(cmd.Context(), err, "metrics initialization failed")
		}
		metrics.SetServerStartTime(time.Now().Unix())
	}

	limiter, err := newLimiter(cfg.RateLimit)
	if err != nil {
		ExitWithCode(logger, foundry.ExitConfigInvalid, "Invalid rate limit configuration",
			apperrors.WrapConfigInvalid(cmd.Context(), err, "rate limiter construction failed"))
	}

	var rdb *redis.Client
	if cfg.Stats.Enabled && cfg.Stats.Backend == "redis" {
		rdb = newRedisClient(cfg.Stats.Redis)
		if err := pingRedis(cmd.Context(), rdb, 2*time.Second); err != nil {
			logger.Warn("Redis unreachable, stats will be skipped until it recovers",
				zap.String("addr", cfg.Stats.Redis.Addr),
				zap.Error(err))
		}
	}
	recorder := newStatsRecorder(cfg.Stats, rdb)
	requestStats := recorder
	var asyncStats *stats.AsyncRecorder
	if rdb != nil && recorder != nil {
		asyncStats = newAsyncStats(recorder, cfg.Stats)
		requestStats = asyncStats
	}

	store, err := newCandidateStore(cfg.Candidates)
	if err != nil {
		ExitWithCode(logger, foundry.ExitFileNotFound, "Failed to load candidates",
			apperrors.WrapConfigInvalid(cmd.Context(), err, "candidate store unavailable"))
	}

	handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	handlers.SetAppIdentity(identity)

	health := handlers.NewHealthManager(versionInfo.Version)
	registerHealthCheckers(health, cfg, limiter, recorder, rdb)

	srv, err := server.New(cfg, server.Deps{
		Limiter:    limiter,
		Stats:      requestStats,
		Candidates: store,
		Health:     health,
	})
	if err != nil {
		ExitWithCode(logger, ExitCodeFor(err), "Failed to build server", err)
	}

	logger.Info("Initializing server",
		zap.String("service", identity.BinaryName),
		zap.String("version", versionInfo.Version),
		zap.String("addr", cfg.Address()),
		zap.String("api_prefix", cfg.APIPrefix()),
		zap.String("rate_limit_strategy", string(limiter.Strategy())),
		zap.Int("rate_limit", cfg.RateLimit.Limit),
		zap.Duration("rate_limit_window", cfg.RateLimit.Window),
		zap.String("candidates", store.Source()),
		zap.Bool("metrics", cfg.Metrics.Enabled))

	registerShutdownHandlers(srv, cfg, limiter, asyncStats, rdb)
	registerReloadHandler(store)

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go func() {
		if err := signals.Listen(cmd.Context()); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		return apperrors.WrapInternal(cmd.Context(), err, "server error")
	}
	return nil
}

func registerHealthCheckers(hm *handlers.HealthManager, cfg *config.Config, limiter ratelimit.Limiter, recorder stats.Recorder, rdb redis.Cmdable) {
	hm.RegisterChecker("rate_limiter", handlers.CheckerFunc(func(ctx context.Context) error {
		if cfg.RateLimit.Enabled && limiter == nil {
			return apperrors.NewInternalError("rate limiter not initialized")
		}
		return nil
	}))

	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", handlers.CheckerFunc(func(ctx context.Context) error {
			if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
				return apperrors.NewInternalError("telemetry system not initialized")
			}
			return nil
		}))
	}

	if rdb != nil {
		hm.RegisterChecker("stats_redis", handlers.CheckerFunc(func(ctx context.Context) error {
			if err := pingRedis(ctx, rdb, time.Second); err != nil {
				return apperrors.WrapExternalService(ctx, err, "redis ping failed")
			}
			return nil
		}))
	}

	if breaker, ok := recorder.(*stats.BreakerRecorder); ok {
		hm.RegisterChecker("stats_breaker", handlers.CheckerFunc(func(ctx context.Context) error {
			if state := breaker.State(); state == "open" {
				return apperrors.NewServiceUnavailableError("stats circuit breaker is open")
			}
			return nil
		}))
	}
}

// registerShutdownHandlers registers cleanup in LIFO order: the HTTP server
// stops first, queued stats are flushed before Redis closes, and the logger
// is flushed last.
func registerShutdownHandlers(srv *server.Server, cfg *config.Config, limiter ratelimit.Limiter, asyncStats *stats.AsyncRecorder, rdb *redis.Client) {
	logger := observability.ServerLogger

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		observability.SyncLoggers()
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		return observability.StopMetrics()
	})

	if rdb != nil {
		signals.OnShutdown(func(ctx context.Context) error {
			return rdb.Close()
		})
	}

	if asyncStats != nil {
		signals.OnShutdown(func(ctx context.Context) error {
			flushCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := asyncStats.Close(flushCtx); err != nil {
				logger.Warn("Stats queue not fully flushed",
					zap.Int64("dropped", asyncStats.Dropped()),
					zap.Error(err))
			}
			return nil
		})
	}

	signals.OnShutdown(func(ctx context.Context) error {
		limiter.Stop()
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return apperrors.WrapInternal(ctx, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})
}

func registerReloadHandler(store candidates.Store) {
	logger := observability.ServerLogger

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: attempting config reload")

		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				logger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return apperrors.WrapConfigInvalid(ctx, err, "config reload failed")
			}
		}

		if fs, ok := store.(*candidates.FileStore); ok {
			if err := fs.Reload(); err != nil {
				logger.Error("Failed to reload candidates",
					zap.String("path", fs.Path()),
					zap.Error(err))
				return apperrors.WrapConfigInvalid(ctx, err, "candidate reload failed")
			}
			logger.Info("Candidates reloaded", zap.String("path", fs.Path()))
		}
		return nil
	})
}
