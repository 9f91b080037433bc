package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ballotbox/ballotbox/internal/config"
	"github.com/ballotbox/ballotbox/internal/core/ratelimit/stats"
	"github.com/ballotbox/ballotbox/internal/observability"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect and reset rate limit statistics",
}

func init() {
	rateLimitCmd.AddCommand(rateLimitStatsCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}

// openRedisStats connects to the configured Redis stats backend.
func openRedisStats(ctx context.Context) (*stats.RedisRecorder, *redis.Client, error) {
	cfg, err := loadConfig(observability.CLILogger)
	if err != nil {
		return nil, nil, err
	}
	return connectRedisStats(ctx, cfg.Stats.Redis)
}

func connectRedisStats(ctx context.Context, cfg config.RedisConfig) (*stats.RedisRecorder, *redis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, nil, fmt.Errorf("stats.redis.addr is not configured")
	}
	rdb := newRedisClient(cfg)
	if err := pingRedis(ctx, rdb, 3*time.Second); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return newRedisRecorder(rdb, cfg), rdb, nil
}

// serverSnapshotter reads /stats/ratelimit from a running server.
type serverSnapshotter struct {
	baseURL string
	client  *http.Client
}

func newServerSnapshotter(baseURL string) *serverSnapshotter {
	return &serverSnapshotter{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *serverSnapshotter) Snapshot(ctx context.Context) (stats.Snapshot, error) {
	var snap stats.Snapshot

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/stats/ratelimit", nil)
	if err != nil {
		return snap, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return snap, fmt.Errorf("fetch stats: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return snap, fmt.Errorf("fetch stats: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode stats: %w", err)
	}
	return snap, nil
}
