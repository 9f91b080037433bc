package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ballotbox/ballotbox/internal/core/ratelimit/stats"
	"github.com/ballotbox/ballotbox/internal/output"
)

var rateLimitStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show rate limit decision statistics",
	Long: `Show allowed and denied counts overall and per route.

By default the counters are read from the Redis stats backend. Use --server
to read them from a running instance instead, which also covers the memory
backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		var source stats.Snapshotter
		if serverURL, _ := cmd.Flags().GetString("server"); strings.TrimSpace(serverURL) != "" {
			source = newServerSnapshotter(serverURL)
		} else {
			recorder, rdb, err := openRedisStats(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rdb.Close() }()
			source = recorder
		}

		snap, err := source.Snapshot(cmd.Context())
		if err != nil {
			return err
		}

		rendered, err := output.RenderSnapshot(format, snap)
		if err != nil {
			return err
		}

		sink, err := openCommandSink(cmd, "rate-limit.stats", format)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	rateLimitStatsCmd.Flags().String("server", "", "Base URL of a running server (e.g. http://localhost:8080)")
	rateLimitStatsCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|markdown|json")
	rateLimitStatsCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	rateLimitStatsCmd.Flags().String("out-dir", "", "Write output to a directory")
}
