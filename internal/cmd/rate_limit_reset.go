package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ballotbox/ballotbox/internal/output"
)

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete rate limit statistics from Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format == output.FormatMarkdown {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		yes, _ := cmd.Flags().GetBool("yes")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if !yes && !dryRun {
			return errors.New("reset requires --yes (or use --dry-run)")
		}

		recorder, rdb, err := openRedisStats(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()

		keys, err := recorder.Keys(cmd.Context())
		if err != nil {
			return err
		}

		sink, err := openCommandSink(cmd, "rate-limit.reset", format)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		result := resetResult{Prefix: recorder.Prefix(), Matched: len(keys), DryRun: dryRun}
		if !dryRun {
			if result.Deleted, err = recorder.Reset(cmd.Context()); err != nil {
				return err
			}
		}
		return writeResetResult(sink.writer, format, result)
	},
}

type resetResult struct {
	Prefix  string `json:"prefix"`
	Matched int    `json:"matched"`
	Deleted int64  `json:"deleted"`
	DryRun  bool   `json:"dry_run"`
}

func writeResetResult(w io.Writer, format output.Format, result resetResult) error {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if result.DryRun {
		_, err := fmt.Fprintf(w, "Would delete %d key(s) under %s:*\n", result.Matched, result.Prefix)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d key(s) under %s:*\n", result.Deleted, result.Matched, result.Prefix)
	return err
}

func init() {
	rateLimitResetCmd.Flags().Bool("yes", false, "Confirm destructive reset")
	rateLimitResetCmd.Flags().Bool("dry-run", false, "Show what would be deleted")
	rateLimitResetCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")
	rateLimitResetCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	rateLimitResetCmd.Flags().String("out-dir", "", "Write output to a directory")
}
