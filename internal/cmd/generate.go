package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ballotbox/ballotbox/internal/core/candidates"
	"github.com/ballotbox/ballotbox/internal/observability"
	"github.com/ballotbox/ballotbox/internal/output"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a candidates file",
	Long: `Generate random candidate names and write them as a JSON array.

Point candidates.path at the file and set candidates.source to "file" to
serve it from GET /api/v1/candidates.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().IntP("count", "n", candidates.DefaultCount, "Number of candidates to generate")
	generateCmd.Flags().String("out", filepath.Join("config", "candidates.json"), "Candidates file to write")
	generateCmd.Flags().Uint64("seed", 0, "Random seed (0 picks one)")
	generateCmd.Flags().String("output-format", string(output.FormatTable), "Summary format: table|markdown|json")
	generateCmd.Flags().Bool("quiet", false, "Only write the file")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	count, _ := cmd.Flags().GetInt("count")
	outPath, _ := cmd.Flags().GetString("out")
	seed, _ := cmd.Flags().GetUint64("seed")
	quiet, _ := cmd.Flags().GetBool("quiet")

	if count < 0 {
		return fmt.Errorf("--count must not be negative, got %d", count)
	}
	outPath = strings.TrimSpace(outPath)
	if outPath == "" {
		return fmt.Errorf("--out is required")
	}

	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}

	names := candidates.Generate(count, seed)
	if err := candidates.WriteFile(outPath, names); err != nil {
		return err
	}

	if observability.CLILogger != nil {
		observability.CLILogger.Debug("Candidates written",
			zap.String("path", outPath),
			zap.Int("count", len(names)))
	}

	if quiet {
		return nil
	}
	return writeGenerateSummary(cmd.OutOrStdout(), format, outPath, names)
}

func writeGenerateSummary(w io.Writer, format output.Format, path string, names []string) error {
	list := make([]candidates.Candidate, len(names))
	for i, name := range names {
		list[i] = candidates.Candidate{ID: i, Name: name}
	}

	rendered, err := output.RenderCandidates(format, list)
	if err != nil {
		return err
	}
	if format != output.FormatJSON {
		if _, err := fmt.Fprintf(w, "Wrote %d candidates to %s\n\n", len(names), path); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(w, rendered)
	return err
}
