package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apperrors "github.com/ballotbox/ballotbox/internal/errors"
	"github.com/ballotbox/ballotbox/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify the binary can start: version info, logger, configuration and candidate source.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		if logger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", apperrors.NewConfigInvalidError("Logger not initialized"))
			return
		}
		logger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", apperrors.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		logger.Info("✅ Version information available")
		logger.Info("✅ Logger initialized")

		cfg, err := loadConfig(logger)
		if err != nil {
			ExitWithCode(logger, ExitCodeFor(err), "Configuration invalid", err)
			return
		}
		logger.Info("✅ Configuration valid", zap.String("addr", cfg.Address()))

		store, err := newCandidateStore(cfg.Candidates)
		if err != nil {
			ExitWithCode(logger, foundry.ExitFileNotFound, "Candidate source unavailable", err)
			return
		}
		logger.Info("✅ Candidate source ready", zap.String("source", store.Source()))

		logger.Info("")
		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
