package cmd

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ballotbox/ballotbox/internal/config"
	"github.com/ballotbox/ballotbox/internal/core/candidates"
	"github.com/ballotbox/ballotbox/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		version := crucible.GetVersion()
		identity := GetAppIdentity()

		logger.Info("=== ballotbox Environment Information ===")
		logger.Info("")

		logger.Info("Application:")
		logger.Info("  Name:       " + identity.BinaryName)
		logger.Info("  Version:    " + versionInfo.Version)
		logger.Info("  Commit:     " + versionInfo.Commit)
		logger.Info("  Built:      " + versionInfo.BuildDate)
		logger.Info("")

		logger.Info("SSOT:")
		logger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		logger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		logger.Info("")

		logger.Info("Runtime:")
		logger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		logger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		logger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		logger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		logger.Info("")

		logger.Info("Environment:")
		for _, b := range config.EnvBindings {
			name := identity.EnvPrefix + b.Name
			logger.Info(fmt.Sprintf("  %-28s %s", name, envStatus(name)))
		}
		logger.Info("")

		cfg, err := loadConfig(logger)
		if err != nil {
			logger.Warn("Config load failed", zap.Error(err))
			return
		}

		configFile := configFileUsed()
		if configFile == "" {
			configFile = "(none)"
		}

		logger.Info("Configuration:")
		logger.Info("  Config File:    "+configFile, zap.String("config_file", configFile))
		logger.Info("  Listen Address: "+cfg.Address(), zap.String("addr", cfg.Address()))
		logger.Info("  API Prefix:     "+cfg.APIPrefix(), zap.String("api_prefix", cfg.APIPrefix()))
		logger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		logger.Info(fmt.Sprintf("  Rate Limit:     %s %d per %s (enabled: %t)", cfg.RateLimit.Strategy, cfg.RateLimit.Limit, cfg.RateLimit.Window, cfg.RateLimit.Enabled))
		logger.Info("  Exempt Paths:   " + strings.Join(cfg.RateLimit.Exempt, ", "))
		logger.Info(fmt.Sprintf("  Body Limit:     %d bytes (%s)", cfg.Body.MaxBytes, cfg.Body.Encoding))
		logger.Info("  Candidates:     "+describeCandidates(cfg), zap.String("candidates_source", cfg.Candidates.Source))
		logger.Info(fmt.Sprintf("  Stats:          %s (enabled: %t)", cfg.Stats.Backend, cfg.Stats.Enabled))
		if cfg.Stats.Backend == "redis" {
			logger.Info("  Redis Address:  " + cfg.Stats.Redis.Addr)
			logger.Info("  Redis Prefix:   " + cfg.Stats.Redis.Prefix)
		}
		logger.Info(fmt.Sprintf("  Metrics Port:   %d (enabled: %t)", cfg.Metrics.Port, cfg.Metrics.Enabled), zap.Int("metrics_port", cfg.Metrics.Port))
		logger.Info("")

		logger.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}

func describeCandidates(cfg *config.Config) string {
	if cfg.Candidates.Source == candidates.SourceFile {
		return "file " + cfg.Candidates.Path
	}
	return cfg.Candidates.Source
}

func configFileUsed() string {
	return viper.ConfigFileUsed()
}

func envStatus(name string) string {
	if strings.TrimSpace(os.Getenv(name)) != "" {
		return "(set)"
	}
	return "(not set)"
}
