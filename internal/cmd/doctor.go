package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ballotbox/ballotbox/internal/config"
	"github.com/ballotbox/ballotbox/internal/core/candidates"
	"github.com/ballotbox/ballotbox/internal/observability"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the installation and suggest fixes for common issues.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		identity := GetAppIdentity()

		logger.Info("=== " + identity.BinaryName + " doctor ===")
		logger.Info("")

		ok := runDoctorChecks(cmd.Context(), identity.ConfigName)

		logger.Info("")
		if ok {
			logger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", identity.BinaryName))
		} else {
			logger.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		logger.Info("")
		logger.Info("=== End Diagnostics ===")
	},
}

func runDoctorChecks(ctx context.Context, configName string) bool {
	logger := observability.CLILogger
	const total = 6
	allChecks := true
	step := func(n int, name string) string { return fmt.Sprintf("[%d/%d] Checking %s...", n, total, name) }

	goVersion := runtime.Version()
	logger.Info(step(1, "Go runtime")+" ✅ "+goVersion,
		zap.String("go_version", goVersion),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))

	version := crucible.GetVersion()
	if version.Gofulmen != "" && version.Crucible != "" {
		logger.Info(fmt.Sprintf("%s ✅ gofulmen %s, crucible %s", step(2, "Fulmen libraries"), version.Gofulmen, version.Crucible))
	} else {
		logger.Warn(step(2, "Fulmen libraries") + " ⚠️  version metadata unavailable")
		allChecks = false
	}

	if configPath := config.DefaultConfigPath(configName); configPath == "" {
		logger.Warn(step(3, "config directory") + " ⚠️  cannot resolve config directory")
		allChecks = false
	} else {
		logger.Info(fmt.Sprintf("%s ✅ %s (%s)", step(3, "config directory"), filepath.Dir(configPath), existenceStatus(fileExists(configPath))),
			zap.String("config_path", configPath))
	}

	cfg, err := loadConfig(logger)
	if err != nil {
		logger.Error(step(4, "configuration")+" ❌ invalid", zap.Error(err))
		logger.Warn(step(5, "candidate source") + " ⚠️  skipped (config not loaded)")
		logger.Warn(step(6, "stats backend") + " ⚠️  skipped (config not loaded)")
		return false
	}
	logger.Info(fmt.Sprintf("%s ✅ listening on %s, %s limiter %d/%s", step(4, "configuration"),
		cfg.Address(), cfg.RateLimit.Strategy, cfg.RateLimit.Limit, cfg.RateLimit.Window))

	switch {
	case cfg.Candidates.Source != candidates.SourceFile:
		logger.Info(step(5, "candidate source") + " ✅ stub (empty list)")
	default:
		info, statErr := os.Stat(cfg.Candidates.Path)
		if statErr != nil {
			logger.Error(fmt.Sprintf("%s ❌ %s (run '%s generate')", step(5, "candidate source"), cfg.Candidates.Path, GetAppIdentity().BinaryName),
				zap.Error(statErr))
			allChecks = false
			break
		}
		names, readErr := candidates.ReadFile(cfg.Candidates.Path)
		if readErr != nil {
			logger.Error(step(5, "candidate source")+" ❌ unreadable", zap.Error(readErr))
			allChecks = false
			break
		}
		logger.Info(fmt.Sprintf("%s ✅ %d candidates in %s (%s)", step(5, "candidate source"),
			len(names), cfg.Candidates.Path, formatFileSize(info.Size())))
	}

	switch {
	case !cfg.Stats.Enabled:
		logger.Info(step(6, "stats backend") + " ✅ disabled")
	case cfg.Stats.Backend != "redis":
		logger.Info(step(6, "stats backend") + " ✅ memory")
	default:
		rdb := newRedisClient(cfg.Stats.Redis)
		defer func() { _ = rdb.Close() }()
		if err := pingRedis(ctx, rdb, 2*time.Second); err != nil {
			logger.Warn(fmt.Sprintf("%s ⚠️  redis at %s unreachable", step(6, "stats backend"), cfg.Stats.Redis.Addr), zap.Error(err))
			allChecks = false
		} else {
			logger.Info(fmt.Sprintf("%s ✅ redis at %s", step(6, "stats backend"), cfg.Stats.Redis.Addr))
		}
	}

	return allChecks
}

var (
	doctorInitForce         bool
	doctorInitRedisPassword string
)

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath(GetAppIdentity().ConfigName)
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}

		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		password := strings.TrimSpace(doctorInitRedisPassword)
		if strings.EqualFold(password, "prompt") {
			value, err := promptForValue("Enter Redis password (leave blank to skip): ")
			if err != nil {
				return err
			}
			password = value
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}

		mode := os.FileMode(0644)
		if password != "" {
			mode = 0600
		}
		if err := os.WriteFile(configPath, []byte(buildInitConfig(password)), mode); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(observability.CLILogger); err != nil {
			return err
		}
		source := "defaults and environment"
		if used := strings.TrimSpace(configFileUsed()); used != "" {
			source = used
		}
		observability.CLILogger.Info("Config is valid", zap.String("source", source))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)
	doctorCmd.AddCommand(doctorValidateCmd)

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")
	doctorInitCmd.Flags().StringVar(&doctorInitRedisPassword, "redis-password", "", "set the stats Redis password or use 'prompt' to enter")
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

func buildInitConfig(redisPassword string) string {
	lines := []string{
		"# ballotbox config - created by 'ballotbox doctor init'",
		"server:",
		"  port: 8080",
		"rate_limit:",
		"  strategy: threshold",
		"  limit: 10",
		"  window: 2m",
		"candidates:",
		"  source: stub",
		"  path: config/candidates.json",
		"stats:",
		"  backend: memory",
		"  redis:",
		"    addr: localhost:6379",
	}

	if strings.TrimSpace(redisPassword) != "" {
		lines = append(lines, fmt.Sprintf("    password: %q", redisPassword))
	} else {
		lines = append(lines, "    # password: \"\"  # Set via BALLOTBOX_REDIS_PASSWORD or uncomment")
	}

	lines = append(lines,
		"logging:",
		"  level: info",
	)
	return strings.Join(lines, "\n") + "\n"
}

func promptForValue(prompt string) (string, error) {
	if _, err := fmt.Fprint(os.Stdout, prompt); err != nil {
		return "", err
	}
	reader := bufio.NewReader(os.Stdin)
	value, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func existenceStatus(exists bool) string {
	if exists {
		return "exists"
	}
	return "missing"
}
