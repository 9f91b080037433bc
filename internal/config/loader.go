// Package config loads and validates ballotbox configuration from viper.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/ballotbox/ballotbox/internal/core/body"
	"github.com/ballotbox/ballotbox/internal/core/candidates"
	"github.com/ballotbox/ballotbox/internal/core/ratelimit"
	apperrors "github.com/ballotbox/ballotbox/internal/errors"
)

// DefaultPort is used when no port is configured or the configured port is
// not a number.
const DefaultPort = 8080

// SupportedProtocolVersion is the only /api/v{N} version served.
const SupportedProtocolVersion = 1

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// Diagnostic is a non-fatal configuration problem that Load corrected.
type Diagnostic struct {
	Key     string
	Message string
}

func (d Diagnostic) String() string {
	return d.Key + ": " + d.Message
}

// EnvBinding maps an environment variable suffix to a config key.
type EnvBinding struct {
	Name string
	Key  string
}

// EnvBindings lists the short environment variable names accepted in
// addition to viper's automatic PREFIX_SECTION_KEY mapping.
var EnvBindings = []EnvBinding{
	{Name: "HOST", Key: "server.host"},
	{Name: "PORT", Key: "server.port"},
	{Name: "LOG_LEVEL", Key: "logging.level"},
	{Name: "LOG_FORMAT", Key: "logging.format"},
	{Name: "RATE_LIMIT_MAX", Key: "rate_limit.limit"},
	{Name: "RATE_LIMIT_WINDOW", Key: "rate_limit.window"},
	{Name: "RATE_LIMIT_STRATEGY", Key: "rate_limit.strategy"},
	{Name: "CANDIDATES_PATH", Key: "candidates.path"},
	{Name: "REDIS_ADDR", Key: "stats.redis.addr"},
	{Name: "REDIS_PASSWORD", Key: "stats.redis.password"},
	{Name: "REDIS_DB", Key: "stats.redis.db"},
	{Name: "METRICS_PORT", Key: "metrics.port"},
}

// BindEnv registers EnvBindings on v. prefix is the identity env prefix
// with or without a trailing underscore.
func BindEnv(v *viper.Viper, prefix string) error {
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	for _, b := range EnvBindings {
		if err := v.BindEnv(b.Key, prefix+b.Name); err != nil {
			return fmt.Errorf("bind %s: %w", prefix+b.Name, err)
		}
	}
	return nil
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.protocol_version", SupportedProtocolVersion)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.strategy", string(ratelimit.StrategyThreshold))
	v.SetDefault("rate_limit.limit", ratelimit.DefaultLimit)
	v.SetDefault("rate_limit.window", ratelimit.DefaultWindow.String())
	v.SetDefault("rate_limit.idle_ttl", ratelimit.DefaultIdleTTL.String())
	v.SetDefault("rate_limit.cleanup_every", ratelimit.DefaultCleanupEvery.String())
	v.SetDefault("rate_limit.trust_forwarded_for", false)
	v.SetDefault("rate_limit.key_header", "")
	v.SetDefault("rate_limit.exempt", []string{"/health", "/version", "/metrics", "/stats", "/debug"})

	v.SetDefault("body.max_bytes", 1<<20)
	v.SetDefault("body.encoding", string(body.EncodingUTF8))

	v.SetDefault("candidates.source", candidates.SourceStub)
	v.SetDefault("candidates.path", filepath.Join("config", "candidates.json"))

	v.SetDefault("vote.require_known_candidate", false)

	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.backend", "memory")
	v.SetDefault("stats.redis.addr", "localhost:6379")
	v.SetDefault("stats.redis.password", "")
	v.SetDefault("stats.redis.db", 0)
	v.SetDefault("stats.redis.prefix", "ballotbox:ratelimit")
	v.SetDefault("stats.redis.ttl", "24h")
	v.SetDefault("stats.redis.bucket", "minute")
	v.SetDefault("stats.redis.track_keys", false)
	v.SetDefault("stats.redis.dial_timeout", "500ms")
	v.SetDefault("stats.redis.read_timeout", "250ms")
	v.SetDefault("stats.redis.write_timeout", "250ms")
	v.SetDefault("stats.redis.max_retries", -1)
	v.SetDefault("stats.queue_size", 1024)
	v.SetDefault("stats.record_timeout", "250ms")
	v.SetDefault("stats.breaker.max_failures", 5)
	v.SetDefault("stats.breaker.timeout", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)

	v.SetDefault("debug.enabled", false)
}

// ParsePort interprets a configured port. Empty values yield DefaultPort.
// Values that are not integers also yield DefaultPort, with a diagnostic
// for the caller to log. Range is checked by Validate.
func ParsePort(raw interface{}) (int, *Diagnostic) {
	switch v := raw.(type) {
	case nil:
		return DefaultPort, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return DefaultPort, nil
		}
		if port, err := strconv.Atoi(s); err == nil {
			return port, nil
		}
	}

	return DefaultPort, &Diagnostic{
		Key:     "server.port",
		Message: fmt.Sprintf("port %q is not a number, using %d", fmt.Sprint(raw), DefaultPort),
	}
}

// Load decodes v into a Config, repairs a non-numeric port, validates the
// result and stores it for GetConfig. Validation failures are returned as
// CONFIG_INVALID envelopes.
func Load(v *viper.Viper) (*Config, []Diagnostic, error) {
	if v == nil {
		v = viper.GetViper()
	}

	var diagnostics []Diagnostic

	if err := checkSections(v); err != nil {
		return nil, diagnostics, err
	}

	settings := v.AllSettings()
	port, diag := ParsePort(v.Get("server.port"))
	if diag != nil {
		diagnostics = append(diagnostics, *diag)
	}
	server, _ := settings["server"].(map[string]interface{})
	if server == nil {
		server = map[string]interface{}{}
		settings["server"] = server
	}
	server["port"] = port

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, diagnostics, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, diagnostics, apperrors.WrapConfigInvalid(context.Background(), err, "failed to decode configuration")
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, diagnostics, err
	}

	setConfig(cfg)
	return cfg, diagnostics, nil
}

// configSections are the top-level keys that must decode as tables. An
// environment variable named after a section (BALLOTBOX_RATE_LIMIT) replaces
// the whole table under AutomaticEnv, leaving every key in it unset.
var configSections = []string{"server", "rate_limit", "body", "candidates", "vote", "stats", "logging", "metrics", "health", "debug"}

func checkSections(v *viper.Viper) error {
	for _, name := range configSections {
		value := v.Get(name)
		if value == nil {
			continue
		}
		if _, isTable := value.(map[string]interface{}); !isTable {
			return apperrors.NewConfigInvalidError(fmt.Sprintf(
				"config section %q resolved to %q instead of a table; an environment variable is probably named after the section", name, fmt.Sprint(value)))
		}
	}
	return nil
}

func (c *Config) normalize() {
	c.RateLimit.Strategy = strings.ToLower(strings.TrimSpace(c.RateLimit.Strategy))
	c.Body.Encoding = strings.ToLower(strings.TrimSpace(c.Body.Encoding))
	c.Candidates.Source = strings.ToLower(strings.TrimSpace(c.Candidates.Source))
	c.Stats.Backend = strings.ToLower(strings.TrimSpace(c.Stats.Backend))
	c.RateLimit.KeyHeader = strings.TrimSpace(c.RateLimit.KeyHeader)

	exempt := c.RateLimit.Exempt[:0]
	for _, p := range c.RateLimit.Exempt {
		if p = strings.TrimSpace(p); p != "" {
			exempt = append(exempt, p)
		}
	}
	c.RateLimit.Exempt = exempt
}

// Validate reports the first configuration problem as a CONFIG_INVALID
// envelope.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return apperrors.NewConfigInvalidError(fmt.Sprintf(format, args...))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return invalid("server.port %d is outside 0-65535", c.Server.Port)
	}
	if c.Server.ProtocolVersion != SupportedProtocolVersion {
		return invalid("server.protocol_version %d is not supported (only %d)", c.Server.ProtocolVersion, SupportedProtocolVersion)
	}

	if c.RateLimit.Limit <= 0 {
		return invalid("rate_limit.limit must be positive, got %d", c.RateLimit.Limit)
	}
	if c.RateLimit.Window <= 0 {
		return invalid("rate_limit.window must be positive, got %s", c.RateLimit.Window)
	}
	if _, err := ratelimit.ParseStrategy(c.RateLimit.Strategy); err != nil {
		return invalid("rate_limit.strategy: %v", err)
	}
	if c.RateLimit.IdleTTL < 0 || c.RateLimit.CleanupEvery < 0 {
		return invalid("rate_limit.idle_ttl and rate_limit.cleanup_every must not be negative")
	}

	if c.Body.MaxBytes < 0 {
		return invalid("body.max_bytes must not be negative, got %d", c.Body.MaxBytes)
	}
	if _, err := body.ParseEncoding(c.Body.Encoding); err != nil {
		return invalid("body.encoding: %v", err)
	}

	switch c.Candidates.Source {
	case candidates.SourceStub:
	case candidates.SourceFile:
		if strings.TrimSpace(c.Candidates.Path) == "" {
			return invalid("candidates.path is required when candidates.source is file")
		}
	default:
		return invalid("candidates.source %q must be stub or file", c.Candidates.Source)
	}

	switch c.Stats.Backend {
	case "memory":
	case "redis":
		if c.Stats.Enabled && strings.TrimSpace(c.Stats.Redis.Addr) == "" {
			return invalid("stats.redis.addr is required when stats.backend is redis")
		}
	default:
		return invalid("stats.backend %q must be memory or redis", c.Stats.Backend)
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return invalid("metrics.port %d is outside 1-65535", c.Metrics.Port)
	}

	return nil
}

// Address is the host:port the HTTP server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// APIPrefix is the versioned route prefix, e.g. /api/v1.
func (c *Config) APIPrefix() string {
	return fmt.Sprintf("/api/v%d", c.Server.ProtocolVersion)
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// ConfigPaths returns the directories searched for config.yaml, highest
// precedence first.
func ConfigPaths(configName string) []string {
	var paths []string
	if dir := gfconfig.GetAppConfigDir(configName); strings.TrimSpace(dir) != "" {
		paths = append(paths, dir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "."+configName))
	}
	return append(paths, "./config")
}

// DefaultConfigPath returns the XDG path to the user config file.
func DefaultConfigPath(configName string) string {
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}
