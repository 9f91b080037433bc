package config

import (
	"time"
)

// Config is the complete ballotbox configuration. Values come from, in
// increasing precedence: built-in defaults (SetDefaults), the config file,
// BALLOTBOX_* environment variables and command-line flags.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Body       BodyConfig       `mapstructure:"body"`
	Candidates CandidatesConfig `mapstructure:"candidates"`
	Vote       VoteConfig       `mapstructure:"vote"`
	Stats      StatsConfig      `mapstructure:"stats"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Health     HealthConfig     `mapstructure:"health"`
	Debug      DebugConfig      `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ProtocolVersion int           `mapstructure:"protocol_version"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RateLimitConfig configures the per-client limiter.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Strategy is one of threshold, window or token_bucket.
	Strategy string        `mapstructure:"strategy"`
	Limit    int           `mapstructure:"limit"`
	Window   time.Duration `mapstructure:"window"`

	// IdleTTL and CleanupEvery bound memory for the window and token_bucket
	// strategies. The threshold strategy forgets clients on reset.
	IdleTTL      time.Duration `mapstructure:"idle_ttl"`
	CleanupEvery time.Duration `mapstructure:"cleanup_every"`

	// TrustForwardedFor keys clients by the first X-Forwarded-For hop.
	// Enable only behind a proxy that sets the header.
	TrustForwardedFor bool `mapstructure:"trust_forwarded_for"`

	// KeyHeader, when set, names a header whose value keys the client
	// ahead of any address.
	KeyHeader string `mapstructure:"key_header"`

	// Exempt lists path prefixes that bypass the limiter.
	Exempt []string `mapstructure:"exempt"`
}

// BodyConfig bounds and decodes request bodies.
type BodyConfig struct {
	MaxBytes int64  `mapstructure:"max_bytes"`
	Encoding string `mapstructure:"encoding"`
}

// CandidatesConfig selects the candidate store.
type CandidatesConfig struct {
	// Source is "stub" (empty list) or "file".
	Source string `mapstructure:"source"`
	Path   string `mapstructure:"path"`
}

type VoteConfig struct {
	RequireKnownCandidate bool `mapstructure:"require_known_candidate"`
}

// StatsConfig configures rate limit decision statistics.
type StatsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Backend is "memory" or "redis".
	Backend string        `mapstructure:"backend"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Breaker BreakerConfig `mapstructure:"breaker"`

	// QueueSize and RecordTimeout bound the background writer used for the
	// redis backend. Events past a full queue are dropped.
	QueueSize     int           `mapstructure:"queue_size"`
	RecordTimeout time.Duration `mapstructure:"record_timeout"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
	Bucket    string        `mapstructure:"bucket"`
	TrackKeys bool          `mapstructure:"track_keys"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxRetries of -1 disables retries.
	MaxRetries int `mapstructure:"max_retries"`
}

// BreakerConfig guards the Redis backend with a circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Format is json or console.
	Format string `mapstructure:"format"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated Prometheus exporter port. /metrics on the main
	// port proxies to it.
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
