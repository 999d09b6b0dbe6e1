package config

import "time"

// Config holds runtime configuration for the clicker social service.
type Config struct {
	AppEnv    string          `mapstructure:"app_env"`
	App       AppConfig       `mapstructure:"app" validate:"required"`
	Logger    LoggerConfig    `mapstructure:"logger" validate:"required"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Mongo     MongoConfig     `mapstructure:"mongo" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis" validate:"required"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Rewards   RewardsConfig   `mapstructure:"rewards" validate:"required"`
	Abuse     AbuseConfig     `mapstructure:"abuse" validate:"required"`
	Boxes     BoxesConfig     `mapstructure:"boxes" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Session   SessionConfig   `mapstructure:"session" validate:"required"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	DefaultLang string `mapstructure:"default_lang" validate:"required,oneof=en tr"`
	DevSessions bool   `mapstructure:"dev_sessions"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"required,oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type SentryConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	DSN              string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate" validate:"gte=0,lte=1"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri" validate:"required"`
	Database       string        `mapstructure:"database" validate:"required"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// NATSConfig controls the optional JetStream notification fan-out.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url" validate:"required_if=Enabled true"`
	Stream  string `mapstructure:"stream" validate:"required_if=Enabled true"`
	Subject string `mapstructure:"subject_prefix" validate:"required_if=Enabled true"`
}

type RewardsConfig struct {
	Timezone string `mapstructure:"timezone" validate:"required"`
}

type AbuseConfig struct {
	BaseCooldown   time.Duration `mapstructure:"base_cooldown" validate:"required"`
	BurstWindow    time.Duration `mapstructure:"burst_window" validate:"required"`
	BurstThreshold int           `mapstructure:"burst_threshold" validate:"required,gt=0"`
}

type BoxesConfig struct {
	Normal BoxConfig `mapstructure:"normal" validate:"required"`
	Big    BoxConfig `mapstructure:"big" validate:"required"`
}

type BoxConfig struct {
	Threshold int64 `mapstructure:"threshold" validate:"required,gt=0"`
	MinReward int   `mapstructure:"min_reward" validate:"gte=0"`
	MaxReward int   `mapstructure:"max_reward" validate:"gtefield=MinReward"`
}

// RateLimitRule is a single "limit per window" setting, e.g. {limit: 30, window: "1m"}.
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

type RateLimitConfig struct {
	Enabled   bool                     `mapstructure:"enabled"`
	Whitelist []string                 `mapstructure:"whitelist"`
	PerUser   RateLimitRule            `mapstructure:"per_user"`
	Routes    map[string]RateLimitRule `mapstructure:"routes"`
}

type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl" validate:"required"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl" validate:"required"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"required"`
	IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl" validate:"required"`
}

type JobsConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	Concurrency         int           `mapstructure:"concurrency"`
	ModerationRetention time.Duration `mapstructure:"moderation_retention"`
	CleanupCron         string        `mapstructure:"cleanup_cron"`
}
