// Package config provides configuration loading and validation utilities.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from YAML files and environment variables, validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	// missing env files are fine outside local development
	_ = godotenv.Load(".env.local", ".env")

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	return LoadFile(fmt.Sprintf("./configs/%s.yaml", env), env)
}

// LoadFile reads the configuration at path using env as AppEnv.
func LoadFile(path, env string) (*Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	cfg.AppEnv = env

	return cfg, v, nil
}

// Watch re-decodes the configuration whenever the backing file changes and
// hands valid results to onChange. Invalid edits are logged and ignored.
func Watch(v *viper.Viper, log *slog.Logger, onChange func(*Config)) {
	if v == nil || onChange == nil {
		return
	}
	if log == nil {
		log = slog.Default()
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		cfg, err := decode(v)
		if err != nil {
			log.Warn("config reload rejected", slog.String("file", e.Name), slog.Any("error", err))
			return
		}
		cfg.AppEnv = v.GetString("app_env")

		log.Info("config reloaded", slog.String("file", e.Name))
		onChange(cfg)
	})
	v.WatchConfig()
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "clicker-social")
	v.SetDefault("app.default_lang", "en")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("mongo.connect_timeout", "30s")
	v.SetDefault("rewards.timezone", "UTC")
	v.SetDefault("abuse.base_cooldown", "1500ms")
	v.SetDefault("abuse.burst_window", "10s")
	v.SetDefault("abuse.burst_threshold", 12)
	v.SetDefault("boxes.normal.threshold", 400)
	v.SetDefault("boxes.normal.min_reward", 1)
	v.SetDefault("boxes.normal.max_reward", 5)
	v.SetDefault("boxes.big.threshold", 700)
	v.SetDefault("boxes.big.min_reward", 5)
	v.SetDefault("boxes.big.max_reward", 44)
	v.SetDefault("session.ttl", "168h")
	v.SetDefault("session.cache_ttl", "5m")
	v.SetDefault("session.refresh_interval", "60s")
	v.SetDefault("session.idempotency_ttl", "24h")
	v.SetDefault("jobs.concurrency", 10)
	v.SetDefault("jobs.moderation_retention", "720h")
	v.SetDefault("jobs.cleanup_cron", "0 4 * * *")
}
