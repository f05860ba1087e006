package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                 string
	AppEnv                  string
	AppPort                 string
	LogLevel                string
	DatabaseDriver          string
	DatabaseURL             string
	RedisURL                string
	NATSURL                 string
	JWTSecret               string
	RequestCacheTTL         time.Duration
	NotificationQueueSize   int
	NotificationMaxAttempts int
	NotificationMaxBackoff  time.Duration
	NotificationChannelBase string
	RateLimitMax            int
	RateLimitWindow         time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EVENTS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Church Events API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("requests.cache_ttl", "1m")
	v.SetDefault("notifications.queue_size", 256)
	v.SetDefault("notifications.max_attempts", 5)
	v.SetDefault("notifications.max_backoff", "30s")
	v.SetDefault("notifications.channel", "events")
	v.SetDefault("rate_limit.max", 30)
	v.SetDefault("rate_limit.window", "1m")

	cacheTTL, err := parseDuration(v, "requests.cache_ttl", time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid request cache ttl: %w", err)
	}

	maxBackoff, err := parseDuration(v, "notifications.max_backoff", 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid notification max backoff: %w", err)
	}

	rateWindow, err := parseDuration(v, "rate_limit.window", time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid rate limit window: %w", err)
	}

	cfg := Config{
		AppName:                 v.GetString("app.name"),
		AppEnv:                  v.GetString("app.env"),
		AppPort:                 v.GetString("app.port"),
		LogLevel:                strings.ToLower(v.GetString("log.level")),
		DatabaseDriver:          strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseURL:             v.GetString("database.url"),
		RedisURL:                v.GetString("redis.url"),
		NATSURL:                 v.GetString("nats.url"),
		JWTSecret:               v.GetString("jwt.secret"),
		RequestCacheTTL:         cacheTTL,
		NotificationQueueSize:   v.GetInt("notifications.queue_size"),
		NotificationMaxAttempts: v.GetInt("notifications.max_attempts"),
		NotificationMaxBackoff:  maxBackoff,
		NotificationChannelBase: v.GetString("notifications.channel"),
		RateLimitMax:            v.GetInt("rate_limit.max"),
		RateLimitWindow:         rateWindow,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	if cfg.NotificationQueueSize <= 0 {
		cfg.NotificationQueueSize = 256
	}

	if cfg.NotificationMaxAttempts <= 0 {
		cfg.NotificationMaxAttempts = 5
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}
	return time.ParseDuration(raw)
}
