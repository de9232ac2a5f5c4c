package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// Environment > config file > defaults precedence; the CLI applies flags last.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	v := viper.New()

	// Defaults matching DefaultServiceConfig
	def := DefaultServiceConfig()
	v.SetDefault("grpc.host", def.GRPC.Host)
	v.SetDefault("grpc.port", def.GRPC.Port)
	v.SetDefault("grpc.request_timeout", def.GRPC.RequestTimeout.String())
	v.SetDefault("admin.host", def.Admin.Host)
	v.SetDefault("admin.port", def.Admin.Port)
	v.SetDefault("admin.rate_limit_rps", def.Admin.RateLimitRPS)
	v.SetDefault("admin.rate_limit_burst", def.Admin.RateLimitBurst)
	v.SetDefault("database.url", def.Database.URL)
	v.SetDefault("database.connect_timeout", def.Database.ConnectTimeout.String())
	v.SetDefault("rules.cache_ttl", def.Rules.CacheTTL.String())
	v.SetDefault("rules.fetch_timeout", def.Rules.FetchTimeout.String())
	v.SetDefault("rules.serve_stale", def.Rules.ServeStale)
	v.SetDefault("rules.breaker_failures", def.Rules.BreakerFailures)
	v.SetDefault("rules.breaker_cooldown", def.Rules.BreakerCooldown.String())
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.file", "")
	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", def.Events.Topic)

	// Bind environment variables with MEDAUDIT_ prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Credentials must be environment-only (12-factor)
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &ServiceConfig{
		GRPC: GRPCConfig{
			Host:           v.GetString("grpc.host"),
			Port:           v.GetInt("grpc.port"),
			RequestTimeout: v.GetDuration("grpc.request_timeout"),
		},
		Admin: AdminConfig{
			Host:           v.GetString("admin.host"),
			Port:           v.GetInt("admin.port"),
			RateLimitRPS:   v.GetFloat64("admin.rate_limit_rps"),
			RateLimitBurst: v.GetInt("admin.rate_limit_burst"),
		},
		Database: DatabaseConfig{
			URL:            v.GetString("database.url"),
			ConnectTimeout: v.GetDuration("database.connect_timeout"),
		},
		Rules: RulesConfig{
			CacheTTL:        v.GetDuration("rules.cache_ttl"),
			FetchTimeout:    v.GetDuration("rules.fetch_timeout"),
			ServeStale:      v.GetBool("rules.serve_stale"),
			BreakerFailures: v.GetInt("rules.breaker_failures"),
			BreakerCooldown: v.GetDuration("rules.breaker_cooldown"),
		},
		Events: EventsConfig{
			Brokers: splitList(v.GetStringSlice("events.brokers")),
			Topic:   v.GetString("events.topic"),
		},
	}
	cfg.Logging.Level = v.GetString("logging.level")
	cfg.Logging.Format = v.GetString("logging.format")
	cfg.Logging.File = v.GetString("logging.file")

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks port ranges, positive durations and enumerated values.
func Validate(cfg *ServiceConfig) error {
	for name, port := range map[string]int{"grpc.port": cfg.GRPC.Port, "admin.port": cfg.Admin.Port} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
		}
	}
	if cfg.GRPC.RequestTimeout <= 0 {
		return fmt.Errorf("grpc.request_timeout must be positive, got %v", cfg.GRPC.RequestTimeout)
	}
	if cfg.Admin.RateLimitRPS <= 0 || cfg.Admin.RateLimitBurst <= 0 {
		return fmt.Errorf("admin rate limit must be positive, got %v rps burst %d", cfg.Admin.RateLimitRPS, cfg.Admin.RateLimitBurst)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if cfg.Database.ConnectTimeout <= 0 {
		return fmt.Errorf("database.connect_timeout must be positive, got %v", cfg.Database.ConnectTimeout)
	}
	if cfg.Rules.CacheTTL <= 0 || cfg.Rules.FetchTimeout <= 0 || cfg.Rules.BreakerCooldown <= 0 {
		return fmt.Errorf("rules durations must be positive")
	}
	if cfg.Rules.BreakerFailures <= 0 {
		return fmt.Errorf("rules.breaker_failures must be positive, got %d", cfg.Rules.BreakerFailures)
	}
	switch cfg.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", cfg.Logging.Format)
	}
	if cfg.Events.Enabled() && cfg.Events.Topic == "" {
		return fmt.Errorf("events.topic is required when events.brokers is set")
	}
	return nil
}

// validateNoSecretsInConfig rejects a database password in the config file.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if !v.InConfig("database.url") || os.Getenv(EnvPrefix+"_DATABASE_URL") != "" {
		return nil
	}
	u, err := url.Parse(v.GetString("database.url"))
	if err != nil {
		return nil
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		return fmt.Errorf("database credentials not allowed in config files (use %s_DATABASE_URL environment variable)", EnvPrefix)
	}
	return nil
}

// splitList flattens comma-separated entries, as given by environment
// variables, and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
