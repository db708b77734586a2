package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
	JWTSecret   string   `mapstructure:"JWT_SECRET"`

	// Upstream service base URLs.
	PatientSvcURL     string `mapstructure:"PATIENT_SVC"`
	AppointmentSvcURL string `mapstructure:"APPOINTMENT_SVC"`

	// Shared cache (identity lookups only; activity is never cached).
	CacheHost               string `mapstructure:"CACHE_HOST"`
	CachePort               string `mapstructure:"CACHE_PORT"`
	IdentityCacheTTLSeconds int    `mapstructure:"IDENTITY_CACHE_TTL_SECONDS"`

	// Circuit breaker policy, shared by both upstream gateways. The
	// min-requests floor defaults to zero so a fully failing window trips
	// immediately, however small.
	BreakerTimeoutMS         int `mapstructure:"BREAKER_TIMEOUT_MS"`
	BreakerErrorThresholdPct int `mapstructure:"BREAKER_ERROR_THRESHOLD_PCT"`
	BreakerResetTimeoutMS    int `mapstructure:"BREAKER_RESET_TIMEOUT_MS"`
	BreakerMinRequests       int `mapstructure:"BREAKER_MIN_REQUESTS"`

	// Validation policy: when false, treatment start/end dates must be
	// today or in the future. End >= start is enforced either way.
	AllowPastTreatmentDates bool `mapstructure:"ALLOW_PAST_TREATMENT_DATES"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "3005")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("CACHE_HOST", "localhost")
	v.SetDefault("CACHE_PORT", "6379")
	v.SetDefault("IDENTITY_CACHE_TTL_SECONDS", 3600)
	v.SetDefault("BREAKER_TIMEOUT_MS", 5000)
	v.SetDefault("BREAKER_ERROR_THRESHOLD_PCT", 50)
	v.SetDefault("BREAKER_RESET_TIMEOUT_MS", 30000)
	v.SetDefault("BREAKER_MIN_REQUESTS", 0)
	v.SetDefault("ALLOW_PAST_TREATMENT_DATES", true)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("PATIENT_SVC")
	v.BindEnv("APPOINTMENT_SVC")
	v.BindEnv("CACHE_HOST")
	v.BindEnv("CACHE_PORT")
	v.BindEnv("IDENTITY_CACHE_TTL_SECONDS")
	v.BindEnv("BREAKER_TIMEOUT_MS")
	v.BindEnv("BREAKER_ERROR_THRESHOLD_PCT")
	v.BindEnv("BREAKER_RESET_TIMEOUT_MS")
	v.BindEnv("BREAKER_MIN_REQUESTS")
	v.BindEnv("ALLOW_PAST_TREATMENT_DATES")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// CacheAddr returns the host:port address of the shared cache.
func (c *Config) CacheAddr() string {
	return c.CacheHost + ":" + c.CachePort
}

// IdentityCacheTTL returns the identity cache expiration as a duration.
func (c *Config) IdentityCacheTTL() time.Duration {
	return time.Duration(c.IdentityCacheTTLSeconds) * time.Second
}

// BreakerTimeout is the per-call budget for one upstream request.
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutMS) * time.Millisecond
}

// BreakerResetTimeout is how long a tripped breaker stays open before
// allowing a half-open probe.
func (c *Config) BreakerResetTimeout() time.Duration {
	return time.Duration(c.BreakerResetTimeoutMS) * time.Millisecond
}

// Validate checks that the configuration is safe to run. The upstream base
// URLs must be well-formed because the report pipeline builds request URLs
// from them, and the breaker threshold must be a sane percentage.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"PATIENT_SVC":     c.PatientSvcURL,
		"APPOINTMENT_SVC": c.AppointmentSvcURL,
	} {
		if raw == "" {
			return fmt.Errorf("%s is required", name)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}

	if c.BreakerErrorThresholdPct <= 0 || c.BreakerErrorThresholdPct > 100 {
		return fmt.Errorf("BREAKER_ERROR_THRESHOLD_PCT must be in (0,100], got %d", c.BreakerErrorThresholdPct)
	}
	if c.BreakerTimeoutMS <= 0 {
		return fmt.Errorf("BREAKER_TIMEOUT_MS must be positive, got %d", c.BreakerTimeoutMS)
	}
	if c.BreakerResetTimeoutMS <= 0 {
		return fmt.Errorf("BREAKER_RESET_TIMEOUT_MS must be positive, got %d", c.BreakerResetTimeoutMS)
	}
	if c.BreakerMinRequests < 0 {
		return fmt.Errorf("BREAKER_MIN_REQUESTS must not be negative, got %d", c.BreakerMinRequests)
	}

	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}

	return nil
}
