package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinInternalSecretLength is enforced on INTERNAL_RISK_SECRET in production.
const MinInternalSecretLength = 32

type Config struct {
	Port                  string        `mapstructure:"PORT"`
	Env                   string        `mapstructure:"ENV"`
	DatabaseURL           string        `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL              string        `mapstructure:"REDIS_URL"`
	SummaryCacheTTL       time.Duration `mapstructure:"SUMMARY_CACHE_TTL"`
	AuthJWTSecret         string        `mapstructure:"AUTH_JWT_SECRET"`
	AuthIssuer            string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL           string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience          string        `mapstructure:"AUTH_AUDIENCE"`
	InternalRiskSecret    string        `mapstructure:"INTERNAL_RISK_SECRET"`
	CORSOrigins           []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS          float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit             string        `mapstructure:"BODY_LIMIT"`
	RiskDefaultWindowDays int           `mapstructure:"RISK_DEFAULT_WINDOW_DAYS"`
	RiskMaxWindowDays     int           `mapstructure:"RISK_MAX_WINDOW_DAYS"`
	RiskRollupDays        int           `mapstructure:"RISK_ROLLUP_DAYS"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "SUMMARY_CACHE_TTL",
	"AUTH_JWT_SECRET", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
	"INTERNAL_RISK_SECRET", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"RISK_DEFAULT_WINDOW_DAYS", "RISK_MAX_WINDOW_DAYS", "RISK_ROLLUP_DAYS",
}

// Load reads .env (if present) and the environment once. The result is passed
// down explicitly; nothing else in the module reads the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SUMMARY_CACHE_TTL", "30s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("BODY_LIMIT", "64K")
	v.SetDefault("RISK_DEFAULT_WINDOW_DAYS", 30)
	v.SetDefault("RISK_MAX_WINDOW_DAYS", 90)
	v.SetDefault("RISK_ROLLUP_DAYS", 7)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	if cfg.CORSOrigins == nil {
		cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// CacheEnabled reports whether the Redis summary cache should be wired.
func (c *Config) CacheEnabled() bool {
	return c.RedisURL != "" && c.SummaryCacheTTL > 0
}

// Validate checks that the configuration is safe to run. Outside development a
// session key source is required; production also requires a strong shared
// secret for the internal detection endpoint.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthJWTSecret == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_JWT_SECRET or AUTH_JWKS_URL must be set when ENV=%q", c.Env)
	}
	if c.IsProduction() && len(c.InternalRiskSecret) < MinInternalSecretLength {
		return fmt.Errorf("INTERNAL_RISK_SECRET must be at least %d characters in production", MinInternalSecretLength)
	}

	if c.RiskDefaultWindowDays <= 0 || c.RiskMaxWindowDays <= 0 || c.RiskRollupDays <= 0 {
		return fmt.Errorf("risk window settings must be positive (default=%d max=%d rollup=%d)",
			c.RiskDefaultWindowDays, c.RiskMaxWindowDays, c.RiskRollupDays)
	}
	if c.RiskDefaultWindowDays > c.RiskMaxWindowDays {
		return fmt.Errorf("RISK_DEFAULT_WINDOW_DAYS (%d) exceeds RISK_MAX_WINDOW_DAYS (%d)",
			c.RiskDefaultWindowDays, c.RiskMaxWindowDays)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
