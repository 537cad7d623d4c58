package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the YAML file read by Load when no path is given.
// GATEWAY_CONFIG overrides it.
var ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML and the environment.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	SupabaseURL            string `yaml:"supabaseURL"`
	SupabaseAnonKey        string `yaml:"supabaseAnonKey"`
	SupabaseServiceRoleKey string `yaml:"supabaseServiceRoleKey"`

	// Local token pre-verification; at most one of the two may be set.
	SupabaseJWTSecret string `yaml:"supabaseJwtSecret"`
	SupabaseJWKSURL   string `yaml:"supabaseJwksURL"`
	JWTIssuer         string `yaml:"jwtIssuer"`
	JWTAudience       string `yaml:"jwtAudience"`
	JWTLeeway         string `yaml:"jwtLeeway"`

	// DatabaseURL switches book storage from the REST data API to a direct
	// Postgres connection.
	DatabaseURL string `yaml:"databaseURL"`
	AutoMigrate bool   `yaml:"autoMigrate"`

	RedisAddr                  string   `yaml:"redisAddr"`
	RedisPassword              string   `yaml:"redisPassword"`
	TrustedProxyCIDRs          []string `yaml:"trustedProxyCidrs"`
	AllowedOrigins             []string `yaml:"allowedOrigins"`
	RegisterRateLimitPerMinute int      `yaml:"registerRateLimitPerMinute"`
	LoginRateLimitPerMinute    int      `yaml:"loginRateLimitPerMinute"`
}

// Load reads .env, then the YAML file at path (defaults to ConfigPath), then
// applies environment overrides. A missing YAML file is not an error; the
// environment alone may configure the gateway.
func Load(path string) (FileConfig, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	if v := os.Getenv("GATEWAY_CONFIG"); v != "" {
		path = v
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	if cfg.Port == "" {
		cfg.Port = "3000"
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.SupabaseURL, "SUPABASE_URL")
	setString(&cfg.SupabaseAnonKey, "SUPABASE_ANON")
	setString(&cfg.SupabaseServiceRoleKey, "SUPABASE_SERVICE_ROLE")
	setString(&cfg.SupabaseJWTSecret, "SUPABASE_JWT_SECRET")
	setString(&cfg.SupabaseJWKSURL, "SUPABASE_JWKS_URL")
	setString(&cfg.JWTIssuer, "JWT_ISSUER")
	setString(&cfg.JWTAudience, "JWT_AUDIENCE")
	setString(&cfg.JWTLeeway, "JWT_LEEWAY")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	if v := os.Getenv("DATABASE_AUTO_MIGRATE"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.AutoMigrate = b
		}
	}
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	if v := os.Getenv("GATEWAY_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("GATEWAY_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	setInt(&cfg.RegisterRateLimitPerMinute, "GATEWAY_REGISTER_RATE_LIMIT_PER_MINUTE")
	setInt(&cfg.LoginRateLimitPerMinute, "GATEWAY_LOGIN_RATE_LIMIT_PER_MINUTE")
}

func validateConfig(cfg FileConfig) error {
	if n, err := strconv.Atoi(cfg.Port); err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("config: invalid port %q", cfg.Port)
	}
	if strings.TrimSpace(cfg.SupabaseURL) == "" {
		return errors.New("config: supabaseURL is required (set in config.yaml or SUPABASE_URL)")
	}
	if strings.TrimSpace(cfg.SupabaseAnonKey) == "" {
		return errors.New("config: supabaseAnonKey is required (set in config.yaml or SUPABASE_ANON)")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" && strings.TrimSpace(cfg.SupabaseServiceRoleKey) == "" {
		return errors.New("config: supabaseServiceRoleKey is required unless databaseURL is set (SUPABASE_SERVICE_ROLE)")
	}
	if cfg.SupabaseJWTSecret != "" && cfg.SupabaseJWKSURL != "" {
		return errors.New("config: set only one of supabaseJwtSecret and supabaseJwksURL")
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.RegisterRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}

// TokenVerificationEnabled reports whether tokens are checked locally
// before the identity provider is asked.
func (c FileConfig) TokenVerificationEnabled() bool {
	return c.SupabaseJWTSecret != "" || c.SupabaseJWKSURL != ""
}
