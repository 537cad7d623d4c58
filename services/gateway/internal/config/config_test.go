package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GATEWAY_CONFIG", "PORT", "LOG_LEVEL", "SUPABASE_URL", "SUPABASE_ANON", "SUPABASE_SERVICE_ROLE",
		"SUPABASE_JWT_SECRET", "SUPABASE_JWKS_URL", "JWT_ISSUER", "JWT_AUDIENCE", "JWT_LEEWAY",
		"DATABASE_URL", "DATABASE_AUTO_MIGRATE", "REDIS_ADDR", "REDIS_PASSWORD",
		"GATEWAY_TRUSTED_PROXY_CIDRS", "GATEWAY_ALLOWED_ORIGINS",
		"GATEWAY_REGISTER_RATE_LIMIT_PER_MINUTE", "GATEWAY_LOGIN_RATE_LIMIT_PER_MINUTE",
	} {
		t.Setenv(key, "")
	}
	// keep godotenv from picking up a developer's .env
	t.Chdir(t.TempDir())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
port: "8080"
supabaseURL: https://file.supabase.co
supabaseAnonKey: anon-from-file
supabaseServiceRoleKey: service-from-file
loginRateLimitPerMinute: 3
allowedOrigins: ["https://app.example.com"]
`)
	t.Setenv("SUPABASE_ANON", "anon-from-env")
	t.Setenv("GATEWAY_TRUSTED_PROXY_CIDRS", "10.0.0.0/8, ,192.168.1.1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.SupabaseURL != "https://file.supabase.co" {
		t.Fatalf("unexpected file values: %+v", cfg)
	}
	if cfg.SupabaseAnonKey != "anon-from-env" {
		t.Fatalf("env override not applied: %q", cfg.SupabaseAnonKey)
	}
	if len(cfg.TrustedProxyCIDRs) != 2 || cfg.TrustedProxyCIDRs[1] != "192.168.1.1" {
		t.Fatalf("unexpected proxies: %v", cfg.TrustedProxyCIDRs)
	}
	if cfg.LoginRateLimitPerMinute != 3 || len(cfg.AllowedOrigins) != 1 {
		t.Fatalf("unexpected limits/origins: %+v", cfg)
	}
}

func TestLoadEnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUPABASE_URL", "https://env.supabase.co")
	t.Setenv("SUPABASE_ANON", "anon")
	t.Setenv("SUPABASE_SERVICE_ROLE", "service")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "3000" {
		t.Fatalf("expected default port 3000, got %q", cfg.Port)
	}
	if cfg.TokenVerificationEnabled() {
		t.Fatalf("verification should be off without secret or jwks url")
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	clearEnv(t)
	dotenv := "SUPABASE_URL=https://dotenv.supabase.co\nSUPABASE_ANON=anon\nDATABASE_URL=postgres://localhost/books\n"
	if err := os.WriteFile(".env", []byte(dotenv), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() {
		for _, key := range []string{"SUPABASE_URL", "SUPABASE_ANON", "DATABASE_URL"} {
			os.Unsetenv(key)
		}
	})
	// godotenv never overrides variables that are already set, even to "".
	for _, key := range []string{"SUPABASE_URL", "SUPABASE_ANON", "DATABASE_URL"} {
		os.Unsetenv(key)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SupabaseURL != "https://dotenv.supabase.co" || cfg.DatabaseURL == "" {
		t.Fatalf(".env not applied: %+v", cfg)
	}
}

func TestValidateConfig(t *testing.T) {
	base := FileConfig{Port: "3000", SupabaseURL: "https://x.supabase.co", SupabaseAnonKey: "anon", SupabaseServiceRoleKey: "svc"}
	if err := validateConfig(base); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	cases := map[string]func(*FileConfig){
		"bad port":         func(c *FileConfig) { c.Port = "http" },
		"missing url":      func(c *FileConfig) { c.SupabaseURL = "" },
		"missing anon key": func(c *FileConfig) { c.SupabaseAnonKey = "" },
		"missing service":  func(c *FileConfig) { c.SupabaseServiceRoleKey = "" },
		"both verifiers":   func(c *FileConfig) { c.SupabaseJWTSecret, c.SupabaseJWKSURL = "s", "https://x/jwks" },
		"bad leeway":       func(c *FileConfig) { c.JWTLeeway = "soon" },
		"negative limit":   func(c *FileConfig) { c.LoginRateLimitPerMinute = -1 },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := validateConfig(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	direct := base
	direct.SupabaseServiceRoleKey = ""
	direct.DatabaseURL = "postgres://localhost/books"
	if err := validateConfig(direct); err != nil {
		t.Fatalf("database url should replace the service key: %v", err)
	}
}

func TestParseJWTLeeway(t *testing.T) {
	if d, err := ParseJWTLeeway(""); err != nil || d != 0 {
		t.Fatalf("empty leeway: d=%v err=%v", d, err)
	}
	if d, err := ParseJWTLeeway("30s"); err != nil || d != 30*time.Second {
		t.Fatalf("30s leeway: d=%v err=%v", d, err)
	}
}
