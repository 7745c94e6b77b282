package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.GPSBaud != 9600 {
		t.Fatalf("expected default baud rate, got %d", cfg.GPSBaud)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("AUTHORITY_URL", "http://authority:8080")
	t.Setenv("GPS_BAUD", "4800")
	t.Setenv("MIGRATIONS", "false")
	t.Setenv("ADMIN_TOKEN", "admin")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
	if cfg.JWTSecret != "secret" {
		t.Fatalf("expected override secret")
	}
	if cfg.AuthorityURL != "http://authority:8080" {
		t.Fatalf("expected override authority url")
	}
	if cfg.GPSBaud != 4800 {
		t.Fatalf("expected override baud")
	}
	if cfg.AdminToken != "admin" {
		t.Fatalf("expected override admin token")
	}
	if cfg.Migrations {
		t.Fatalf("expected migrations disabled")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Load()
	cfg.LogLevel = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid log level")
	}

	cfg = Load()
	cfg.AuthorityURL = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid authority url")
	}

	cfg = Load()
	cfg.JWTSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing secret")
	}
}
