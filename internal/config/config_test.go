package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no config file to be a valid empty configuration, got %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.RateLimit.MaxPerMinute != 60 || cfg.RateLimit.BurstSize != 10 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Quota.Window != time.Hour {
		t.Fatalf("expected default quota window of 1h, got %v", cfg.Quota.Window)
	}
	if cfg.Oversight.Confidence.High != 0.9 || cfg.Oversight.Confidence.Low != 0.5 {
		t.Fatalf("unexpected confidence defaults: %+v", cfg.Oversight.Confidence)
	}
	if cfg.Validation.MinJustificationLength != 10 {
		t.Fatalf("expected default min justification length 10, got %d", cfg.Validation.MinJustificationLength)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: "9090"
rate_limit:
  max_per_minute: 120
  burst_size: 20
oversight:
  high_risk_tools:
    - shell
  confidence:
    high: 0.95
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected overridden port, got %q", cfg.Server.Port)
	}
	if cfg.RateLimit.MaxPerMinute != 120 || cfg.RateLimit.BurstSize != 20 {
		t.Fatalf("unexpected overridden rate limit: %+v", cfg.RateLimit)
	}
	if len(cfg.Oversight.HighRiskTools) != 1 || cfg.Oversight.HighRiskTools[0] != "shell" {
		t.Fatalf("unexpected high_risk_tools: %v", cfg.Oversight.HighRiskTools)
	}
	if cfg.Oversight.Confidence.High != 0.95 {
		t.Fatalf("expected overridden confidence.high, got %v", cfg.Oversight.Confidence.High)
	}
	// Fields left unset in the file still carry their defaults.
	if cfg.Oversight.Confidence.Medium != 0.7 {
		t.Fatalf("expected default confidence.medium to survive partial override, got %v", cfg.Oversight.Confidence.Medium)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected an error for an explicit missing config file")
	}
}

func TestBindEnvVarsOverridesAuthAndDatabase(t *testing.T) {
	t.Setenv("ENACT_BEARER_TOKEN", "super-secret-token-value-1234567890")
	t.Setenv("POSTGRES_USER", "enact_svc")
	t.Setenv("POSTGRES_PASSWORD", "hunter2")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.BearerToken != "super-secret-token-value-1234567890" {
		t.Fatalf("expected bearer token from env, got %q", cfg.Auth.BearerToken)
	}
	if cfg.Database.User != "enact_svc" || cfg.Database.Password != "hunter2" {
		t.Fatalf("expected database credentials from env, got %+v", cfg.Database)
	}
}

func TestDatabaseConfigDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "enact", SSLMode: "disable"}
	dsn := d.DSN()
	want := "host=db port=5432 user=u password=p dbname=enact sslmode=disable"
	if dsn != want {
		t.Fatalf("unexpected DSN: %q", dsn)
	}
}
