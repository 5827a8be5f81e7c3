package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_ReadsEnvironment(t *testing.T) {
	t.Setenv("VWS_BATCH_DELAY", "2s")
	t.Setenv("VWS_STORE_DRIVER", "postgres")
	t.Setenv("VWS_POSTGRES_DSN", "postgres://app:secret@db:5432/worlds")
	t.Setenv("VRCHAT_USERNAME", "alice")
	t.Setenv("VRCHAT_PASSWORD", "hunter2")
	t.Setenv("VRCHAT_2FA_CODE", "123456")
	t.Setenv("VWS_SESSION_BACKEND", "file")

	cfg := Default()
	if cfg.Batch.Delay != 2*time.Second {
		t.Fatalf("delay: want 2s, got %s", cfg.Batch.Delay)
	}
	if cfg.Credentials.Username != "alice" || cfg.Credentials.ChallengeCode != "123456" {
		t.Fatalf("credentials not read from env: %+v", cfg.Credentials)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vws.yaml")
	data := []byte(`
addr: ":9090"
batch:
  delay: 1500ms
staleness:
  floor: 12h
session:
  backend: file
  file: state/session.json
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.Batch.Delay != 1500*time.Millisecond || cfg.Staleness.Floor != 12*time.Hour {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
	if cfg.Staleness.Ceiling != 30*24*time.Hour || cfg.Staleness.Factor != 10 {
		t.Fatalf("untouched fields must keep defaults: %+v", cfg.Staleness)
	}
	if cfg.Session.File != "state/session.json" {
		t.Fatalf("session file: %q", cfg.Session.File)
	}
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != DriverSQLite {
		t.Fatalf("unexpected driver %q", cfg.Store.Driver)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "mysql"
	cfg.Batch.Delay = -time.Second
	cfg.Session.Backend = "redis"

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"mysql", "batch.delay", "redis"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q must mention %q", err, want)
		}
	}

	cfg = Default()
	cfg.Store.Driver = DriverPostgres
	cfg.Store.PostgresDSN = "postgres://x@y/z"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("sqlite session backend without sqlite store must be rejected")
	}
}

func TestValidate_ProviderRetries(t *testing.T) {
	cfg := Default()
	if cfg.Provider.MaxRetries != 1 || cfg.Provider.RetryDelay != 0 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Provider)
	}
	cfg.Provider.MaxRetries = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("max_retries 0 disables re-authentication and must be accepted: %v", err)
	}
	cfg.Provider.MaxRetries = 2
	cfg.Provider.RetryDelay = -time.Second
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"max_retries must be 0 or 1", "retry_delay"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q must mention %q", err, want)
		}
	}
}

func TestRedacted_HidesSecrets(t *testing.T) {
	cfg := Default()
	cfg.Credentials = Credentials{Username: "alice", Password: "hunter2", ChallengeCode: "123456"}
	cfg.Store.PostgresDSN = "postgres://app:secret@db:5432/worlds"

	r := cfg.Redacted()
	if r.Credentials.Password != "***" || r.Credentials.ChallengeCode != "***" {
		t.Fatalf("credentials not redacted: %+v", r.Credentials)
	}
	if r.Store.PostgresDSN != "postgres://app:***@db:5432/worlds" {
		t.Fatalf("dsn not redacted: %q", r.Store.PostgresDSN)
	}
	if cfg.Credentials.Password != "hunter2" {
		t.Fatalf("Redacted must not mutate the original")
	}
}
