package wiring

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/adapters/sessionfile"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/app"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/config"
	"github.com/rs/zerolog"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.SQLitePath = filepath.Join(dir, "worlds.db")
	cfg.Session.Backend = config.SessionBackendSQLite
	cfg.Thumbnails = filepath.Join(dir, "thumbnails")
	cfg.ErrorLog = filepath.Join(dir, "error_world.txt")
	cfg.LogFormat = "json"
	return cfg
}

func TestNew_SQLiteStack(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(context.Background(), cfg, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if _, ok := c.Worlds.(*sqlite.WorldsRepository); !ok {
		t.Fatalf("unexpected world store %T", c.Worlds)
	}
	if _, ok := c.Sessions.(*sqlite.SessionRepository); !ok {
		t.Fatalf("unexpected session store %T", c.Sessions)
	}
	if c.Assets == nil || c.ErrorLog == nil || c.RunService == nil || c.Planner == nil {
		t.Fatalf("container not fully wired: %+v", c)
	}
	if _, err := c.Worlds.List(context.Background(), 0); err != nil {
		t.Fatalf("List: %v", err)
	}
}

func TestNew_FileSessionBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.Backend = config.SessionBackendFile
	cfg.Session.File = filepath.Join(t.TempDir(), "vrchat_session.json")

	c, err := New(context.Background(), cfg, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if s, ok := c.Sessions.(*sessionfile.Store); !ok || s.Path() != cfg.Session.File {
		t.Fatalf("unexpected session store %T", c.Sessions)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "mysql"
	if _, err := New(context.Background(), cfg, zerolog.Nop(), nil); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestResolver_PrefersStaticCode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Credentials.ChallengeCode = "654321"
	code, err := Resolver(cfg, false).ChallengeCode(context.Background(), []string{app.ChallengeEmailOTP})
	if err != nil || code != "654321" {
		t.Fatalf("want static code, got %q %v", code, err)
	}

	cfg.Credentials.ChallengeCode = ""
	if _, err := Resolver(cfg, false).ChallengeCode(context.Background(), nil); err == nil {
		t.Fatalf("expected unavailable challenge without code nor terminal")
	}
}

func TestNewLogger_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig(t)
	cfg.LogLevel = "warn"
	logger := NewLogger(cfg, "vws", &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"app":"vws"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}
