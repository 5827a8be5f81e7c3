package sessionfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

func TestStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "config", "vrchat_session.json")
	s := New(path)

	if _, err := s.Load(ctx); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	in := domain.Session{
		State:    domain.SessionAuthenticated,
		Cookies:  []domain.Cookie{{Name: "auth", Value: "authcookie_1"}, {Name: "twoFactorAuth", Value: "tfa"}},
		Identity: domain.Identity{ID: "usr_1", DisplayName: "Alice"},
		IssuedAt: issued,
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if runtime.GOOS != "windows" {
		fi, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if fi.Mode().Perm() != 0o600 {
			t.Fatalf("session file must be private, got %v", fi.Mode().Perm())
		}
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Cookies) != 2 || got.Identity.DisplayName != "Alice" || !got.IssuedAt.Equal(issued) {
		t.Fatalf("unexpected session: %+v", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear on missing file: %v", err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after Clear, got %v", err)
	}
}

func TestStore_CorruptFileIsNoSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path).Load(context.Background()); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
