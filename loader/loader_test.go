package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/illarion/envseal/internal/core"
	"github.com/illarion/envseal/internal/crypto"
	"github.com/illarion/envseal/internal/dotenv"
	"github.com/illarion/envseal/internal/storage"
)

// noEnv keeps the host environment out of config and password lookup
func noEnv(string) string { return "" }

func initProject(t *testing.T, backend string, writeKey bool) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("A=1\nB=2\n"), 0600); err != nil {
		t.Fatal(err)
	}
	v, err := core.New(dir, core.Options{Backend: backend, Iterations: crypto.MinIterations})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()
	if _, err := v.Init([]byte("test123"), core.InitOptions{WriteKey: writeKey}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return dir
}

func TestLoadWithPassword(t *testing.T) {
	dir := initProject(t, storage.KindFile, false)

	m, err := Load(context.Background(), Options{Root: dir, Password: []byte("test123"), Getenv: noEnv})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if strings.Join(m.Environ(), " ") != "A=1 B=2" {
		t.Errorf("Unexpected mapping %v", m.Environ())
	}

	if _, err := Load(context.Background(), Options{Root: dir, Password: []byte("nope"), Getenv: noEnv}); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Expected ErrAuthFailed, got %v", err)
	}
	if _, err := Load(context.Background(), Options{Root: dir, Getenv: noEnv}); !errors.Is(err, ErrPasswordRequired) {
		t.Errorf("Expected ErrPasswordRequired, got %v", err)
	}
}

func TestLoadPasswordFromEnv(t *testing.T) {
	dir := initProject(t, storage.KindFile, false)
	getenv := func(name string) string {
		if name == core.PasswordEnv {
			return "test123"
		}
		return ""
	}

	m, err := Load(context.Background(), Options{Root: dir, Getenv: getenv})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if v, _ := m.Get("B"); v != "2" {
		t.Errorf("B = %q, want 2", v)
	}
}

func TestLoadFollowsProjectConfig(t *testing.T) {
	dir := initProject(t, storage.KindBolt, false)
	if err := os.WriteFile(filepath.Join(dir, ".envseal.yaml"), []byte("backend: bolt\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(context.Background(), Options{Root: dir, Password: []byte("test123"), Getenv: noEnv})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Len() != 2 {
		t.Errorf("Expected 2 keys, got %d", m.Len())
	}
}

func TestLoadNotInitialized(t *testing.T) {
	_, err := Load(context.Background(), Options{Root: t.TempDir(), Password: []byte("x"), Getenv: noEnv})
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
}

func TestLoadPrefersKeyFile(t *testing.T) {
	dir := initProject(t, storage.KindFile, true)

	// The wrong password is ignored when a key file is present
	m, err := Load(context.Background(), Options{Root: dir, Password: []byte("wrong"), Getenv: noEnv})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Len() != 2 {
		t.Errorf("Expected 2 keys, got %d", m.Len())
	}
}

func TestLoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Load(ctx, Options{Root: t.TempDir()}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestApply(t *testing.T) {
	m, _ := dotenv.FromPairs(dotenv.Pair{Key: "A", Value: "new"}, dotenv.Pair{Key: "B", Value: "2"})

	tests := []struct {
		name     string
		override bool
		wantA    string
		wantN    int
	}{
		{"keep existing", false, "old", 1},
		{"override", true, "new", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := map[string]string{"A": "old"}
			lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }
			setenv := func(k, v string) error { env[k] = v; return nil }

			n, err := Apply(m, lookup, setenv, tt.override)
			if err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
			if n != tt.wantN {
				t.Errorf("Applied %d keys, want %d", n, tt.wantN)
			}
			if env["A"] != tt.wantA || env["B"] != "2" {
				t.Errorf("Unexpected environment %v", env)
			}
		})
	}
}

func TestApplySetenvError(t *testing.T) {
	m, _ := dotenv.FromPairs(dotenv.Pair{Key: "A", Value: "1"})
	fail := errors.New("read-only")

	_, err := Apply(m, func(string) (string, bool) { return "", false }, func(string, string) error { return fail }, true)
	if !errors.Is(err, fail) {
		t.Errorf("Expected setenv error, got %v", err)
	}
}

func TestMerge(t *testing.T) {
	base := []string{"PATH=/bin", "A=old", "HOME=/root"}
	m, _ := dotenv.FromPairs(dotenv.Pair{Key: "A", Value: "new"}, dotenv.Pair{Key: "B", Value: "x=y"})

	got := strings.Join(Merge(base, m, false), " ")
	if got != "PATH=/bin A=old HOME=/root B=x=y" {
		t.Errorf("Merge without override = %s", got)
	}

	got = strings.Join(Merge(base, m, true), " ")
	if got != "PATH=/bin A=new HOME=/root B=x=y" {
		t.Errorf("Merge with override = %s", got)
	}
}
