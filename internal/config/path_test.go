package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultDataDirPrefersXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != "/custom/data/ldes" {
		t.Fatalf("got %s", got)
	}
}

func TestDefaultDataDirHomeDotdir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", home)
	if got, want := DefaultDataDir(), filepath.Join(home, ".ldes"); got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestDefaultDataDirPlatformDir(t *testing.T) {
	home := t.TempDir()
	appSupport := filepath.Join(home, "Library", "Application Support")
	if err := os.MkdirAll(appSupport, 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", home)
	if got, want := DefaultDataDir(), filepath.Join(appSupport, "LDES"); got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestDefaultDataDirWithoutHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "")
	if got := DefaultDataDir(); got != "./data" {
		t.Fatalf("got %s", got)
	}
}

func TestIsDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if !isDir(dir) || isDir(file) || isDir(filepath.Join(dir, "missing")) {
		t.Fatalf("isDir mismatch")
	}
}
