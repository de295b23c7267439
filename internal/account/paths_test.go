package account

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".perks", "accounts", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestSocketPath(t *testing.T) {
	got := SocketPath("test")
	if !strings.HasSuffix(got, filepath.Join("accounts", "test", "perksd.sock")) {
		t.Errorf("SocketPath(test) = %q, want suffix accounts/test/perksd.sock", got)
	}
}

func TestCacheDBPath(t *testing.T) {
	got := CacheDBPath("test")
	if !strings.HasSuffix(got, filepath.Join("accounts", "test", "cache.db")) {
		t.Errorf("CacheDBPath(test) = %q, want suffix accounts/test/cache.db", got)
	}
}

func TestPrefsAndMediaDirs(t *testing.T) {
	if !strings.HasSuffix(PrefsDir("a"), filepath.Join("accounts", "a", "prefs")) {
		t.Errorf("PrefsDir(a) = %q", PrefsDir("a"))
	}
	if !strings.HasSuffix(MediaDir("a"), filepath.Join("accounts", "a", "media")) {
		t.Errorf("MediaDir(a) = %q", MediaDir("a"))
	}
}

func TestLockPath(t *testing.T) {
	got := LockPath("test")
	if !strings.HasSuffix(got, filepath.Join("accounts", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q, want suffix accounts/test/LOCK", got)
	}
}
