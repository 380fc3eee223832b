package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("LIVESYNC_TEST_STR", "value")
	t.Setenv("LIVESYNC_TEST_INT", "42")
	t.Setenv("LIVESYNC_TEST_BAD_INT", "forty-two")
	t.Setenv("LIVESYNC_TEST_DUR", "250ms")
	t.Setenv("LIVESYNC_TEST_SECS", "5")
	t.Setenv("LIVESYNC_TEST_BOOL", "true")
	t.Setenv("LIVESYNC_TEST_BLANK", "   ")

	if got := GetEnv("LIVESYNC_TEST_STR", "x"); got != "value" {
		t.Errorf("GetEnv = %q, want value", got)
	}
	if got := GetEnv("LIVESYNC_TEST_BLANK", "x"); got != "x" {
		t.Errorf("GetEnv on blank = %q, want fallback", got)
	}
	if got := GetEnvInt("LIVESYNC_TEST_INT", 1); got != 42 {
		t.Errorf("GetEnvInt = %d, want 42", got)
	}
	if got := GetEnvInt("LIVESYNC_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("GetEnvInt on garbage = %d, want 7", got)
	}
	if got := GetEnvDuration("LIVESYNC_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Errorf("GetEnvDuration = %v, want 250ms", got)
	}
	if got := GetEnvDuration("LIVESYNC_TEST_SECS", time.Second); got != 5*time.Second {
		t.Errorf("GetEnvDuration seconds = %v, want 5s", got)
	}
	if got := GetEnvBool("LIVESYNC_TEST_BOOL", false); !got {
		t.Errorf("GetEnvBool = false, want true")
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("LIVESYNC_FROM_FILE=loaded\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("LIVESYNC_FROM_FILE") })

	if err := Load(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := GetEnv("LIVESYNC_FROM_FILE", ""); got != "loaded" {
		t.Errorf("expected value from env file, got %q", got)
	}
}
