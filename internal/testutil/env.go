// Package testutil provides utilities for testing cubekeeper in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
)

// SetupTestEnv points every XDG base directory at a fresh temp root so tests
// never touch a real installation, and returns that root.
//
// The cleanup function is automatically handled by t.TempDir(),
// so callers don't need to manually clean up.
func SetupTestEnv(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	// Registered before t.Setenv so it runs after the environment is restored.
	t.Cleanup(xdg.Reload)

	vars := map[string]string{
		"XDG_CONFIG_HOME": "config",
		"XDG_DATA_HOME":   "data",
		"XDG_CACHE_HOME":  "cache",
		"XDG_STATE_HOME":  "state",
		"XDG_RUNTIME_DIR": "run",
	}

	for env, sub := range vars {
		dir := filepath.Join(tmpDir, sub)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
		t.Setenv(env, dir)
	}

	xdg.Reload()

	return tmpDir
}

// WriteFile writes content to dir/name, creating parent directories.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
