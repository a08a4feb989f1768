// Package testutil provides utilities for testing foundryup in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Env holds the isolated directories created by SetupTestEnv.
type Env struct {
	Root      string
	Home      string
	ConfigDir string
	CacheDir  string
	WorkDir   string
}

// SetupTestEnv points HOME, the XDG directories and every FOUNDRYUP_*
// setting at fresh temp directories so a test never reads the developer's
// real config or writes into their real cache.
//
// Cleanup is handled by t.TempDir().
func SetupTestEnv(t *testing.T) *Env {
	t.Helper()

	root := t.TempDir()
	env := &Env{
		Root:      root,
		Home:      filepath.Join(root, "home"),
		ConfigDir: filepath.Join(root, "config"),
		CacheDir:  filepath.Join(root, "cache"),
		WorkDir:   filepath.Join(root, "work"),
	}

	for _, dir := range []string{env.Home, env.ConfigDir, env.CacheDir, env.WorkDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	t.Setenv("HOME", env.Home)
	t.Setenv("XDG_CONFIG_HOME", env.ConfigDir)
	t.Setenv("XDG_CACHE_HOME", env.CacheDir)

	for _, key := range []string{
		"FOUNDRYUP_CACHE_DIR",
		"FOUNDRYUP_GLOBAL_CACHE",
		"FOUNDRYUP_BIN_DIR",
		"FOUNDRYUP_PROJECT",
		"FOUNDRYUP_HOST",
		"FOUNDRYUP_KEYRING",
		"FOUNDRYUP_LOG_FILE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	return env
}
