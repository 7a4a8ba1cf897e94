package testutil_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adrg/xdg"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/testutil"
)

func TestSetupTestEnv(t *testing.T) {
	root := testutil.SetupTestEnv(t)

	for _, env := range []string{"XDG_CONFIG_HOME", "XDG_DATA_HOME", "XDG_CACHE_HOME", "XDG_STATE_HOME", "XDG_RUNTIME_DIR"} {
		dir := os.Getenv(env)
		if dir == "" {
			t.Errorf("%s not set", env)
			continue
		}
		if !strings.HasPrefix(dir, root) {
			t.Errorf("%s = %q, want under %q", env, dir, root)
		}
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("%s directory missing: %v", env, err)
		}
	}

	if xdg.DataHome != filepath.Join(root, "data") {
		t.Errorf("xdg.DataHome = %q, want reloaded value", xdg.DataHome)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "a/b/c.txt", []byte("hello"))

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("content = %q", got)
	}
}
