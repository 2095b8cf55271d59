package config

import (
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "tiler.yaml")
	write(t, cfg, `
dsn: /var/lib/tiler/tiles.db
asset_dir: /var/lib/tiler/assets
grids: [osgrid, secondlife]
levels: 3
corners_touch: true
`)
	c, err := Load(cfg, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.DSN != "/var/lib/tiler/tiles.db" || c.Levels != 3 || !c.CornersTouch {
		t.Fatalf("config = %+v", c)
	}
	if len(c.Grids) != 2 || c.Grids[1] != "secondlife" {
		t.Fatalf("grids = %v", c.Grids)
	}
}

func TestLoadDSNFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "tiler.yaml")
	env := filepath.Join(dir, ".env")
	write(t, cfg, "dsn_env: TILER_TEST_DSN\n")
	write(t, env, "TILER_TEST_DSN=postgres://tiler:secret@db/tiles\n")
	t.Cleanup(func() { os.Unsetenv("TILER_TEST_DSN") })

	c, err := Load(cfg, env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.DSN != "postgres://tiler:secret@db/tiles" {
		t.Fatalf("dsn = %q", c.DSN)
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "tiler.yaml")
	write(t, cfg, "asset_dir: /tmp\n")
	if _, err := Load(cfg, ""); err == nil {
		t.Fatalf("config without dsn accepted")
	}
}
