package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dojo-stack/server/internal/pyramid"
)

func TestLoad_FullFile(t *testing.T) {
	content := `
server:
  port: 9000
source:
  width: 16384
  height: 8192
  tile_size: 256
  server: "tiles.example.org:2001"
  datapath: "/data/ac3"
  z: 12
stack:
  channels: "isy"
  max_buffer: 2
  center: 40
cache:
  address_cache_size: 64
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Stack.Channels != "isy" || cfg.Stack.MaxBuffer != 2 || cfg.Stack.Center != 40 {
		t.Errorf("unexpected stack config: %+v", cfg.Stack)
	}
	if cfg.Cache.AddressCacheSize != 64 {
		t.Errorf("expected address cache size 64, got %d", cfg.Cache.AddressCacheSize)
	}

	g, err := cfg.Source.Geometry()
	if err != nil {
		t.Fatalf("Geometry error: %v", err)
	}
	if g.MaxLevel() != 6 {
		t.Errorf("expected max level 6, got %d", g.MaxLevel())
	}
	if g.Z != 12 {
		t.Errorf("expected plane offset 12, got %d", g.Z)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
server:
  port: 0
stack:
  channels: "s"
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 2001 {
		t.Errorf("expected default port 2001, got %d", cfg.Server.Port)
	}
	if cfg.Source.TileSize != 512 || cfg.Source.Width != 8192 {
		t.Errorf("expected default source, got %+v", cfg.Source)
	}
	if cfg.Stack.MaxBuffer != 3 {
		t.Errorf("expected default max buffer 3, got %d", cfg.Stack.MaxBuffer)
	}
	if cfg.Stack.Channels != "s" {
		t.Errorf("expected channels to survive defaults, got %q", cfg.Stack.Channels)
	}
	if cfg.Cache.TileSizeMB != 64 {
		t.Errorf("expected default cache size 64, got %d", cfg.Cache.TileSizeMB)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Stack.Channels != "i" {
		t.Errorf("expected default channels, got %q", cfg.Stack.Channels)
	}
}

func TestLoad_RejectsBadGeometry(t *testing.T) {
	content := `
source:
  width: 256
  tile_size: 512
`
	path := writeConfig(t, content)
	if _, err := Load(path); !errors.Is(err, pyramid.ErrInvalidGeometry) {
		t.Fatalf("expected ErrInvalidGeometry, got %v", err)
	}
}

func TestLoad_RejectsNegativeBuffer(t *testing.T) {
	path := writeConfig(t, "stack:\n  max_buffer: -2\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative max_buffer")
	}
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [port\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
