// Package config handles configuration loading for the dojo stack server.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dojo-stack/server/internal/pyramid"
)

// Config represents the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Source SourceConfig `yaml:"source"`
	Stack  StackConfig  `yaml:"stack"`
	Cache  CacheConfig  `yaml:"cache"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// SourceConfig describes the image pyramid on the data server.
type SourceConfig struct {
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	TileSize int    `yaml:"tile_size"`
	Server   string `yaml:"server"`
	DataPath string `yaml:"datapath"`
	Z        int    `yaml:"z"`
}

// StackConfig contains window settings.
type StackConfig struct {
	Channels  string `yaml:"channels"`
	MaxBuffer int    `yaml:"max_buffer"`
	Center    int    `yaml:"center"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	TileSizeMB       int `yaml:"tile_size_mb"`
	TileTTLMinutes   int `yaml:"tile_ttl_minutes"`
	AddressCacheSize int `yaml:"address_cache_size"`
}

// Load reads configuration from a YAML file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        2001,
			CORSOrigins: []string{"http://localhost:2001", "http://localhost:5173"},
		},
		Source: SourceConfig{
			Width:    8192,
			Height:   8192,
			TileSize: 512,
			Server:   "localhost:2001",
			DataPath: "/Volumes/NeuroData/cylindojo/mojo",
		},
		Stack: StackConfig{
			Channels:  "i",
			MaxBuffer: 3,
		},
		Cache: CacheConfig{
			TileSizeMB:       64,
			TileTTLMinutes:   10,
			AddressCacheSize: 4096,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Source.Width == 0 {
		cfg.Source.Width = defaults.Source.Width
	}
	if cfg.Source.Height == 0 {
		cfg.Source.Height = defaults.Source.Height
	}
	if cfg.Source.TileSize == 0 {
		cfg.Source.TileSize = defaults.Source.TileSize
	}
	if cfg.Source.Server == "" {
		cfg.Source.Server = defaults.Source.Server
	}
	if cfg.Source.DataPath == "" {
		cfg.Source.DataPath = defaults.Source.DataPath
	}
	if cfg.Stack.Channels == "" {
		cfg.Stack.Channels = defaults.Stack.Channels
	}
	if cfg.Stack.MaxBuffer == 0 {
		cfg.Stack.MaxBuffer = defaults.Stack.MaxBuffer
	}
	if cfg.Cache.TileSizeMB == 0 {
		cfg.Cache.TileSizeMB = defaults.Cache.TileSizeMB
	}
	if cfg.Cache.TileTTLMinutes == 0 {
		cfg.Cache.TileTTLMinutes = defaults.Cache.TileTTLMinutes
	}
	if cfg.Cache.AddressCacheSize == 0 {
		cfg.Cache.AddressCacheSize = defaults.Cache.AddressCacheSize
	}
}

// Validate reports configuration that cannot drive a stack.
func (c *Config) Validate() error {
	if _, err := c.Source.Geometry(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if c.Stack.MaxBuffer < 0 {
		return fmt.Errorf("stack: negative max_buffer %d", c.Stack.MaxBuffer)
	}
	if c.Cache.AddressCacheSize < 0 {
		return fmt.Errorf("cache: negative address_cache_size %d", c.Cache.AddressCacheSize)
	}
	return nil
}

// Geometry builds the base pyramid geometry for the source.
func (s SourceConfig) Geometry() (pyramid.Geometry, error) {
	g, err := pyramid.NewGeometry(s.Width, s.Height, s.TileSize, s.Server, s.DataPath)
	if err != nil {
		return pyramid.Geometry{}, err
	}
	return g.With(pyramid.AtPlane(s.Z)), nil
}
