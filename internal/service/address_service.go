package service

import (
	"fmt"

	"github.com/dojo-stack/server/internal/cache"
	"github.com/dojo-stack/server/internal/preset"
	"github.com/dojo-stack/server/internal/pyramid"
	"github.com/dojo-stack/server/internal/render"
)

// AddressServiceConfig contains address service configuration.
type AddressServiceConfig struct {
	Layers   []preset.Layer
	Cache    *cache.Manager
	Renderer *render.TileRenderer
}

// AddressService resolves tile addresses and serves placeholder tiles.
type AddressService struct {
	layers   []preset.Layer
	cache    *cache.Manager
	renderer *render.TileRenderer
}

// NewAddressService creates a new address service.
func NewAddressService(cfg AddressServiceConfig) *AddressService {
	return &AddressService{
		layers:   cfg.Layers,
		cache:    cfg.Cache,
		renderer: cfg.Renderer,
	}
}

// Layers returns the layers addresses are resolved for.
func (s *AddressService) Layers() []preset.Layer {
	return s.layers
}

// Address returns the fetch address for tile (x, y) of layer at level on plane z.
func (s *AddressService) Address(layer, level, x, y, z int) (string, error) {
	if layer < 0 || layer >= len(s.layers) {
		return "", fmt.Errorf("layer %d out of range [0, %d)", layer, len(s.layers))
	}
	l := s.layers[layer]
	level = l.Geometry.ClampLevel(level)

	key := cache.AddressKey(l.Kind.String(), level, x, y, z)
	if addr, ok := s.cache.GetAddress(key); ok {
		return addr, nil
	}

	addr := pyramid.Address(l.Geometry, level, x, y, z).String()
	s.cache.SetAddress(key, addr)
	return addr, nil
}

// GetPlaceholderTile returns the placeholder PNG for a level and plane.
func (s *AddressService) GetPlaceholderTile(level, z int) ([]byte, error) {
	key := cache.PlaceholderKey(level, z, s.renderer.TileSize())
	if data, ok := s.cache.GetTile(key); ok {
		return data, nil
	}

	data, err := s.renderer.RenderPlaceholder(level, z)
	if err != nil {
		return nil, fmt.Errorf("failed to render placeholder: %w", err)
	}

	// A full cache only costs a re-render.
	_ = s.cache.SetTile(key, data)
	return data, nil
}

// GetEmptyTile returns a transparent tile.
func (s *AddressService) GetEmptyTile() ([]byte, error) {
	return s.renderer.CreateEmptyTile()
}
