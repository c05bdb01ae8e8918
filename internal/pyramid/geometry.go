// Package pyramid describes power-of-two image pyramids and encodes tile fetch addresses.
package pyramid

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrInvalidGeometry is returned when a pyramid cannot be addressed.
var ErrInvalidGeometry = errors.New("invalid pyramid geometry")

// Mode selects how addresses are produced for a geometry.
type Mode uint8

const (
	// ModeRemote addresses tiles on the remote data server.
	ModeRemote Mode = iota
	// ModePlaceholder bypasses the data server and always yields the static placeholder.
	ModePlaceholder
)

// Modifiers are the channel-specific query flags appended to a data address.
type Modifiers struct {
	Segmentation bool
	// Target marks a render target; segmentation targets ask for zipped output
	// instead of coloured labels.
	Target  bool
	Synapse bool
}

// Geometry is the immutable per-source pyramid configuration.
// Values are copied, never shared; use With to derive variants.
type Geometry struct {
	Width    int
	Height   int
	TileSize int
	Server   string
	DataPath string
	// Z is added to every requested plane.
	Z         int
	Mode      Mode
	Modifiers Modifiers

	maxLevel int
}

// NewGeometry validates the base pyramid and derives its top level.
func NewGeometry(width, height, tileSize int, server, dataPath string) (Geometry, error) {
	g := Geometry{
		Width:    width,
		Height:   height,
		TileSize: tileSize,
		Server:   server,
		DataPath: dataPath,
	}
	if err := g.validate(); err != nil {
		return Geometry{}, err
	}
	g.maxLevel = MaxLevel(width, tileSize)
	return g, nil
}

func (g Geometry) validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: non-positive size %dx%d", ErrInvalidGeometry, g.Width, g.Height)
	}
	if g.TileSize <= 0 {
		return fmt.Errorf("%w: non-positive tile size %d", ErrInvalidGeometry, g.TileSize)
	}
	if g.Width < g.TileSize {
		return fmt.Errorf("%w: width %d smaller than tile size %d", ErrInvalidGeometry, g.Width, g.TileSize)
	}
	if g.Server == "" {
		return fmt.Errorf("%w: empty server", ErrInvalidGeometry)
	}
	if lvl := MaxLevel(g.Width, g.TileSize); lvl <= 0 {
		return fmt.Errorf("%w: max level %d for width %d and tile size %d",
			ErrInvalidGeometry, lvl, g.Width, g.TileSize)
	}
	return nil
}

// MaxLevel returns floor(log2(width/tileSize)), or -1 when the ratio is below one.
func MaxLevel(width, tileSize int) int {
	if tileSize <= 0 || width < tileSize {
		return -1
	}
	return bits.Len(uint(width/tileSize)) - 1
}

// MaxLevel is the coarsest level the pyramid supports.
func (g Geometry) MaxLevel() int {
	return g.maxLevel
}

// ClampLevel limits level to [0, MaxLevel].
func (g Geometry) ClampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > g.maxLevel {
		return g.maxLevel
	}
	return level
}

// Override is one named configuration layer applied on top of a geometry.
type Override struct {
	Name  string
	Apply func(*Geometry)
}

// With applies overrides in order to a copy of g. The receiver is left untouched.
func (g Geometry) With(overrides ...Override) Geometry {
	out := g
	for _, o := range overrides {
		if o.Apply != nil {
			o.Apply(&out)
		}
	}
	return out
}

// AtPlane sets the fixed z offset.
func AtPlane(z int) Override {
	return Override{Name: "plane", Apply: func(g *Geometry) { g.Z = z }}
}

// WithModifiers replaces the query modifiers.
func WithModifiers(m Modifiers) Override {
	return Override{Name: "modifiers", Apply: func(g *Geometry) { g.Modifiers = m }}
}

// AsPlaceholder switches the geometry to placeholder addressing.
func AsPlaceholder() Override {
	return Override{Name: "placeholder", Apply: func(g *Geometry) { g.Mode = ModePlaceholder }}
}
