package stack

import (
	"github.com/dojo-stack/server/internal/preset"
	"github.com/dojo-stack/server/internal/pyramid"
)

// ItemRef is an opaque, comparable handle to an item held by a Viewport.
type ItemRef any

// LoadEvent reports that a viewport item changed its fully-loaded state.
type LoadEvent struct {
	Item        ItemRef
	Z           int
	FullyLoaded bool
}

// Source is one layer of a batch: everything a viewport needs to fetch its tiles.
type Source struct {
	Layer    preset.Layer
	Z        int
	Slot     int
	MinLevel int
}

// Address returns the fetch address of tile (x, y) at level for this source's plane.
func (s Source) Address(level, x, y int) pyramid.TileAddress {
	return pyramid.Address(s.Layer.Geometry, level, x, y, s.Z)
}

// Batch is the full set of layers for one plane, with their reserved slots.
type Batch struct {
	Z       int
	Slots   []int
	Sources []Source
}

// Viewport is the rendering host the controller drives.
// Implementations own the items; the controller only holds references.
type Viewport interface {
	// AddLayerBatch inserts one item per source at the source's slot.
	AddLayerBatch(b Batch) error
	ItemAt(slot int) (ItemRef, bool)
	// SourceOf returns the source an item was created from.
	SourceOf(item ItemRef) (Source, bool)
	RemoveItem(item ItemRef)
	ItemCount() int
	SetDrawOrder(item ItemRef, position int)
	// NeedsRedraw reports pending draw work; false means the viewport is quiescent.
	NeedsRedraw() bool
	OnFullyLoaded(fn func(LoadEvent))
}
