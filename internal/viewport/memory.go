// Package viewport provides an in-memory Viewport that records what a
// rendering host would display. It backs the simulation command and tests.
package viewport

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dojo-stack/server/internal/stack"
)

// ErrNotFound is returned for items the viewport does not hold.
var ErrNotFound = errors.New("viewport item not found")

// Item is one tiled image in the viewport.
type Item struct {
	ID     uuid.UUID
	Source stack.Source
	Loaded bool
}

// ItemInfo is a read-only view of an item at its current draw position.
type ItemInfo struct {
	ID       string  `json:"id"`
	Position int     `json:"position"`
	Z        int     `json:"z"`
	Kind     string  `json:"kind"`
	Opacity  float64 `json:"opacity"`
	MinLevel int     `json:"min_level"`
	Loaded   bool    `json:"loaded"`
	Address  string  `json:"address"`
}

// Memory holds items in draw order; position 0 is drawn first.
type Memory struct {
	items       []*Item
	needsRedraw bool
	handlers    []func(stack.LoadEvent)
}

// New creates an empty viewport.
func New() *Memory {
	return &Memory{}
}

// AddLayerBatch inserts each source's item at its slot, clamped to the list.
func (m *Memory) AddLayerBatch(b stack.Batch) error {
	if len(b.Slots) != len(b.Sources) {
		return fmt.Errorf("batch at z=%d has %d slots for %d sources", b.Z, len(b.Slots), len(b.Sources))
	}
	for _, src := range b.Sources {
		m.insert(&Item{ID: uuid.New(), Source: src}, src.Slot)
	}
	return nil
}

func (m *Memory) insert(it *Item, pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(m.items) {
		pos = len(m.items)
	}
	m.items = append(m.items, nil)
	copy(m.items[pos+1:], m.items[pos:])
	m.items[pos] = it
}

func (m *Memory) position(ref stack.ItemRef) int {
	it, ok := ref.(*Item)
	if !ok {
		return -1
	}
	for i, cur := range m.items {
		if cur == it {
			return i
		}
	}
	return -1
}

// ItemAt returns the item at a draw position.
func (m *Memory) ItemAt(slot int) (stack.ItemRef, bool) {
	if slot < 0 || slot >= len(m.items) {
		return nil, false
	}
	return m.items[slot], true
}

// SourceOf returns the source an item was created from.
func (m *Memory) SourceOf(ref stack.ItemRef) (stack.Source, bool) {
	i := m.position(ref)
	if i < 0 {
		return stack.Source{}, false
	}
	return m.items[i].Source, true
}

// RemoveItem drops an item. Unknown items are ignored.
func (m *Memory) RemoveItem(ref stack.ItemRef) {
	i := m.position(ref)
	if i < 0 {
		return
	}
	m.items = append(m.items[:i], m.items[i+1:]...)
}

// ItemCount returns the number of items.
func (m *Memory) ItemCount() int {
	return len(m.items)
}

// SetDrawOrder moves an item to position, clamped to the list.
func (m *Memory) SetDrawOrder(ref stack.ItemRef, position int) {
	i := m.position(ref)
	if i < 0 {
		return
	}
	it := m.items[i]
	m.items = append(m.items[:i], m.items[i+1:]...)
	m.insert(it, position)
}

// NeedsRedraw reports whether draw work is pending.
func (m *Memory) NeedsRedraw() bool {
	return m.needsRedraw
}

// SetNeedsRedraw sets the pending draw flag.
func (m *Memory) SetNeedsRedraw(v bool) {
	m.needsRedraw = v
}

// OnFullyLoaded registers a handler for load events.
func (m *Memory) OnFullyLoaded(fn func(stack.LoadEvent)) {
	m.handlers = append(m.handlers, fn)
}

// Find looks up an item by ID.
func (m *Memory) Find(id uuid.UUID) (*Item, bool) {
	for _, it := range m.items {
		if it.ID == id {
			return it, true
		}
	}
	return nil, false
}

// Complete marks an item fully loaded, resets its minimum level and notifies handlers.
func (m *Memory) Complete(id uuid.UUID) error {
	it, ok := m.Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	it.Loaded = true
	it.Source.MinLevel = 0
	m.Emit(stack.LoadEvent{Item: it, Z: it.Source.Z, FullyLoaded: true})
	return nil
}

// CompleteAt completes the item at a draw position.
func (m *Memory) CompleteAt(slot int) error {
	if slot < 0 || slot >= len(m.items) {
		return fmt.Errorf("%w: position %d", ErrNotFound, slot)
	}
	return m.Complete(m.items[slot].ID)
}

// Emit delivers ev to every handler, whether or not the item is still held.
func (m *Memory) Emit(ev stack.LoadEvent) {
	for _, fn := range m.handlers {
		fn(ev)
	}
}

// Planes lists the z of every item in draw order.
func (m *Memory) Planes() []int {
	out := make([]int, len(m.items))
	for i, it := range m.items {
		out[i] = it.Source.Z
	}
	return out
}

// Items describes every item in draw order. Addresses are for tile (0, 0)
// at the item's minimum level.
func (m *Memory) Items() []ItemInfo {
	out := make([]ItemInfo, len(m.items))
	for i, it := range m.items {
		out[i] = ItemInfo{
			ID:       it.ID.String(),
			Position: i,
			Z:        it.Source.Z,
			Kind:     it.Source.Layer.Kind.String(),
			Opacity:  it.Source.Layer.Opacity,
			MinLevel: it.Source.MinLevel,
			Loaded:   it.Loaded,
			Address:  it.Source.Address(it.Source.MinLevel, 0, 0).String(),
		}
	}
	return out
}
