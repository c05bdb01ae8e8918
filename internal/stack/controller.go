// Package stack keeps a bounded window of image planes resident around the current z.
//
// A Controller grows the window one plane at a time on each edge whenever the
// viewport reports a fully loaded item and has no pending draw work, until both
// edges reach the maximum buffer depth. Items live in the viewport; the
// controller addresses them by slot using a window.Index rebuilt on every change.
//
// The controller is not safe for concurrent use. Callers serialise access; events
// delivered while an event is being handled are queued and handled afterwards.
package stack

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/charmbracelet/log"

	"github.com/dojo-stack/server/internal/preset"
	"github.com/dojo-stack/server/internal/pyramid"
	"github.com/dojo-stack/server/internal/window"
)

// DefaultMaxBuffer is the number of planes kept on each side of the centre.
const DefaultMaxBuffer = 3

var (
	ErrInvalidBuffer = errors.New("invalid max buffer depth")
	ErrNotAttached   = errors.New("controller has no viewport")
	ErrAttached      = errors.New("controller already attached to a viewport")
	ErrBusy          = errors.New("controller is handling an event")
)

// Side is one edge of the window along z.
type Side int

const (
	Behind Side = -1
	Ahead  Side = 1
)

func (s Side) String() string {
	if s == Behind {
		return "behind"
	}
	return "ahead"
}

// ParseSide maps "behind" and "ahead" to a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "behind":
		return Behind, nil
	case "ahead":
		return Ahead, nil
	}
	return 0, fmt.Errorf("%w: side %q", window.ErrUnknownEdge, s)
}

// Config contains controller configuration.
type Config struct {
	Channels  string
	Geometry  pyramid.Geometry
	MaxBuffer int // defaults to DefaultMaxBuffer
	Center    int
	Logger    *log.Logger
}

// WindowState is a snapshot of the window.
type WindowState struct {
	Behind int `json:"behind"`
	Ahead  int `json:"ahead"`
	Total  int `json:"total"`
	Center int `json:"center"`
	Level  int `json:"level"`
}

// Controller owns the window over the z axis.
type Controller struct {
	layers    []preset.Layer
	maxBuffer int
	state     WindowState
	index     window.Index
	vp        Viewport
	log       *log.Logger

	busy    bool
	pending []LoadEvent
	loadErr error
}

// New validates cfg and builds a controller with an empty window around cfg.Center.
func New(cfg Config) (*Controller, error) {
	if lvl := cfg.Geometry.MaxLevel(); lvl <= 0 {
		return nil, fmt.Errorf("%w: max level %d", pyramid.ErrInvalidGeometry, lvl)
	}
	if cfg.MaxBuffer < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBuffer, cfg.MaxBuffer)
	}
	if cfg.MaxBuffer == 0 {
		cfg.MaxBuffer = DefaultMaxBuffer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	layers := preset.Resolve(cfg.Channels, cfg.Geometry)
	c := &Controller{
		layers:    layers,
		maxBuffer: cfg.MaxBuffer,
		state:     WindowState{Total: len(layers), Center: cfg.Center},
		log:       logger,
	}
	c.reindex()
	return c, nil
}

// Layers returns the resolved layers of every plane.
func (c *Controller) Layers() []preset.Layer {
	return append([]preset.Layer(nil), c.layers...)
}

// State returns the current window.
func (c *Controller) State() WindowState {
	return c.state
}

// Index returns a copy of the current slot index.
func (c *Controller) Index() window.Index {
	return c.index.Clone()
}

// MaxBuffer is the depth limit of each edge.
func (c *Controller) MaxBuffer() int {
	return c.maxBuffer
}

// Capacity is the number of items a full window holds.
func (c *Controller) Capacity() int {
	return len(c.layers) * (2*c.maxBuffer + 1)
}

// Attach registers the controller with vp and requests the centre plane.
func (c *Controller) Attach(vp Viewport) error {
	if c.vp != nil {
		return ErrAttached
	}
	if err := vp.AddLayerBatch(c.batch(c.state.Center, c.index.Start)); err != nil {
		return fmt.Errorf("add centre batch: %w", err)
	}
	c.vp = vp
	vp.OnFullyLoaded(c.onFullyLoaded)
	c.log.Debug("attached", "layers", len(c.layers), "center", c.state.Center)
	return nil
}

func (c *Controller) onFullyLoaded(ev LoadEvent) {
	if err := c.HandleLoaded(ev); err != nil {
		c.log.Error("load event failed", "z", ev.Z, "err", err)
		c.loadErr = errors.Join(c.loadErr, err)
	}
}

// TakeLoadError returns the errors from load events delivered by the viewport
// since the last call, and clears them.
func (c *Controller) TakeLoadError() error {
	err := c.loadErr
	c.loadErr = nil
	return err
}

// HandleLoaded processes a load-completion event. Events for items the viewport
// no longer holds are ignored.
func (c *Controller) HandleLoaded(ev LoadEvent) error {
	if c.vp == nil {
		return ErrNotAttached
	}
	c.pending = append(c.pending, ev)
	if c.busy {
		return nil
	}
	c.busy = true
	defer func() { c.busy = false }()

	var errs []error
	for len(c.pending) > 0 {
		next := c.pending[0]
		c.pending = c.pending[1:]
		if err := c.process(next); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) process(ev LoadEvent) error {
	if !ev.FullyLoaded {
		return nil
	}
	if _, ok := c.locate(ev.Item); !ok {
		c.log.Debug("stale load event", "z", ev.Z)
		return nil
	}
	if c.vp.NeedsRedraw() {
		return nil
	}
	if err := c.grow(Behind); err != nil {
		return err
	}
	if err := c.grow(Ahead); err != nil {
		return err
	}
	c.trim()
	return nil
}

func (c *Controller) depth(s Side) *int {
	if s == Behind {
		return &c.state.Behind
	}
	return &c.state.Ahead
}

// outer returns the slots holding the outermost batch of side, which is also
// where the next batch for that side is inserted once the depth is raised.
func (c *Controller) outer(s Side) []int {
	if s == Behind {
		return c.index.Down
	}
	return c.index.Up
}

func (c *Controller) grow(s Side) error {
	d := c.depth(s)
	if *d >= c.maxBuffer {
		return nil
	}

	*d++
	c.state.Total += len(c.layers)
	c.reindex()

	z := c.state.Center + int(s)*(*d)
	if err := c.vp.AddLayerBatch(c.batch(z, c.outer(s))); err != nil {
		*d--
		c.state.Total -= len(c.layers)
		c.reindex()
		return fmt.Errorf("grow %s to z=%d: %w", s, z, err)
	}
	c.log.Debug("grew window", "side", s, "depth", *d, "z", z, "total", c.state.Total)
	return nil
}

// trim removes items the viewport holds beyond a full window: items whose plane
// lies outside the window and duplicates of a resident layer. The first item
// found for each plane and layer is kept.
func (c *Controller) trim() {
	capacity := c.Capacity()
	count := c.vp.ItemCount()
	if count <= capacity {
		return
	}

	type planeLayer struct{ z, layer int }
	lo, hi := c.state.Center-c.state.Behind, c.state.Center+c.state.Ahead
	seen := make(map[planeLayer]bool, capacity)
	var extra []ItemRef
	for _, item := range c.items(c.span(count)) {
		src, ok := c.vp.SourceOf(item)
		key := planeLayer{src.Z, src.Layer.Ordinal}
		if !ok || src.Z < lo || src.Z > hi || seen[key] {
			extra = append(extra, item)
			continue
		}
		seen[key] = true
	}

	c.log.Warn("viewport over capacity", "items", count, "capacity", capacity, "removing", len(extra))
	for _, item := range extra {
		c.vp.RemoveItem(item)
	}
}

// Evict drops the outermost plane on side s, shrinking the window by one batch.
func (c *Controller) Evict(s Side) error {
	if c.vp == nil {
		return ErrNotAttached
	}
	if c.busy {
		return ErrBusy
	}
	d := c.depth(s)
	if *d == 0 {
		return nil
	}

	c.lose(c.outer(s))
	*d--
	c.state.Total -= len(c.layers)
	c.reindex()
	c.log.Debug("evicted", "side", s, "depth", *d, "total", c.state.Total)
	return nil
}

// Recenter empties both edges and moves the centre plane to z.
func (c *Controller) Recenter(z int) error {
	if c.vp == nil {
		return ErrNotAttached
	}
	if c.busy {
		return ErrBusy
	}
	for c.state.Ahead > 0 {
		if err := c.Evict(Ahead); err != nil {
			return err
		}
	}
	for c.state.Behind > 0 {
		if err := c.Evict(Behind); err != nil {
			return err
		}
	}

	c.lose(c.index.Start)
	c.state.Center = z
	if err := c.vp.AddLayerBatch(c.batch(z, c.index.Start)); err != nil {
		return fmt.Errorf("add centre batch at z=%d: %w", z, err)
	}
	c.log.Debug("recentred", "z", z)
	return nil
}

// Show moves the items at shown to the top of the draw order, keeping their
// relative order, and puts the items at the end edge into the vacated positions.
func (c *Controller) Show(shown []int) error {
	if c.vp == nil {
		return ErrNotAttached
	}
	if c.busy {
		return ErrBusy
	}

	top := c.vp.ItemCount() - 1
	for _, item := range c.items(shown) {
		c.vp.SetDrawOrder(item, top)
	}

	// End items are collected before any of them moves; the order is then laid
	// out front to back.
	n := c.vp.ItemCount()
	placed := make(map[int]ItemRef, len(c.index.End))
	moved := make(map[ItemRef]bool, len(c.index.End))
	for i, item := range c.items(c.index.End) {
		if i >= len(shown) {
			break
		}
		pos := shown[i]
		if _, taken := placed[pos]; taken || pos < 0 || pos >= n {
			continue
		}
		placed[pos] = item
		moved[item] = true
	}
	if len(placed) == 0 {
		return nil
	}

	rest := make([]ItemRef, 0, n)
	for _, item := range c.items(c.span(n)) {
		if !moved[item] {
			rest = append(rest, item)
		}
	}
	for pos := 0; pos < n; pos++ {
		item, ok := placed[pos]
		if !ok {
			item, rest = rest[0], rest[1:]
		}
		c.vp.SetDrawOrder(item, pos)
	}
	return nil
}

// Items returns the items at edge e, but only once the viewport holds exactly
// the number of items the window expects.
func (c *Controller) Items(e window.Edge) ([]ItemRef, bool) {
	if c.vp == nil || c.vp.ItemCount() != c.state.Total {
		return nil, false
	}
	slots, err := c.index.Edge(e)
	if err != nil {
		return nil, false
	}
	return c.items(slots), true
}

// HandleZoom derives the active level from a viewer zoom factor.
func (c *Controller) HandleZoom(factor float64) int {
	factor = math.Max(factor, 1)
	level := int(math.Round(math.Log2(factor)))
	c.state.Level = c.layers[0].Geometry.ClampLevel(level)
	return c.state.Level
}

func (c *Controller) reindex() {
	c.index = window.Build(len(c.layers), c.state.Behind, c.state.Ahead)
}

func (c *Controller) batch(z int, slots []int) Batch {
	sources := make([]Source, len(c.layers))
	for i, l := range c.layers {
		sources[i] = Source{Layer: l, Z: z, Slot: slots[i], MinLevel: c.state.Level}
	}
	return Batch{Z: z, Slots: append([]int(nil), slots...), Sources: sources}
}

// span lists the slots [0, n).
func (c *Controller) span(n int) []int {
	slots := make([]int, n)
	for i := range slots {
		slots[i] = i
	}
	return slots
}

func (c *Controller) items(slots []int) []ItemRef {
	out := make([]ItemRef, 0, len(slots))
	for _, slot := range slots {
		if item, ok := c.vp.ItemAt(slot); ok {
			out = append(out, item)
		}
	}
	return out
}

// lose removes the items at slots. References are collected first so that
// removals do not shift the remaining lookups.
func (c *Controller) lose(slots []int) {
	for _, item := range c.items(slots) {
		c.vp.RemoveItem(item)
	}
}

func (c *Controller) locate(item ItemRef) (int, bool) {
	if item == nil {
		return 0, false
	}
	n := c.vp.ItemCount()
	for slot := 0; slot < n; slot++ {
		if it, ok := c.vp.ItemAt(slot); ok && it == item {
			return slot, true
		}
	}
	return 0, false
}
