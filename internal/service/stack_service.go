// Package service provides the stack and address logic behind the HTTP API.
package service

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dojo-stack/server/internal/preset"
	"github.com/dojo-stack/server/internal/pyramid"
	"github.com/dojo-stack/server/internal/stack"
	"github.com/dojo-stack/server/internal/viewport"
	"github.com/dojo-stack/server/internal/window"
)

// ErrInvalidID is returned for item IDs that are not UUIDs.
var ErrInvalidID = errors.New("invalid item id")

// StackServiceConfig contains stack service configuration.
type StackServiceConfig struct {
	Geometry  pyramid.Geometry
	Channels  string
	MaxBuffer int
	Center    int
	Logger    *log.Logger
}

// StackService drives one controller against an in-memory viewport.
// Every call holds the lock, so events reach the controller one at a time.
type StackService struct {
	mu   sync.Mutex
	ctrl *stack.Controller
	vp   *viewport.Memory
	log  *log.Logger
}

// Snapshot is the observable state of the stack.
type Snapshot struct {
	Channels string              `json:"channels"`
	State    stack.WindowState   `json:"state"`
	Capacity int                 `json:"capacity"`
	Index    window.Index        `json:"index"`
	Redraw   bool                `json:"needs_redraw"`
	Items    []viewport.ItemInfo `json:"items"`
}

// NewStackService builds the controller and attaches it to a fresh viewport.
func NewStackService(cfg StackServiceConfig) (*StackService, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	ctrl, err := stack.New(stack.Config{
		Channels:  cfg.Channels,
		Geometry:  cfg.Geometry,
		MaxBuffer: cfg.MaxBuffer,
		Center:    cfg.Center,
		Logger:    logger.WithPrefix("stack"),
	})
	if err != nil {
		return nil, err
	}

	vp := viewport.New()
	if err := ctrl.Attach(vp); err != nil {
		return nil, fmt.Errorf("attach viewport: %w", err)
	}

	return &StackService{ctrl: ctrl, vp: vp, log: logger}, nil
}

// Layers returns the resolved layers.
func (s *StackService) Layers() []preset.Layer {
	return s.ctrl.Layers()
}

// Snapshot returns the current window and viewport contents.
func (s *StackService) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot()
}

func (s *StackService) snapshot() Snapshot {
	return Snapshot{
		Channels: preset.Channels(s.ctrl.Layers()),
		State:    s.ctrl.State(),
		Capacity: s.ctrl.Capacity(),
		Index:    s.ctrl.Index(),
		Redraw:   s.vp.NeedsRedraw(),
		Items:    s.vp.Items(),
	}
}

// Loaded reports that the item with the given ID finished loading.
func (s *StackService) Loaded(id string) (Snapshot, error) {
	itemID, err := uuid.Parse(id)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w %q: %v", ErrInvalidID, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctrl.TakeLoadError()
	if err := s.vp.Complete(itemID); err != nil {
		return Snapshot{}, err
	}
	if err := s.ctrl.TakeLoadError(); err != nil {
		return Snapshot{}, fmt.Errorf("handle load of %s: %w", itemID, err)
	}
	return s.snapshot(), nil
}

// Edge returns the IDs of the items at a window edge. ready is false while the
// viewport holds a different number of items than the window expects.
func (s *StackService) Edge(name string) (ids []string, ready bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := window.Edge(name)
	if _, err := s.ctrl.Index().Edge(e); err != nil {
		return nil, false, err
	}
	items, ok := s.ctrl.Items(e)
	if !ok {
		return nil, false, nil
	}
	ids = make([]string, 0, len(items))
	for _, ref := range items {
		if it, ok := ref.(*viewport.Item); ok {
			ids = append(ids, it.ID.String())
		}
	}
	return ids, true, nil
}

// Zoom applies a viewer zoom factor and returns the active level.
func (s *StackService) Zoom(factor float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	level := s.ctrl.HandleZoom(factor)
	s.log.Debug("zoom", "factor", factor, "level", level)
	return level
}

// SetNeedsRedraw sets the viewport's pending draw flag.
func (s *StackService) SetNeedsRedraw(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vp.SetNeedsRedraw(v)
}

// Show raises the items at slots to the top of the draw order.
func (s *StackService) Show(slots []int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctrl.Show(slots); err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(), nil
}

// Evict drops the outermost plane on one side.
func (s *StackService) Evict(side stack.Side) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctrl.Evict(side); err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(), nil
}

// Recenter moves the window to plane z.
func (s *StackService) Recenter(z int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctrl.Recenter(z); err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(), nil
}
