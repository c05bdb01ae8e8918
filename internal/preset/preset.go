// Package preset resolves a channel string into the ordered layers of one stack plane.
package preset

import (
	"github.com/dojo-stack/server/internal/pyramid"
)

// Kind is the closed set of channel kinds a stack can draw.
type Kind uint8

const (
	Intensity Kind = iota
	Segmentation
	Boundary
	Synapse
	// Placeholder is the synthetic layer appended to every stack.
	Placeholder
)

// DefaultChannels is used when no channels are requested.
const DefaultChannels = "i"

// dimmedOpacity is subtracted from every base channel after the first.
const dimmedOpacity = 0.5

func (k Kind) String() string {
	switch k {
	case Intensity:
		return "intensity"
	case Segmentation:
		return "segmentation"
	case Boundary:
		return "boundary"
	case Synapse:
		return "synapse"
	case Placeholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// KindOf maps a channel character to its kind. Unknown characters are intensity.
func KindOf(c rune) Kind {
	switch c {
	case 's':
		return Segmentation
	case 'g':
		return Boundary
	case 'y':
		return Synapse
	default:
		return Intensity
	}
}

// Target reports whether layers of this kind are render targets.
func (k Kind) Target() bool {
	return k == Boundary || k == Synapse || k == Placeholder
}

// Base reports whether the kind is a plain image channel that dims when stacked.
func (k Kind) Base() bool {
	return k == Intensity
}

// Modifiers returns the query flags the data server needs for this kind.
func (k Kind) Modifiers() pyramid.Modifiers {
	switch k {
	case Segmentation:
		return pyramid.Modifiers{Segmentation: true}
	case Boundary:
		return pyramid.Modifiers{Segmentation: true, Target: true}
	case Synapse:
		return pyramid.Modifiers{Synapse: true, Target: true}
	default:
		return pyramid.Modifiers{}
	}
}

// Layer describes one channel of a stack plane. It is immutable once resolved.
type Layer struct {
	Ordinal  int
	Kind     Kind
	Target   bool
	Opacity  float64
	Geometry pyramid.Geometry
}

// Resolve builds one layer per channel character plus the trailing placeholder.
func Resolve(channels string, base pyramid.Geometry) []Layer {
	if channels == "" {
		channels = DefaultChannels
	}

	kinds := make([]Kind, 0, len(channels)+1)
	for _, c := range channels {
		kinds = append(kinds, KindOf(c))
	}
	kinds = append(kinds, Placeholder)

	layers := make([]Layer, len(kinds))
	for i, k := range kinds {
		overrides := []pyramid.Override{pyramid.WithModifiers(k.Modifiers())}
		if k == Placeholder {
			overrides = append(overrides, pyramid.AsPlaceholder())
		}
		layers[i] = Layer{
			Ordinal:  i,
			Kind:     k,
			Target:   k.Target(),
			Opacity:  opacity(i, k),
			Geometry: base.With(overrides...),
		}
	}
	return layers
}

func opacity(index int, k Kind) float64 {
	if index > 0 && k.Base() {
		return 1 - dimmedOpacity
	}
	return 1
}

// Channels renders the layers back to a channel string, without the placeholder.
func Channels(layers []Layer) string {
	b := make([]rune, 0, len(layers))
	for _, l := range layers {
		switch l.Kind {
		case Intensity:
			b = append(b, 'i')
		case Segmentation:
			b = append(b, 's')
		case Boundary:
			b = append(b, 'g')
		case Synapse:
			b = append(b, 'y')
		}
	}
	return string(b)
}
