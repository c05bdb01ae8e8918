// Package window maps the edges of a stack window to flat slot positions.
package window

import (
	"errors"
	"fmt"
)

// ErrUnknownEdge is returned for names that are not window edges.
var ErrUnknownEdge = errors.New("unknown window edge")

// Edge names a position in the window.
type Edge string

const (
	// Start is the centre plane at depth 0.
	Start Edge = "start"
	// Up is where the next batch toward increasing z is inserted.
	Up Edge = "up"
	// Down is where the next batch toward decreasing z is inserted.
	// It trails Up by one depth.
	Down Edge = "down"
	// End is the outermost resident batch.
	End Edge = "end"
	// Now is the next slot to be populated.
	Now Edge = "now"
)

// Edges lists every edge in a stable order.
var Edges = []Edge{Start, Up, Down, End, Now}

// Index holds layerCount slot positions for each edge.
type Index struct {
	Start []int `json:"start"`
	Up    []int `json:"up"`
	Down  []int `json:"down"`
	End   []int `json:"end"`
	Now   []int `json:"now"`
}

// Build computes the index for the given window depths.
func Build(layerCount, behind, ahead int) Index {
	return Index{
		Start: slots(layerCount, 0),
		Up:    slots(layerCount, behind),
		Down:  slots(layerCount, behind-1),
		End:   slots(layerCount, behind+ahead-1),
		Now:   slots(layerCount, behind+ahead),
	}
}

func slots(layerCount, depth int) []int {
	if depth < 0 {
		depth = 0
	}
	out := make([]int, layerCount)
	for i := range out {
		out[i] = depth*layerCount + i
	}
	return out
}

// Edge returns the slots for a named edge.
func (ix Index) Edge(e Edge) ([]int, error) {
	switch e {
	case Start:
		return ix.Start, nil
	case Up:
		return ix.Up, nil
	case Down:
		return ix.Down, nil
	case End:
		return ix.End, nil
	case Now:
		return ix.Now, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEdge, e)
	}
}

// Clone returns a deep copy.
func (ix Index) Clone() Index {
	return Index{
		Start: append([]int(nil), ix.Start...),
		Up:    append([]int(nil), ix.Up...),
		Down:  append([]int(nil), ix.Down...),
		End:   append([]int(nil), ix.End...),
		Now:   append([]int(nil), ix.Now...),
	}
}
