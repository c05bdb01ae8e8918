package pyramid

import (
	"fmt"
	"strings"
)

// PlaceholderPath is served in place of remote tiles for the synthetic layer.
const PlaceholderPath = "/placeholder.png"

// TileAddress locates one tile on the data server.
type TileAddress struct {
	Server   string
	DataPath string
	// Start is the pixel-space origin (x, y, z) at full resolution.
	Start [3]int
	// Mip is the bottom-up level expected by the data server.
	Mip int
	// Size is the pixel extent (w, h, 1); edge tiles are truncated.
	Size        [3]int
	Modifier    string
	Placeholder bool
}

// Address computes the fetch address for tile (x, y) at a top-down level on plane z.
// Level 0 is the finest level; out-of-range levels are clamped.
func Address(g Geometry, level, x, y, z int) TileAddress {
	level = g.ClampLevel(level)
	if g.Mode == ModePlaceholder {
		return TileAddress{Server: g.Server, Mip: g.maxLevel - level, Placeholder: true}
	}

	tw := g.TileSize << level
	th := g.TileSize << level
	sx, sy := x*tw, y*th

	return TileAddress{
		Server:   g.Server,
		DataPath: g.DataPath,
		Start:    [3]int{sx, sy, g.Z + z},
		Mip:      g.maxLevel - level,
		Size:     [3]int{extent(tw, g.Width-sx), extent(th, g.Height-sy), 1},
		Modifier: g.Modifiers.Query(),
	}
}

func extent(full, remaining int) int {
	if remaining < 0 {
		return 0
	}
	if remaining < full {
		return remaining
	}
	return full
}

// Query renders the modifier fragments in the order the data server expects.
func (m Modifiers) Query() string {
	var b strings.Builder
	if m.Segmentation {
		b.WriteString("&segmentation=y")
		if m.Target {
			b.WriteString("&output=zip")
		} else {
			b.WriteString("&segcolor=y")
		}
	}
	if m.Synapse {
		b.WriteString("&synapse=y")
	}
	return b.String()
}

// String renders the address as a data server URL.
func (a TileAddress) String() string {
	if a.Placeholder {
		return "http://" + a.Server + PlaceholderPath
	}
	return fmt.Sprintf("http://%s/data/?datapath=%s&start=%d,%d,%d&mip=%d&size=%d,%d,%d%s",
		a.Server, a.DataPath,
		a.Start[0], a.Start[1], a.Start[2],
		a.Mip,
		a.Size[0], a.Size[1], a.Size[2],
		a.Modifier)
}
