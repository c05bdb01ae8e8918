// Package render draws placeholder tiles for the synthetic stack layer using fogleman/gg.
package render

import (
	"bytes"
	"image"
	"image/png"
	"sync"

	"github.com/fogleman/gg"

	"github.com/dojo-stack/server/pkg/colormap"
)

// Config contains renderer configuration.
type Config struct {
	TileSize int
	// Levels is the number of pyramid levels, used to spread the shading.
	Levels int
}

// TileRenderer renders placeholder tiles.
type TileRenderer struct {
	config     Config
	bufferPool sync.Pool
}

// NewTileRenderer creates a new tile renderer.
func NewTileRenderer(cfg Config) *TileRenderer {
	if cfg.Levels <= 0 {
		cfg.Levels = 1
	}
	return &TileRenderer{
		config: cfg,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 8*1024))
			},
		},
	}
}

// TileSize returns the edge length of rendered tiles.
func (r *TileRenderer) TileSize() int {
	return r.config.TileSize
}

// RenderPlaceholder renders the tile shown while plane z has not loaded.
// The background is shaded by level and framed in the plane's tint.
func (r *TileRenderer) RenderPlaceholder(level, z int) ([]byte, error) {
	size := float64(r.config.TileSize)
	dc := gg.NewContext(r.config.TileSize, r.config.TileSize)

	shade := 0.0
	if r.config.Levels > 1 {
		shade = float64(level) / float64(r.config.Levels-1)
	}
	dc.SetColor(colormap.Shade.At(shade))
	dc.Clear()

	border := size / 32
	if border < 1 {
		border = 1
	}
	dc.SetColor(colormap.ForPlane(z))
	dc.SetLineWidth(border)
	dc.DrawRectangle(border/2, border/2, size-border, size-border)
	dc.Stroke()

	// Diagonal cross marks the tile as synthetic.
	dc.SetLineWidth(border / 2)
	dc.DrawLine(0, 0, size, size)
	dc.DrawLine(size, 0, 0, size)
	dc.Stroke()

	return r.encode(dc.Image())
}

func (r *TileRenderer) encode(img image.Image) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, img); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// CreateEmptyTile creates an empty transparent tile.
func (r *TileRenderer) CreateEmptyTile() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, r.config.TileSize, r.config.TileSize))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
		img.Pix[i+1] = 255
		img.Pix[i+2] = 255
		img.Pix[i+3] = 0
	}
	return r.encode(img)
}
