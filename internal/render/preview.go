// Package render draws preview images of converted frames using
// fogleman/gg: each object filled with the colormap color of one feature.
package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"

	"github.com/fogleman/gg"

	"github.com/colorizer-data/colorizer/internal/frame"
	"github.com/colorizer-data/colorizer/pkg/colormap"
)

// Config contains renderer configuration.
type Config struct {
	Colormap string
	Outline  bool
}

var (
	missingColor = color.RGBA{R: 200, G: 200, B: 200, A: 255}
	outlierColor = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	outlineColor = color.RGBA{R: 0, G: 0, B: 0, A: 160}
)

// PreviewRenderer renders colored previews of remapped frames.
type PreviewRenderer struct {
	config     Config
	cmap       colormap.Colormap
	bufferPool sync.Pool
}

// NewPreviewRenderer creates a renderer for the configured colormap.
func NewPreviewRenderer(cfg Config) (*PreviewRenderer, error) {
	cmap, err := colormap.ByName(cfg.Colormap)
	if err != nil {
		return nil, err
	}
	return &PreviewRenderer{
		config: cfg,
		cmap:   cmap,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
	}, nil
}

// Frame is the data needed to render one frame. Values and Outliers are
// indexed by row, so object index k reads entry k-1. Bounds is the flat
// dataset bounds array and may be nil.
type Frame struct {
	Labels   frame.Labels
	Values   []float64
	Min      float64
	Max      float64
	Outliers []bool
	Bounds   []uint16
}

// Render draws the frame and returns PNG bytes. Background is transparent.
func (r *PreviewRenderer) Render(f Frame) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, f.Labels.Width, f.Labels.Height))
	span := f.Max - f.Min
	if span == 0 || math.IsNaN(span) {
		span = 1
	}

	colors := make(map[uint32]color.RGBA)
	present := make([]uint32, 0)
	for i, k := range f.Labels.Pix {
		if k == 0 {
			continue
		}
		c, ok := colors[k]
		if !ok {
			c = r.objectColor(f, int(k)-1, span)
			colors[k] = c
			present = append(present, k)
		}
		o := i * 4
		img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = c.R, c.G, c.B, c.A
	}

	if r.config.Outline && f.Bounds != nil {
		dc := gg.NewContextForRGBA(img)
		dc.SetColor(outlineColor)
		dc.SetLineWidth(1)
		for _, k := range present {
			o := int(k) * 4
			if o+3 >= len(f.Bounds) {
				continue
			}
			x0, y0 := float64(f.Bounds[o]), float64(f.Bounds[o+1])
			x1, y1 := float64(f.Bounds[o+2])+1, float64(f.Bounds[o+3])+1
			dc.DrawRectangle(x0+0.5, y0+0.5, x1-x0-1, y1-y0-1)
		}
		dc.Stroke()
	}

	return r.encode(img)
}

func (r *PreviewRenderer) objectColor(f Frame, row int, span float64) color.RGBA {
	if row < len(f.Outliers) && f.Outliers[row] {
		return outlierColor
	}
	if row >= len(f.Values) {
		return missingColor
	}
	v := f.Values[row]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return missingColor
	}
	c := color.RGBAModel.Convert(r.cmap.At((v - f.Min) / span)).(color.RGBA)
	c.A = 255
	return c
}

func (r *PreviewRenderer) encode(img image.Image) ([]byte, error) {
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
