// Package images reads 2D label images stored as PNG or TIFF files.
package images

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/colorizer-data/colorizer/internal/codec"
	"github.com/colorizer-data/colorizer/internal/frame"
)

// Source loads label images from disk.
type Source struct{}

// NewSource returns an image file source.
func NewSource() *Source {
	return &Source{}
}

// Load reads the label image at path.
func (s *Source) Load(ctx context.Context, path string) (frame.Labels, error) {
	if err := ctx.Err(); err != nil {
		return frame.Labels{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return frame.Labels{}, fmt.Errorf("failed to open label image: %w", err)
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		img, err = png.Decode(f)
	case ".tif", ".tiff":
		img, err = tiff.Decode(f)
	default:
		return frame.Labels{}, fmt.Errorf("unsupported label image format %q", filepath.Ext(path))
	}
	if err != nil {
		return frame.Labels{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return ToLabels(img)
}

// ToLabels interprets a decoded image as labels. Gray images hold the
// label directly, paletted images use the palette index and colour images
// are treated as packed index images.
func ToLabels(img image.Image) (frame.Labels, error) {
	b := img.Bounds()
	out := frame.New(b.Dx(), b.Dy())
	switch m := img.(type) {
	case *image.Gray16:
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				out.Pix[y*out.Width+x] = uint32(m.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	case *image.Gray:
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				out.Pix[y*out.Width+x] = uint32(m.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	case *image.Paletted:
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				out.Pix[y*out.Width+x] = uint32(m.ColorIndexAt(b.Min.X+x, b.Min.Y+y))
			}
		}
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return codec.Decode(img), nil
	default:
		return frame.Labels{}, fmt.Errorf("unsupported label image color model %T", img)
	}
	return out, nil
}
