// Package frame holds 2D segmentation label images and the z-stack
// reductions and rescaling applied to them before remapping.
package frame

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Labels is a 2D label image stored row-major. Pixel (x, y) lives at
// Pix[y*Width+x]. Zero is background.
type Labels struct {
	Width  int
	Height int
	Pix    []uint32
}

// New allocates an all-background label image.
func New(width, height int) Labels {
	return Labels{Width: width, Height: height, Pix: make([]uint32, width*height)}
}

// At returns the label at (x, y).
func (l Labels) At(x, y int) uint32 {
	return l.Pix[y*l.Width+x]
}

// Set stores a label at (x, y).
func (l Labels) Set(x, y int, v uint32) {
	l.Pix[y*l.Width+x] = v
}

// Max returns the largest label in the image (0 for an empty image).
func (l Labels) Max() uint32 {
	var m uint32
	for _, v := range l.Pix {
		if v > m {
			m = v
		}
	}
	return m
}

// Validate checks that the pixel buffer matches the declared dimensions.
func (l Labels) Validate() error {
	if l.Width <= 0 || l.Height <= 0 {
		return fmt.Errorf("invalid label image size %dx%d", l.Width, l.Height)
	}
	if len(l.Pix) != l.Width*l.Height {
		return fmt.Errorf("label image buffer has %d pixels, expected %dx%d", len(l.Pix), l.Width, l.Height)
	}
	return nil
}

// Stack is a z-stack of label planes stored z-major.
type Stack struct {
	Depth  int
	Width  int
	Height int
	Pix    []uint32
}

// Plane returns plane z as a Labels view sharing the stack's buffer.
func (s Stack) Plane(z int) Labels {
	n := s.Width * s.Height
	return Labels{Width: s.Width, Height: s.Height, Pix: s.Pix[z*n : (z+1)*n]}
}

// Projection selects how a z-stack is flattened into a single plane.
type Projection string

const (
	// ProjectMax keeps the largest label along z.
	ProjectMax Projection = "max"
	// ProjectMinNonzero keeps the smallest nonzero label along z, so objects
	// with lower ids win where they overlap. Background stays 0.
	ProjectMinNonzero Projection = "min"
	// ProjectNone requires a single plane.
	ProjectNone Projection = "none"
)

// ParseProjection parses a projection name; the empty string means max.
func ParseProjection(s string) (Projection, error) {
	switch Projection(s) {
	case "":
		return ProjectMax, nil
	case ProjectMax, ProjectMinNonzero, ProjectNone:
		return Projection(s), nil
	default:
		return "", fmt.Errorf("unknown projection %q (want max, min or none)", s)
	}
}

// Project flattens a z-stack into a 2D label image.
func Project(s Stack, mode Projection) (Labels, error) {
	if s.Depth <= 0 {
		return Labels{}, fmt.Errorf("empty z-stack")
	}
	if len(s.Pix) != s.Depth*s.Width*s.Height {
		return Labels{}, fmt.Errorf("z-stack buffer has %d voxels, expected %dx%dx%d", len(s.Pix), s.Depth, s.Height, s.Width)
	}
	if s.Depth == 1 {
		out := New(s.Width, s.Height)
		copy(out.Pix, s.Pix)
		return out, nil
	}

	out := New(s.Width, s.Height)
	switch mode {
	case ProjectMax, "":
		for z := 0; z < s.Depth; z++ {
			plane := s.Plane(z).Pix
			for i, v := range plane {
				if v > out.Pix[i] {
					out.Pix[i] = v
				}
			}
		}
	case ProjectMinNonzero:
		for z := 0; z < s.Depth; z++ {
			plane := s.Plane(z).Pix
			for i, v := range plane {
				if v == 0 {
					continue
				}
				if cur := out.Pix[i]; cur == 0 || v < cur {
					out.Pix[i] = v
				}
			}
		}
	case ProjectNone:
		return Labels{}, fmt.Errorf("projection disabled but z-stack has %d planes", s.Depth)
	default:
		return Labels{}, fmt.Errorf("unknown projection %q", mode)
	}
	return out, nil
}

// Scale resizes a label image by factor using nearest-neighbour sampling,
// so no new label values are ever introduced. The output size is the
// input size times factor, rounded, and at least 1x1.
func Scale(l Labels, factor float64) (Labels, error) {
	if factor == 1 {
		return l, nil
	}
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return Labels{}, fmt.Errorf("invalid scale factor %v", factor)
	}
	if err := l.Validate(); err != nil {
		return Labels{}, err
	}

	w := max(1, int(math.Round(float64(l.Width)*factor)))
	h := max(1, int(math.Round(float64(l.Height)*factor)))

	// Labels travel through the resampler as raw 32-bit RGBA words; nearest
	// neighbour with draw.Src copies them without blending.
	src := toWords(l)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return fromWords(dst), nil
}

func toWords(l Labels) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, l.Width, l.Height))
	for i, v := range l.Pix {
		o := i * 4
		img.Pix[o] = byte(v)
		img.Pix[o+1] = byte(v >> 8)
		img.Pix[o+2] = byte(v >> 16)
		img.Pix[o+3] = byte(v >> 24)
	}
	return img
}

func fromWords(img *image.RGBA) Labels {
	b := img.Bounds()
	out := New(b.Dx(), b.Dy())
	for y := 0; y < out.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < out.Width; x++ {
			o := x * 4
			out.Pix[y*out.Width+x] = uint32(row[o]) |
				uint32(row[o+1])<<8 |
				uint32(row[o+2])<<16 |
				uint32(row[o+3])<<24
		}
	}
	return out
}
