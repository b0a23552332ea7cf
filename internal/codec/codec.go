// Package codec packs dense object indices into the RGBA channels of a PNG
// so the viewer can recover them as R + 256*G + 65536*B.
package codec

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/colorizer-data/colorizer/internal/frame"
)

// MaxIndex is the largest index representable in the RGB channels.
const MaxIndex = 1<<24 - 1

// Pack splits k into channel bytes. Alpha is always opaque.
func Pack(k uint32) (r, g, b, a uint8) {
	return uint8(k), uint8(k >> 8), uint8(k >> 16), 255
}

// Unpack reverses Pack.
func Unpack(r, g, b uint8) uint32 {
	return uint32(r) + 256*uint32(g) + 65536*uint32(b)
}

// Encode renders an index image as NRGBA. Indices above MaxIndex are
// rejected.
func Encode(l frame.Labels) (*image.NRGBA, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, l.Width, l.Height))
	for y := 0; y < l.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < l.Width; x++ {
			k := l.Pix[y*l.Width+x]
			if k > MaxIndex {
				return nil, fmt.Errorf("index %d at (%d, %d) exceeds 24-bit encoding", k, x, y)
			}
			o := x * 4
			row[o], row[o+1], row[o+2], row[o+3] = Pack(k)
		}
	}
	return img, nil
}

// Decode recovers the index image from an RGBA-packed image.
func Decode(img image.Image) frame.Labels {
	b := img.Bounds()
	out := frame.New(b.Dx(), b.Dy())
	if n, ok := img.(*image.NRGBA); ok {
		for y := 0; y < out.Height; y++ {
			row := n.Pix[(y+b.Min.Y-n.Rect.Min.Y)*n.Stride+(b.Min.X-n.Rect.Min.X)*4:]
			for x := 0; x < out.Width; x++ {
				o := x * 4
				out.Pix[y*out.Width+x] = Unpack(row[o], row[o+1], row[o+2])
			}
		}
		return out
	}
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			out.Pix[y*out.Width+x] = Unpack(c.R, c.G, c.B)
		}
	}
	return out
}

// WritePNG encodes l as a packed PNG.
func WritePNG(w io.Writer, l frame.Labels) error {
	img, err := Encode(l)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(bw, img); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return bw.Flush()
}

// ReadPNG decodes a packed PNG back into indices.
func ReadPNG(r io.Reader) (frame.Labels, error) {
	img, err := png.Decode(r)
	if err != nil {
		return frame.Labels{}, fmt.Errorf("failed to decode png: %w", err)
	}
	return Decode(img), nil
}
