// Package labels turns per-frame raw segmentation labels into dataset-wide
// object indices and accumulates per-object bounding boxes.
package labels

import (
	"github.com/colorizer-data/colorizer/internal/frame"
)

const (
	// ReservedIndices is the number of object indices kept back for
	// background. Global object index = row index + ReservedIndices.
	ReservedIndices = 1

	// DefaultMaxLabel caps the LUT size for a single frame.
	DefaultMaxLabel = 1 << 24

	// MaxObjectIndex is the largest index that fits the 24-bit RGB encoding.
	MaxObjectIndex = 1<<24 - 1
)

// Entry associates a table row with its raw label in a frame.
type Entry struct {
	Row   int
	Label uint32
}

// LUT maps a raw label to a global object index. Unused labels map to 0.
type LUT []uint32

// Remapper builds LUTs and remaps frames. The zero value uses
// DefaultMaxLabel and lenient label checks.
type Remapper struct {
	// MaxLabel is the largest raw label accepted in a frame.
	MaxLabel uint32
	// Strict rejects rows whose label never appears in the frame.
	Strict bool
}

// BuildLUT builds the lookup table for one frame using the default limits.
func BuildLUT(frameMax uint32, entries []Entry) (LUT, error) {
	return Remapper{}.BuildLUT("", frameMax, entries)
}

// BuildLUT builds the lookup table for the frame named name whose largest
// raw label is frameMax.
func (r Remapper) BuildLUT(name string, frameMax uint32, entries []Entry) (LUT, error) {
	limit := r.MaxLabel
	if limit == 0 {
		limit = DefaultMaxLabel
	}
	if frameMax > limit {
		return nil, &RangeError{Frame: name, Row: -1, What: "max raw label", Value: uint64(frameMax), Limit: uint64(limit)}
	}

	lut := make(LUT, int(frameMax)+1)
	for _, e := range entries {
		if e.Label > frameMax {
			return nil, &DataIntegrityError{Frame: name, Row: e.Row, Label: e.Label,
				Reason: "label is larger than any label in the image"}
		}
		if e.Label == 0 {
			// background can never carry an object
			continue
		}
		idx := uint64(e.Row) + ReservedIndices
		if idx > MaxObjectIndex {
			return nil, &RangeError{Frame: name, Row: e.Row, What: "object index", Value: idx, Limit: MaxObjectIndex}
		}
		lut[e.Label] = uint32(idx)
	}
	return lut, nil
}

// Remap replaces every raw label with its global object index.
func Remap(img frame.Labels, lut LUT) frame.Labels {
	out := frame.New(img.Width, img.Height)
	for i, v := range img.Pix {
		if int(v) < len(lut) {
			out.Pix[i] = lut[v]
		}
	}
	return out
}

// Remap builds the frame's LUT and applies it. In strict mode every entry
// must have at least one pixel in img.
func (r Remapper) Remap(name string, img frame.Labels, entries []Entry) (frame.Labels, LUT, error) {
	lut, err := r.BuildLUT(name, img.Max(), entries)
	if err != nil {
		return frame.Labels{}, nil, err
	}
	if r.Strict {
		seen := make([]bool, len(lut))
		for _, v := range img.Pix {
			seen[v] = true
		}
		for _, e := range entries {
			if e.Label == 0 || !seen[e.Label] {
				return frame.Labels{}, nil, &DataIntegrityError{Frame: name, Row: e.Row, Label: e.Label,
					Reason: "label does not occur in the image"}
			}
		}
	}
	return Remap(img, lut), lut, nil
}
