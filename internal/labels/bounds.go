package labels

import (
	"math"
	"sync"

	"github.com/colorizer-data/colorizer/internal/frame"
)

// Bounds is the dataset-wide bounding box array. Slot 4*i holds
// [minX, minY, maxX, maxY] for object index i. Safe for concurrent Update.
type Bounds struct {
	mu   sync.Mutex
	data []uint16
}

// NewBounds allocates a zeroed array for indices 0..maxIndex.
func NewBounds(maxIndex int) *Bounds {
	return &Bounds{data: make([]uint16, (maxIndex+1)*4)}
}

type box struct {
	minX, minY, maxX, maxY int
}

// Update records the boxes of every object present in a remapped frame.
// Objects in lut that have no pixels are left untouched.
func (b *Bounds) Update(name string, remapped frame.Labels, lut LUT) error {
	wanted := make(map[uint32]struct{}, len(lut))
	for _, idx := range lut {
		if idx != 0 {
			wanted[idx] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	boxes := make(map[uint32]*box, len(wanted))
	for y := 0; y < remapped.Height; y++ {
		row := remapped.Pix[y*remapped.Width : (y+1)*remapped.Width]
		for x, idx := range row {
			if idx == 0 {
				continue
			}
			bb, ok := boxes[idx]
			if !ok {
				if _, ok := wanted[idx]; !ok {
					continue
				}
				boxes[idx] = &box{minX: x, minY: y, maxX: x, maxY: y}
				continue
			}
			bb.minX = min(bb.minX, x)
			bb.maxX = max(bb.maxX, x)
			bb.minY = min(bb.minY, y)
			bb.maxY = max(bb.maxY, y)
		}
	}

	for idx, bb := range boxes {
		if bb.maxX > math.MaxUint16 || bb.maxY > math.MaxUint16 {
			return &RangeError{Frame: name, Row: int(idx) - ReservedIndices, What: "bounding box coordinate",
				Value: uint64(max(bb.maxX, bb.maxY)), Limit: math.MaxUint16}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for idx, bb := range boxes {
		o := int(idx) * 4
		if o+3 >= len(b.data) {
			return &RangeError{Frame: name, Row: int(idx) - ReservedIndices, What: "object index",
				Value: uint64(idx), Limit: uint64(len(b.data)/4 - 1)}
		}
		b.data[o] = uint16(bb.minX)
		b.data[o+1] = uint16(bb.minY)
		b.data[o+2] = uint16(bb.maxX)
		b.data[o+3] = uint16(bb.maxY)
	}
	return nil
}

// Data returns a copy of the flat array.
func (b *Bounds) Data() []uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint16, len(b.data))
	copy(out, b.data)
	return out
}
