// Package zarr reads segmentation label arrays from Zarr v2 and v3 stores,
// including OME-Zarr multiscale images.
package zarr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"github.com/colorizer-data/colorizer/internal/frame"
)

// DefaultCacheSize is the number of decoded chunks kept in memory.
const DefaultCacheSize = 256

// Source loads label images from Zarr arrays. Paths take the form
// "store.zarr" or "store.zarr#sub/path".
type Source struct {
	projection frame.Projection
	decoder    *zstd.Decoder
	chunks     *lru.Cache[string, []uint32]
}

// NewSource creates a zarr source. Arrays with a z axis are flattened with
// projection.
func NewSource(projection frame.Projection, cacheSize int) (*Source, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []uint32](cacheSize)
	if err != nil {
		decoder.Close()
		return nil, fmt.Errorf("failed to create chunk cache: %w", err)
	}
	return &Source{projection: projection, decoder: decoder, chunks: cache}, nil
}

// IsZarrPath reports whether path names a zarr store.
func IsZarrPath(path string) bool {
	store, _, _ := strings.Cut(path, "#")
	store = strings.TrimRight(store, `/\`)
	return strings.HasSuffix(strings.ToLower(store), ".zarr")
}

// Load reads the label array at path and reduces it to a 2D image.
// Leading singleton dimensions (time, channel) are dropped.
func (s *Source) Load(ctx context.Context, path string) (frame.Labels, error) {
	store, sub, _ := strings.Cut(path, "#")
	meta, err := resolveArray(filepath.Join(store, filepath.FromSlash(sub)))
	if err != nil {
		return frame.Labels{}, err
	}

	data, err := s.readArray(ctx, meta)
	if err != nil {
		return frame.Labels{}, fmt.Errorf("failed to read %s: %w", meta.dir, err)
	}

	shape := append([]int(nil), meta.shape...)
	for len(shape) > 2 && shape[0] == 1 {
		shape = shape[1:]
	}
	switch len(shape) {
	case 2:
		return frame.Labels{Width: shape[1], Height: shape[0], Pix: data}, nil
	case 3:
		return frame.Project(frame.Stack{Depth: shape[0], Height: shape[1], Width: shape[2], Pix: data}, s.projection)
	default:
		return frame.Labels{}, fmt.Errorf("unsupported label array shape %v", meta.shape)
	}
}

// Close releases resources.
func (s *Source) Close() {
	if s.decoder != nil {
		s.decoder.Close()
	}
}

// readArray assembles the whole array in C order.
func (s *Source) readArray(ctx context.Context, meta *arrayMeta) ([]uint32, error) {
	total := product(meta.shape)
	out := make([]uint32, total)
	ndim := len(meta.shape)

	grid := make([]int, ndim)
	for d := range grid {
		grid[d] = ceilDiv(meta.shape[d], meta.chunks[d])
	}
	strides := cStrides(meta.shape)

	idx := make([]int, ndim)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, chunkShape, err := s.chunkAt(meta, idx)
		if err != nil {
			return nil, err
		}
		extent, err := chunkShapeAt(meta, idx)
		if err != nil {
			return nil, err
		}
		scatter(out, strides, meta.chunks, idx, chunk, chunkShape, extent)

		if !next(idx, grid) {
			break
		}
	}
	return out, nil
}

// scatter copies the valid extent of a chunk into the output array one
// innermost row at a time.
func scatter(out []uint32, strides, chunkLen, chunkIdx []int, chunk []uint32, chunkShape, extent []int) {
	ndim := len(extent)
	local := make([]int, ndim)
	localStrides := cStrides(chunkShape)
	outer := extent[:ndim-1]
	run := extent[ndim-1]
	for {
		src, dst := 0, 0
		for d := 0; d < ndim; d++ {
			src += local[d] * localStrides[d]
			dst += (chunkIdx[d]*chunkLen[d] + local[d]) * strides[d]
		}
		copy(out[dst:dst+run], chunk[src:src+run])
		if ndim == 1 || !next(local[:ndim-1], outer) {
			return
		}
	}
}

// chunkAt returns a decoded chunk and its stored shape. Writers may store
// edge chunks padded to the full chunk shape or truncated to the array.
func (s *Source) chunkAt(meta *arrayMeta, idx []int) ([]uint32, []int, error) {
	key := encodeChunkKey(meta, idx)
	cacheKey := meta.dir + "|" + key

	extent, err := chunkShapeAt(meta, idx)
	if err != nil {
		return nil, nil, err
	}
	full := product(meta.chunks)

	values, ok := s.chunks.Get(cacheKey)
	if !ok {
		raw, err := os.ReadFile(filepath.Join(meta.dir, filepath.FromSlash(key)))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Absent chunks hold only the fill value.
			return repeatFill(meta.fill, product(extent)), extent, nil
		case err != nil:
			return nil, nil, err
		}
		decoded, err := s.decompress(meta.codec, raw)
		if err != nil {
			return nil, nil, fmt.Errorf("chunk %s: %w", key, err)
		}
		values, err = decodeValues(decoded, meta.dtype)
		if err != nil {
			return nil, nil, fmt.Errorf("chunk %s: %w", key, err)
		}
		s.chunks.Add(cacheKey, values)
	}

	switch len(values) {
	case full:
		return values, meta.chunks, nil
	case product(extent):
		return values, extent, nil
	default:
		return nil, nil, fmt.Errorf("chunk %s has %d elements, expected %d or %d", key, len(values), full, product(extent))
	}
}

func (s *Source) decompress(codec string, raw []byte) ([]byte, error) {
	switch codec {
	case "raw":
		return raw, nil
	case "zstd":
		out, err := s.decoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress failed: %w", err)
		}
		return out, nil
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip decompress failed: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "zlib":
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("zlib decompress failed: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("unsupported codec %q", codec)
	}
}

func decodeValues(b []byte, dt dtype) ([]uint32, error) {
	if len(b)%dt.size != 0 {
		return nil, fmt.Errorf("chunk size %d is not a multiple of element size %d", len(b), dt.size)
	}
	n := len(b) / dt.size
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		e := b[i*dt.size : (i+1)*dt.size]
		var u uint64
		for j := 0; j < dt.size; j++ {
			k := j
			if dt.bigEndian {
				k = dt.size - 1 - j
			}
			u |= uint64(e[k]) << (8 * j)
		}
		if dt.signed {
			shift := 64 - 8*uint(dt.size)
			if int64(u<<shift)>>shift < 0 {
				return nil, fmt.Errorf("negative label at element %d", i)
			}
		}
		if u > math.MaxUint32 {
			return nil, fmt.Errorf("label %d at element %d exceeds 32 bits", u, i)
		}
		out[i] = uint32(u)
	}
	return out, nil
}

func encodeChunkKey(meta *arrayMeta, idx []int) string {
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.Itoa(v)
	}
	key := strings.Join(parts, meta.keySep)
	if meta.keyPrefix != "" {
		key = meta.keyPrefix + meta.keySep + key
	}
	return key
}

func chunkShapeAt(meta *arrayMeta, chunkIndices []int) ([]int, error) {
	if len(chunkIndices) != len(meta.shape) {
		return nil, fmt.Errorf("invalid chunk indices: got %d dims, expected %d", len(chunkIndices), len(meta.shape))
	}
	actual := make([]int, len(meta.shape))
	for d := range meta.shape {
		chunkLen := meta.chunks[d]
		start := chunkIndices[d] * chunkLen
		if start < 0 || start >= meta.shape[d] {
			return nil, fmt.Errorf("chunk index out of range at dim %d: start=%d shape=%d", d, start, meta.shape[d])
		}
		actual[d] = min(chunkLen, meta.shape[d]-start)
	}
	return actual, nil
}

func repeatFill(fill uint32, n int) []uint32 {
	out := make([]uint32, n)
	if fill != 0 {
		for i := range out {
			out[i] = fill
		}
	}
	return out
}

// next advances a row-major odometer and reports whether it wrapped.
func next(idx, limits []int) bool {
	for d := len(idx) - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < limits[d] {
			return true
		}
		idx[d] = 0
	}
	return false
}

func cStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = acc
		acc *= shape[d]
	}
	return strides
}

func product(ints []int) int {
	p := 1
	for _, v := range ints {
		p *= v
	}
	return p
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
