package zarr

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/colorizer-data/colorizer/internal/frame"
)

func writeTestFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// chunkValues extracts the region of a C-order array covered by one chunk.
// When pad is set the chunk is padded to the full chunk shape with zeros.
func chunkValues(full []uint32, shape, chunks, idx []int, pad bool) []uint32 {
	extent := make([]int, len(shape))
	for d := range shape {
		extent[d] = min(chunks[d], shape[d]-idx[d]*chunks[d])
	}
	stored := extent
	if pad {
		stored = chunks
	}
	out := make([]uint32, product(stored))
	strides := cStrides(shape)
	localStrides := cStrides(stored)
	local := make([]int, len(shape))
	for {
		in := true
		src, dst := 0, 0
		for d := range local {
			if local[d] >= extent[d] {
				in = false
			}
			src += (idx[d]*chunks[d] + local[d]) * strides[d]
			dst += local[d] * localStrides[d]
		}
		if in {
			out[dst] = full[src]
		}
		if !next(local, stored) {
			return out
		}
	}
}

func TestLoadV3Zstd2D(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seg.zarr")
	shape, chunks := []int{3, 5}, []int{2, 2}
	full := make([]uint32, 15)
	for i := range full {
		full[i] = uint32(i * 1000)
	}

	writeTestFile(t, filepath.Join(dir, "zarr.json"), []byte(`{
		"zarr_format": 3, "node_type": "array", "shape": [3, 5], "data_type": "uint32",
		"chunk_grid": {"name": "regular", "configuration": {"chunk_shape": [2, 2]}},
		"chunk_key_encoding": {"name": "default", "configuration": {"separator": "/"}},
		"fill_value": 0,
		"codecs": [{"name": "bytes", "configuration": {"endian": "little"}}, {"name": "zstd", "configuration": {"level": 3}}]
	}`))

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	grid := []int{2, 3}
	idx := []int{0, 0}
	for {
		// leave chunk 1/1 absent so it reads as fill
		if !(idx[0] == 1 && idx[1] == 1) {
			vals := chunkValues(full, shape, chunks, idx, false)
			raw := make([]byte, 4*len(vals))
			for i, v := range vals {
				binary.LittleEndian.PutUint32(raw[4*i:], v)
			}
			key := encodeChunkKey(&arrayMeta{keyPrefix: "c", keySep: "/"}, idx)
			writeTestFile(t, filepath.Join(dir, key), enc.EncodeAll(raw, nil))
		}
		if !next(idx, grid) {
			break
		}
	}

	src, err := NewSource(frame.ProjectMax, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	l, err := src.Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Width != 5 || l.Height != 3 {
		t.Fatalf("size = %dx%d, want 5x3", l.Width, l.Height)
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 5; x++ {
			want := full[y*5+x]
			if y == 2 && (x == 2 || x == 3) {
				want = 0
			}
			if got := l.At(x, y); got != want {
				t.Fatalf("(%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}

	// second load is served from the chunk cache
	if _, err := src.Load(context.Background(), dir); err != nil {
		t.Fatalf("cached Load: %v", err)
	}
}

func TestLoadV2GzipOMEProjected(t *testing.T) {
	store := filepath.Join(t.TempDir(), "nuclei.zarr")
	writeTestFile(t, filepath.Join(store, ".zgroup"), []byte(`{"zarr_format": 2}`))
	writeTestFile(t, filepath.Join(store, ".zattrs"), []byte(`{"multiscales": [{"datasets": [{"path": "0"}, {"path": "1"}]}]}`))

	// T=1, Z=2, Y=2, X=3 stored as one padded chunk per z-plane
	arr := filepath.Join(store, "0")
	writeTestFile(t, filepath.Join(arr, ".zarray"), []byte(`{
		"zarr_format": 2, "shape": [1, 2, 2, 3], "chunks": [1, 1, 2, 2], "dtype": "<u2",
		"compressor": {"id": "gzip", "level": 5}, "fill_value": 0, "order": "C", "filters": null
	}`))

	shape, chunks := []int{1, 2, 2, 3}, []int{1, 1, 2, 2}
	full := []uint32{
		0, 4, 0,
		2, 0, 0,

		3, 1, 0,
		0, 0, 9,
	}
	grid := []int{1, 2, 1, 2}
	idx := []int{0, 0, 0, 0}
	for {
		vals := chunkValues(full, shape, chunks, idx, true)
		raw := make([]byte, 2*len(vals))
		for i, v := range vals {
			binary.LittleEndian.PutUint16(raw[2*i:], uint16(v))
		}
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		zw.Write(raw)
		zw.Close()
		key := encodeChunkKey(&arrayMeta{keySep: "."}, idx)
		writeTestFile(t, filepath.Join(arr, key), buf.Bytes())
		if !next(idx, grid) {
			break
		}
	}

	tests := []struct {
		mode frame.Projection
		want []uint32
	}{
		{frame.ProjectMax, []uint32{3, 4, 0, 2, 0, 9}},
		{frame.ProjectMinNonzero, []uint32{3, 1, 0, 2, 0, 9}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			src, err := NewSource(tt.mode, 0)
			if err != nil {
				t.Fatal(err)
			}
			defer src.Close()
			l, err := src.Load(context.Background(), store)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if l.Width != 3 || l.Height != 2 {
				t.Fatalf("size = %dx%d", l.Width, l.Height)
			}
			for i := range tt.want {
				if l.Pix[i] != tt.want[i] {
					t.Fatalf("pix = %v, want %v", l.Pix, tt.want)
				}
			}
		})
	}

	t.Run("explicit sub path", func(t *testing.T) {
		src, err := NewSource(frame.ProjectMax, 0)
		if err != nil {
			t.Fatal(err)
		}
		defer src.Close()
		if _, err := src.Load(context.Background(), store+"#0"); err != nil {
			t.Fatalf("Load: %v", err)
		}
	})
}

func TestUnsupportedMetadata(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bad.zarr")
	writeTestFile(t, filepath.Join(dir, ".zarray"), []byte(`{
		"zarr_format": 2, "shape": [2, 2], "chunks": [2, 2], "dtype": "<f4", "compressor": null
	}`))
	src, err := NewSource(frame.ProjectMax, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	_, err = src.Load(context.Background(), dir)
	if err == nil || !strings.Contains(err.Error(), "integers") {
		t.Fatalf("err = %v, want integer dtype error", err)
	}

	writeTestFile(t, filepath.Join(dir, ".zarray"), []byte(`{
		"zarr_format": 2, "shape": [2, 2], "chunks": [2, 2], "dtype": "<u1", "compressor": {"id": "blosc"}
	}`))
	if _, err := src.Load(context.Background(), dir); err == nil || !strings.Contains(err.Error(), "blosc") {
		t.Fatalf("err = %v, want blosc error", err)
	}
}

func TestIsZarrPath(t *testing.T) {
	for p, want := range map[string]bool{
		"a/seg.zarr":    true,
		"a/seg.zarr/":   true,
		"a/seg.zarr#0":  true,
		"a/seg.png":     false,
		"a/seg.ome.tif": false,
	} {
		if got := IsZarrPath(p); got != want {
			t.Fatalf("IsZarrPath(%q) = %v, want %v", p, got, want)
		}
	}
}
