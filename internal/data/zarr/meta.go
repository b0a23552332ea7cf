package zarr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ZarrV3ArrayMeta represents Zarr v3 array metadata (zarr.json).
type ZarrV3ArrayMeta struct {
	Shape     []int  `json:"shape"`
	DataType  string `json:"data_type"`
	ChunkGrid struct {
		Name          string `json:"name"`
		Configuration struct {
			ChunkShape []int `json:"chunk_shape"`
		} `json:"configuration"`
	} `json:"chunk_grid"`
	ChunkKeyEncoding struct {
		Name          string `json:"name"`
		Configuration struct {
			Separator string `json:"separator"`
		} `json:"configuration"`
	} `json:"chunk_key_encoding"`
	FillValue interface{} `json:"fill_value"`
	Codecs    []struct {
		Name          string                 `json:"name"`
		Configuration map[string]interface{} `json:"configuration"`
	} `json:"codecs"`
	Attributes map[string]json.RawMessage `json:"attributes"`
	ZarrFormat int                        `json:"zarr_format"`
	NodeType   string                     `json:"node_type"`
}

// ZarrV2ArrayMeta represents Zarr v2 array metadata (.zarray).
type ZarrV2ArrayMeta struct {
	Shape      []int       `json:"shape"`
	Chunks     []int       `json:"chunks"`
	DType      string      `json:"dtype"`
	FillValue  interface{} `json:"fill_value"`
	Order      string      `json:"order"`
	Separator  string      `json:"dimension_separator"`
	ZarrFormat int         `json:"zarr_format"`
	Compressor *struct {
		ID    string `json:"id"`
		Level int    `json:"level"`
	} `json:"compressor"`
	Filters []json.RawMessage `json:"filters"`
}

// dtype describes an integer element type.
type dtype struct {
	size      int
	signed    bool
	bigEndian bool
}

// arrayMeta is the version-independent view of an array.
type arrayMeta struct {
	dir       string
	shape     []int
	chunks    []int
	dtype     dtype
	fill      uint32
	codec     string // raw, zstd, gzip, zlib
	keyPrefix string
	keySep    string
}

type multiscalesAttrs struct {
	Multiscales []struct {
		Datasets []struct {
			Path string `json:"path"`
		} `json:"datasets"`
	} `json:"multiscales"`
	OME *struct {
		Multiscales []struct {
			Datasets []struct {
				Path string `json:"path"`
			} `json:"datasets"`
		} `json:"multiscales"`
	} `json:"ome"`
}

func (a multiscalesAttrs) firstPath() string {
	if len(a.Multiscales) > 0 && len(a.Multiscales[0].Datasets) > 0 {
		return a.Multiscales[0].Datasets[0].Path
	}
	if a.OME != nil && len(a.OME.Multiscales) > 0 && len(a.OME.Multiscales[0].Datasets) > 0 {
		return a.OME.Multiscales[0].Datasets[0].Path
	}
	return ""
}

// resolveArray finds the array directory for a store path. Groups are
// followed through OME multiscales metadata to their first (full
// resolution) dataset.
func resolveArray(dir string) (*arrayMeta, error) {
	for depth := 0; depth < 4; depth++ {
		meta, attrs, err := loadNode(dir)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			return meta, nil
		}
		next := attrs.firstPath()
		if next == "" {
			return nil, fmt.Errorf("%s is a zarr group without multiscales metadata", dir)
		}
		dir = filepath.Join(dir, next)
	}
	return nil, fmt.Errorf("too many nested groups below %s", dir)
}

// loadNode returns array metadata if dir holds an array, otherwise the
// group attributes.
func loadNode(dir string) (*arrayMeta, multiscalesAttrs, error) {
	var attrs multiscalesAttrs

	if data, err := os.ReadFile(filepath.Join(dir, "zarr.json")); err == nil {
		var meta ZarrV3ArrayMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, attrs, fmt.Errorf("failed to parse %s/zarr.json: %w", dir, err)
		}
		if meta.NodeType == "group" {
			if raw, err := json.Marshal(meta.Attributes); err == nil {
				_ = json.Unmarshal(raw, &attrs)
			}
			return nil, attrs, nil
		}
		am, err := fromV3(dir, &meta)
		return am, attrs, err
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, attrs, err
	}

	if data, err := os.ReadFile(filepath.Join(dir, ".zarray")); err == nil {
		var meta ZarrV2ArrayMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, attrs, fmt.Errorf("failed to parse %s/.zarray: %w", dir, err)
		}
		am, err := fromV2(dir, &meta)
		return am, attrs, err
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, attrs, err
	}

	data, err := os.ReadFile(filepath.Join(dir, ".zattrs"))
	if err != nil {
		return nil, attrs, fmt.Errorf("no zarr array or group at %s", dir)
	}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, attrs, fmt.Errorf("failed to parse %s/.zattrs: %w", dir, err)
	}
	return nil, attrs, nil
}

func fromV3(dir string, meta *ZarrV3ArrayMeta) (*arrayMeta, error) {
	dt, err := parseV3DataType(meta.DataType)
	if err != nil {
		return nil, err
	}
	am := &arrayMeta{
		dir:    dir,
		shape:  meta.Shape,
		chunks: meta.ChunkGrid.Configuration.ChunkShape,
		dtype:  dt,
		codec:  "raw",
	}
	for _, c := range meta.Codecs {
		switch c.Name {
		case "bytes":
			if endian, _ := c.Configuration["endian"].(string); endian == "big" {
				am.dtype.bigEndian = true
			}
		case "zstd", "gzip":
			am.codec = c.Name
		default:
			return nil, fmt.Errorf("unsupported zarr codec %q", c.Name)
		}
	}

	am.keySep = meta.ChunkKeyEncoding.Configuration.Separator
	switch meta.ChunkKeyEncoding.Name {
	case "v2":
		if am.keySep == "" {
			am.keySep = "."
		}
	default:
		am.keyPrefix = "c"
		if am.keySep == "" {
			am.keySep = "/"
		}
	}

	if am.fill, err = fillValue(meta.FillValue); err != nil {
		return nil, err
	}
	return am, am.validate()
}

func fromV2(dir string, meta *ZarrV2ArrayMeta) (*arrayMeta, error) {
	dt, err := parseV2DType(meta.DType)
	if err != nil {
		return nil, err
	}
	if meta.Order != "" && meta.Order != "C" {
		return nil, fmt.Errorf("unsupported zarr order %q", meta.Order)
	}
	if len(meta.Filters) > 0 {
		return nil, fmt.Errorf("zarr filters are not supported")
	}
	am := &arrayMeta{
		dir:    dir,
		shape:  meta.Shape,
		chunks: meta.Chunks,
		dtype:  dt,
		codec:  "raw",
		keySep: meta.Separator,
	}
	if am.keySep == "" {
		am.keySep = "."
	}
	if meta.Compressor != nil {
		switch meta.Compressor.ID {
		case "zstd", "gzip", "zlib":
			am.codec = meta.Compressor.ID
		default:
			return nil, fmt.Errorf("unsupported zarr compressor %q", meta.Compressor.ID)
		}
	}
	if am.fill, err = fillValue(meta.FillValue); err != nil {
		return nil, err
	}
	return am, am.validate()
}

func (m *arrayMeta) validate() error {
	if len(m.shape) == 0 || len(m.chunks) == 0 {
		return fmt.Errorf("invalid zarr metadata: missing shape/chunk_shape")
	}
	if len(m.shape) != len(m.chunks) {
		return fmt.Errorf("invalid zarr metadata: shape dims (%d) != chunk dims (%d)", len(m.shape), len(m.chunks))
	}
	for d, c := range m.chunks {
		if c <= 0 {
			return fmt.Errorf("invalid chunk shape at dim %d: %d", d, c)
		}
	}
	return nil
}

func parseV3DataType(s string) (dtype, error) {
	switch s {
	case "uint8":
		return dtype{size: 1}, nil
	case "int8":
		return dtype{size: 1, signed: true}, nil
	case "uint16":
		return dtype{size: 2}, nil
	case "int16":
		return dtype{size: 2, signed: true}, nil
	case "uint32":
		return dtype{size: 4}, nil
	case "int32":
		return dtype{size: 4, signed: true}, nil
	case "uint64":
		return dtype{size: 8}, nil
	case "int64":
		return dtype{size: 8, signed: true}, nil
	default:
		return dtype{}, fmt.Errorf("unsupported zarr data_type: %s", s)
	}
}

func parseV2DType(s string) (dtype, error) {
	if len(s) < 3 {
		return dtype{}, fmt.Errorf("unsupported zarr dtype: %s", s)
	}
	var dt dtype
	switch s[0] {
	case '<', '|':
	case '>':
		dt.bigEndian = true
	default:
		return dtype{}, fmt.Errorf("unsupported zarr dtype: %s", s)
	}
	switch s[1] {
	case 'u':
	case 'i':
		dt.signed = true
	default:
		return dtype{}, fmt.Errorf("unsupported zarr dtype %s: labels must be integers", s)
	}
	switch strings.TrimLeft(s[2:], "0") {
	case "1":
		dt.size = 1
	case "2":
		dt.size = 2
	case "4":
		dt.size = 4
	case "8":
		dt.size = 8
	default:
		return dtype{}, fmt.Errorf("unsupported zarr dtype: %s", s)
	}
	return dt, nil
}

func fillValue(v interface{}) (uint32, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		if t < 0 || t != float64(uint32(t)) {
			return 0, fmt.Errorf("unsupported fill_value for labels: %v", t)
		}
		return uint32(t), nil
	default:
		return 0, fmt.Errorf("unsupported fill_value type: %T", v)
	}
}
