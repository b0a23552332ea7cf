package table

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
)

// arrowSource reads an Arrow IPC file (feather v2). Record batches are
// retained and addressed through cumulative row offsets.
type arrowSource struct {
	schema  *arrow.Schema
	records []arrow.Record
	offsets []int // offsets[i] is the first global row of records[i]
	rows    int
}

func openArrow(path string) (*arrowSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer f.Close()

	rdr, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("failed to open arrow file %s: %w", path, err)
	}
	defer rdr.Close()

	s := &arrowSource{schema: rdr.Schema()}
	for i := 0; i < rdr.NumRecords(); i++ {
		rec, err := rdr.Record(i)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to read record batch %d of %s: %w", i, path, err)
		}
		rec.Retain()
		s.records = append(s.records, rec)
		s.offsets = append(s.offsets, s.rows)
		s.rows += int(rec.NumRows())
	}
	return s, nil
}

func (s *arrowSource) NumRows() int { return s.rows }

func (s *arrowSource) Column(name string) (int, bool) {
	idx := s.schema.FieldIndices(name)
	if len(idx) == 0 {
		return 0, false
	}
	return idx[0], true
}

func (s *arrowSource) locate(col, row int) (arrow.Array, int) {
	b := sort.Search(len(s.offsets), func(i int) bool { return s.offsets[i] > row }) - 1
	return s.records[b].Column(col), row - s.offsets[b]
}

func (s *arrowSource) Float(col, row int) (float64, error) {
	arr, i := s.locate(col, row)
	if arr.IsNull(i) {
		return math.NaN(), nil
	}
	switch a := arr.(type) {
	case *array.Float64:
		return a.Value(i), nil
	case *array.Float32:
		return float64(a.Value(i)), nil
	case *array.Int64:
		return float64(a.Value(i)), nil
	case *array.Int32:
		return float64(a.Value(i)), nil
	case *array.Int16:
		return float64(a.Value(i)), nil
	case *array.Int8:
		return float64(a.Value(i)), nil
	case *array.Uint64:
		return float64(a.Value(i)), nil
	case *array.Uint32:
		return float64(a.Value(i)), nil
	case *array.Uint16:
		return float64(a.Value(i)), nil
	case *array.Uint8:
		return float64(a.Value(i)), nil
	case *array.Boolean:
		if a.Value(i) {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %s", arr.DataType())
	}
}

func (s *arrowSource) Text(col, row int) (string, error) {
	arr, i := s.locate(col, row)
	if arr.IsNull(i) {
		return "", nil
	}
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i), nil
	case *array.LargeString:
		return a.Value(i), nil
	case *array.Dictionary:
		if dict, ok := a.Dictionary().(*array.String); ok {
			return dict.Value(a.GetValueIndex(i)), nil
		}
	}
	return arr.ValueStr(i), nil
}

func (s *arrowSource) Bool(col, row int) (bool, error) {
	arr, i := s.locate(col, row)
	if arr.IsNull(i) {
		return false, nil
	}
	if a, ok := arr.(*array.Boolean); ok {
		return a.Value(i), nil
	}
	v, err := s.Float(col, row)
	if err != nil {
		return false, err
	}
	return v != 0 && !math.IsNaN(v), nil
}

func (s *arrowSource) Close() {
	for _, r := range s.records {
		r.Release()
	}
	s.records = nil
}
