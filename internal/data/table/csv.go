package table

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

type csvSource struct {
	header map[string]int
	rows   [][]string
}

func openCSV(path string) (*csvSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv %s has no header", path)
	}

	header := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := header[name]; !dup {
			header[name] = i
		}
	}
	return &csvSource{header: header, rows: records[1:]}, nil
}

func (s *csvSource) NumRows() int { return len(s.rows) }

func (s *csvSource) Column(name string) (int, bool) {
	i, ok := s.header[name]
	return i, ok
}

func (s *csvSource) cell(col, row int) string {
	rec := s.rows[row]
	if col >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[col])
}

func (s *csvSource) Float(col, row int) (float64, error) {
	v := s.cell(col, row)
	if v == "" {
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", v)
	}
	return f, nil
}

func (s *csvSource) Text(col, row int) (string, error) {
	return s.cell(col, row), nil
}

func (s *csvSource) Bool(col, row int) (bool, error) {
	v := s.cell(col, row)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		// pandas writes booleans as True/False, numpy sometimes as 1.0/0.0
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil {
			return false, fmt.Errorf("invalid boolean %q", v)
		}
		return f != 0 && !math.IsNaN(f), nil
	}
	return b, nil
}

func (s *csvSource) Close() {}
