package labels

import "fmt"

// DataIntegrityError reports a table row that is inconsistent with the
// label image of its frame.
type DataIntegrityError struct {
	Frame  string
	Row    int
	Label  uint32
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("frame %s: row %d (label %d): %s", e.Frame, e.Row, e.Label, e.Reason)
}

// RangeError reports a value that does not fit its output encoding.
type RangeError struct {
	Frame string
	Row   int // -1 when not tied to a row
	What  string
	Value uint64
	Limit uint64
}

func (e *RangeError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("frame %s: row %d: %s %d exceeds limit %d", e.Frame, e.Row, e.What, e.Value, e.Limit)
	}
	return fmt.Sprintf("frame %s: %s %d exceeds limit %d", e.Frame, e.What, e.Value, e.Limit)
}
