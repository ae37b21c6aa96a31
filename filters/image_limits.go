package filters

import "fmt"

// maxFaxColumns caps the row width a fax stream may declare.
const maxFaxColumns = 1 << 15

// faxBitmapSize returns the packed size of a one-bit cols x rows bitmap and
// refuses it when it would exceed max. Zero max means unlimited.
func faxBitmapSize(cols, rows int, max int64) (int64, error) {
	if cols <= 0 || cols > maxFaxColumns {
		return 0, fmt.Errorf("ccitt: invalid Columns %d", cols)
	}
	if rows < 0 {
		return 0, fmt.Errorf("ccitt: invalid Rows %d", rows)
	}
	size := int64((cols+7)/8) * int64(rows)
	if max > 0 && size > max {
		return 0, fmt.Errorf("ccitt: %dx%d bitmap needs %d bytes: %w", cols, rows, size, ErrLimit)
	}
	return size, nil
}
