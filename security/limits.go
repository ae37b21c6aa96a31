package security

import "time"

// Limits defines security boundaries for parsing and processing PDFs.
// These limits help prevent resource exhaustion attacks (e.g., zip bombs, stack overflows).
type Limits struct {
	// Maximum decompressed stream size (prevent zip bombs). Default: 100 MB.
	MaxDecompressedSize int64 `validate:"gte=0"`

	// Maximum indirect reference depth (prevent stack overflow). Default: 100.
	MaxIndirectDepth int `validate:"gte=0"`

	// Maximum XRef chain depth (Prev entries). Default: 50.
	MaxXRefDepth int `validate:"gte=0"`

	// Maximum nesting of arrays and dictionaries. Default: 256.
	MaxNestingDepth int `validate:"gte=0"`

	// Maximum array size (number of elements). Default: 100,000.
	MaxArraySize int `validate:"gte=0"`

	// Maximum dictionary size (number of entries). Default: 10,000.
	MaxDictSize int `validate:"gte=0"`

	// Maximum string length (bytes). Default: 10 MB.
	MaxStringLength int64 `validate:"gte=0"`

	// Maximum raw stream length (bytes). Default: 50 MB.
	MaxStreamLength int64 `validate:"gte=0"`

	// Maximum objects in one object stream. Default: 100,000.
	MaxObjectStreamCount int `validate:"gte=0"`

	// Maximum decode time per stream. Default: 30s.
	MaxDecodeTime time.Duration `validate:"gte=0"`

	// Maximum total parse time. Default: 5m.
	MaxParseTime time.Duration `validate:"gte=0"`
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize:  100 * 1024 * 1024, // 100 MB
		MaxIndirectDepth:     100,
		MaxXRefDepth:         50,
		MaxNestingDepth:      256,
		MaxArraySize:         100000,
		MaxDictSize:          10000,
		MaxStringLength:      10 * 1024 * 1024, // 10 MB
		MaxStreamLength:      50 * 1024 * 1024, // 50 MB
		MaxObjectStreamCount: 100000,
		MaxDecodeTime:        30 * time.Second,
		MaxParseTime:         5 * time.Minute,
	}
}

// Zero values mean "unlimited"; these helpers apply that rule.

func (l Limits) ExceedsString(n int64) bool { return l.MaxStringLength > 0 && n > l.MaxStringLength }
func (l Limits) ExceedsStream(n int64) bool { return l.MaxStreamLength > 0 && n > l.MaxStreamLength }
func (l Limits) ExceedsDecoded(n int64) bool {
	return l.MaxDecompressedSize > 0 && n > l.MaxDecompressedSize
}
func (l Limits) ExceedsXRefDepth(n int) bool { return l.MaxXRefDepth > 0 && n > l.MaxXRefDepth }
func (l Limits) ExceedsNesting(n int) bool   { return l.MaxNestingDepth > 0 && n > l.MaxNestingDepth }
