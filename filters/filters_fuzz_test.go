package filters

import (
	"context"
	"testing"
)

func FuzzFilters(f *testing.F) {
	f.Add([]byte("some compressed data"), "FlateDecode")
	f.Add([]byte("some ascii85 data"), "ASCII85Decode")
	f.Add([]byte("some hex data"), "ASCIIHexDecode")
	f.Add([]byte{0x78, 0x9C, 0x03, 0x00}, "FlateDecode")

	f.Fuzz(func(t *testing.T, data []byte, filterName string) {
		// Limit filterName to known filters to avoid "unknown filter" errors spamming
		known := map[string]bool{
			"FlateDecode":     true,
			"ASCII85Decode":   true,
			"ASCIIHexDecode":  true,
			"RunLengthDecode": true,
			"LZWDecode":       true,
		}
		if !known[filterName] {
			return
		}

		p := NewDefaultPipeline(Limits{MaxDecompressedSize: 1024 * 1024}, nil)

		// We fuzz with empty params for now
		_, _ = p.Decode(context.Background(), data, []string{filterName}, nil)
	})
}

func FuzzFlateRoundTrip(f *testing.F) {
	f.Add([]byte("BT (Hello) Tj ET"))
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, data []byte) {
		enc, err := Deflate(data, LevelFast)
		if err != nil {
			t.Fatalf("deflate: %v", err)
		}
		out, err := (&FlateCodec{}).Decode(context.Background(), enc, nil)
		if err != nil {
			t.Fatalf("inflate: %v", err)
		}
		if string(out) != string(data) {
			t.Fatalf("round trip mismatch")
		}
	})
}
