package filters

import (
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfcodec/ir/raw"
)

func TestFaxBitmapSize(t *testing.T) {
	n, err := faxBitmapSize(1728, 100, 0)
	if err != nil {
		t.Fatalf("expected valid bounds, got %v", err)
	}
	if n != 216*100 {
		t.Fatalf("size = %d, want %d", n, 216*100)
	}
	if _, err := faxBitmapSize(0, 10, 0); err == nil {
		t.Fatalf("expected error for zero columns")
	}
	if _, err := faxBitmapSize(maxFaxColumns+1, 4, 0); err == nil {
		t.Fatalf("expected column limit error")
	}
	if _, err := faxBitmapSize(8, 1000, 999); !errors.Is(err, ErrLimit) {
		t.Fatalf("expected ErrLimit, got %v", err)
	}
}

func TestCCITTRefusesOversizedBitmap(t *testing.T) {
	params := raw.Dict()
	params.Set("K", raw.NumberInt(-1))
	params.Set("Columns", raw.NumberInt(8000))
	params.Set("Rows", raw.NumberInt(8000))
	_, err := (&CCITTFaxDecoder{MaxOutput: 1 << 20}).Decode(context.Background(), []byte{0}, params)
	if !errors.Is(err, ErrLimit) {
		t.Fatalf("expected ErrLimit, got %v", err)
	}
}
