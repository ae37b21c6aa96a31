package filters

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/image/ccitt"

	"github.com/wudi/pdfcodec/ir/raw"
)

// CCITTFaxDecoder decodes Group 3 one-dimensional (K = 0) and Group 4 (K < 0)
// fax data. Mixed two-dimensional Group 3 (K > 0) is not supported.
type CCITTFaxDecoder struct {
	// MaxOutput bounds the bitmap a declared Columns x Rows may need. Zero means unlimited.
	MaxOutput int64
}

func (*CCITTFaxDecoder) Name() string { return "CCITTFaxDecode" }

func (c *CCITTFaxDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	k := intParam(params, "K", 0)
	if k > 0 {
		return nil, UnsupportedError{Filter: "CCITTFaxDecode/K>0"}
	}
	cols := intParam(params, "Columns", 1728)
	rows := intParam(params, "Rows", 0)
	if _, err := faxBitmapSize(cols, max(rows, 0), c.MaxOutput); err != nil {
		return nil, err
	}
	height := rows
	if rows <= 0 {
		height = ccitt.AutoDetectHeight
	}

	opts := &ccitt.Options{
		Invert: boolParam(params, "BlackIs1", false),
		Align:  boolParam(params, "EncodedByteAlign", false),
	}
	mode := ccitt.Group3
	if k < 0 {
		mode = ccitt.Group4
	}
	rd := ccitt.NewReader(bytes.NewReader(in), ccitt.MSB, mode, cols, height, opts)

	var out bytes.Buffer
	if _, err := copyContext(ctx, &out, rd); err != nil {
		return nil, fmt.Errorf("ccitt: %w", err)
	}
	return out.Bytes(), nil
}
