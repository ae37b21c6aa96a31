package filters

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/hhrutter/lzw"

	"github.com/wudi/pdfcodec/ir/raw"
)

// LZWCodec implements LZWDecode. EarlyChange defaults to 1.
type LZWCodec struct {
	MaxOutput int64
}

func NewLZWDecoder() Decoder { return &LZWCodec{} }

func (*LZWCodec) Name() string { return "LZWDecode" }

func earlyChange(params *raw.DictObj) bool { return intParam(params, "EarlyChange", 1) == 1 }

func (c *LZWCodec) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	rc := lzw.NewReader(bytes.NewReader(in), earlyChange(params))
	defer rc.Close()

	var src io.Reader = rc
	if c.MaxOutput > 0 {
		src = io.LimitReader(rc, c.MaxOutput+1)
	}
	var out bytes.Buffer
	if _, err := copyContext(ctx, &out, src); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	if c.MaxOutput > 0 && int64(out.Len()) > c.MaxOutput {
		return nil, ErrLimit
	}
	return applyPredictor(out.Bytes(), params)
}

func (c *LZWCodec) Encode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	data, err := encodePredictor(in, params)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	wc := lzw.NewWriter(&buf, earlyChange(params))
	if _, err := wc.Write(data); err != nil {
		return nil, err
	}
	if err := wc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
