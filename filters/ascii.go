package filters

import (
	"bytes"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"

	"github.com/wudi/pdfcodec/ir/raw"
)

type ASCII85Codec struct{}

func NewASCII85Decoder() Decoder { return ASCII85Codec{} }

func (ASCII85Codec) Name() string { return "ASCII85Decode" }
func (ASCII85Codec) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)*4+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func (ASCII85Codec) Encode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	out := make([]byte, stdascii85.MaxEncodedLen(len(in)), stdascii85.MaxEncodedLen(len(in))+2)
	n := stdascii85.Encode(out, in)
	return append(out[:n], '~', '>'), nil
}

type ASCIIHexCodec struct{}

func NewASCIIHexDecoder() Decoder { return ASCIIHexCodec{} }

func (ASCIIHexCodec) Name() string { return "ASCIIHexDecode" }
func (ASCIIHexCodec) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	if i := bytes.IndexByte(in, '>'); i >= 0 {
		in = in[:i]
	}
	digits := make([]byte, 0, len(in))
	for _, c := range in {
		if raw.IsWhitespace(c) {
			continue
		}
		digits = append(digits, c)
	}
	// an odd final digit is padded with 0
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	result := make([]byte, hex.DecodedLen(len(digits)))
	n, err := hex.Decode(result, digits)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}

func (ASCIIHexCodec) Encode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(in)), hex.EncodedLen(len(in))+1)
	hex.Encode(out, in)
	return append(out, '>'), nil
}

type RunLengthCodec struct{}

func NewRunLengthDecoder() Decoder { return RunLengthCodec{} }

var errRunLength = errors.New("run length data truncated")

func (RunLengthCodec) Name() string { return "RunLengthDecode" }
func (RunLengthCodec) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(in); {
		n := int(in[i])
		i++
		switch {
		case n == 128:
			return out.Bytes(), nil
		case n < 128:
			if i+n+1 > len(in) {
				return nil, errRunLength
			}
			out.Write(in[i : i+n+1])
			i += n + 1
		default:
			if i >= len(in) {
				return nil, errRunLength
			}
			for j := 0; j < 257-n; j++ {
				out.WriteByte(in[i])
			}
			i++
		}
	}
	return out.Bytes(), nil
}

func (RunLengthCodec) Encode(ctx context.Context, data []byte, params *raw.DictObj) ([]byte, error) {
	var buf bytes.Buffer
	for i := 0; i < len(data); {
		// Run
		runLen := 1
		for i+runLen < len(data) && runLen < 128 && data[i+runLen] == data[i] {
			runLen++
		}
		if runLen > 1 {
			buf.WriteByte(byte(257 - runLen))
			buf.WriteByte(data[i])
			i += runLen
			continue
		}
		// Literal
		litLen := 1
		for i+litLen < len(data) && litLen < 128 && (i+litLen+1 >= len(data) || data[i+litLen] != data[i+litLen+1]) {
			litLen++
		}
		buf.WriteByte(byte(litLen - 1))
		buf.Write(data[i : i+litLen])
		i += litLen
	}
	buf.WriteByte(128) // EOD
	return buf.Bytes(), nil
}
