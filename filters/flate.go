package filters

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfcodec/checksum"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/recovery"
)

// Level selects the compression effort for FlateDecode output.
type Level int

const (
	LevelDefault Level = iota
	LevelFast
	LevelBest
	LevelNone
)

func (l Level) flate() int {
	switch l {
	case LevelFast:
		return flate.BestSpeed
	case LevelBest:
		return flate.BestCompression
	case LevelNone:
		return flate.NoCompression
	}
	return flate.DefaultCompression
}

// flevel is the 2-bit compression-level hint stored in the zlib header.
func (l Level) flevel() byte {
	switch l {
	case LevelFast, LevelNone:
		return 0
	case LevelBest:
		return 3
	}
	return 2
}

func (l Level) String() string {
	switch l {
	case LevelFast:
		return "fast"
	case LevelBest:
		return "best"
	case LevelNone:
		return "none"
	}
	return "default"
}

// ParseLevel maps "fast", "default", "best" and "none" to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "", "default":
		return LevelDefault, nil
	case "fast":
		return LevelFast, nil
	case "best":
		return LevelBest, nil
	case "none":
		return LevelNone, nil
	}
	return LevelDefault, fmt.Errorf("unknown flate level %q", s)
}

const (
	zlibDeflate    = 8
	zlibMaxWindow  = 7
	zlibPresetDict = 0x20
)

var ErrPresetDictionary = errors.New("zlib preset dictionary not supported")

// FlateCodec implements FlateDecode with zlib framing: a two-byte header
// identifying the window size and a trailing checksum of the uncompressed payload.
type FlateCodec struct {
	Level     Level
	Recovery  recovery.Strategy
	MaxOutput int64
}

func NewFlateDecoder() Decoder { return &FlateCodec{} }

func (*FlateCodec) Name() string { return "FlateDecode" }

// Header returns the zlib header for level l.
func Header(l Level) [2]byte {
	cmf := byte(zlibMaxWindow<<4 | zlibDeflate)
	flg := l.flevel() << 6
	flg += byte(31 - (uint16(cmf)<<8|uint16(flg))%31)
	return [2]byte{cmf, flg}
}

// validHeader reports whether b starts with a zlib header.
func validHeader(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	if b[0]&0x0F != zlibDeflate || b[0]>>4 > zlibMaxWindow {
		return false
	}
	return (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}

func (c *FlateCodec) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	body := in
	framed := validHeader(in)
	if framed {
		if in[1]&zlibPresetDict != 0 {
			return nil, ErrPresetDictionary
		}
		body = in[2:]
	} else if len(in) > 0 {
		if err := c.report(ctx, recovery.IssueFilter, errors.New("flate data without zlib header")); err != nil {
			return nil, err
		}
	}

	br := bytes.NewReader(body)
	fr := flate.NewReader(br)
	defer fr.Close()

	var out bytes.Buffer
	var src io.Reader = fr
	if c.MaxOutput > 0 {
		src = io.LimitReader(fr, c.MaxOutput+1)
	}
	_, err := copyContext(ctx, &out, src)
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF):
		if rerr := c.report(ctx, recovery.IssueTruncated, fmt.Errorf("flate stream truncated after %d bytes", out.Len())); rerr != nil {
			return nil, rerr
		}
		framed = false
	case isCorrupt(err) && out.Len() > 0:
		if rerr := c.report(ctx, recovery.IssueFilter, err); rerr != nil {
			return nil, rerr
		}
		framed = false
	default:
		return nil, err
	}
	if c.MaxOutput > 0 && int64(out.Len()) > c.MaxOutput {
		return nil, ErrLimit
	}

	if framed {
		if err := c.verify(ctx, out.Bytes(), br); err != nil {
			return nil, err
		}
	}
	return applyPredictor(out.Bytes(), params)
}

// verify compares the trailing checksum with the decoded payload. A missing or
// mismatched checksum is an integrity issue, not a decode failure.
func (c *FlateCodec) verify(ctx context.Context, data []byte, rest *bytes.Reader) error {
	var trailer [checksum.Size]byte
	if n, _ := io.ReadFull(rest, trailer[:]); n < checksum.Size {
		return c.report(ctx, recovery.IssueChecksum, errors.New("flate checksum missing"))
	}
	want := binary.BigEndian.Uint32(trailer[:])
	if got := checksum.Checksum(data); got != want {
		return c.report(ctx, recovery.IssueChecksum, fmt.Errorf("flate checksum mismatch: stored %08x, computed %08x", want, got))
	}
	return nil
}

func (c *FlateCodec) report(ctx context.Context, issue recovery.Issue, err error) error {
	return recovery.Report(ctx, c.Recovery, err, recovery.Location{Component: "filters", Issue: issue})
}

func (c *FlateCodec) Encode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	data, err := encodePredictor(in, params)
	if err != nil {
		return nil, err
	}
	return Deflate(data, c.Level)
}

// Deflate compresses data with zlib framing at level l.
func Deflate(data []byte, l Level) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data)/2 + 16)
	h := Header(l)
	buf.Write(h[:])
	w, err := flate.NewWriter(&buf, l.flate())
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	var sum [checksum.Size]byte
	binary.BigEndian.PutUint32(sum[:], checksum.Checksum(data))
	buf.Write(sum[:])
	return buf.Bytes(), nil
}

func isCorrupt(err error) bool {
	var ce flate.CorruptInputError
	return errors.As(err, &ce)
}

// copyContext copies in chunks so long decodes observe cancellation.
func copyContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
