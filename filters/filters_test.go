package filters

import (
	"bytes"
	"compress/flate"
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcodec/checksum"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/recovery"
)

func TestFlateDecodeRawDeflate(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("hello world"))
	w.Close()

	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateHeaders(t *testing.T) {
	cases := map[Level][2]byte{
		LevelFast:    {0x78, 0x01},
		LevelDefault: {0x78, 0x9C},
		LevelBest:    {0x78, 0xDA},
	}
	for level, want := range cases {
		got := Header(level)
		if got != want {
			t.Fatalf("level %s: header %x, want %x", level, got, want)
		}
		if !validHeader(got[:]) {
			t.Fatalf("level %s: header not self-valid", level)
		}
	}
}

func TestFlateRoundTripLevels(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	payload := bytes.Repeat([]byte("BT /F1 12 Tf 72 712 Td (Hello) Tj ET\n"), 200)
	noise := make([]byte, 2048)
	rng.Read(noise)
	payload = append(payload, noise...)

	var sizes []int
	for _, level := range []Level{LevelFast, LevelDefault, LevelBest} {
		enc, err := Deflate(payload, level)
		require.NoError(t, err)
		h := Header(level)
		assert.Equal(t, h[:], enc[:2])

		tail := enc[len(enc)-4:]
		sum := checksum.Checksum(payload)
		assert.Equal(t, []byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}, tail)

		rec := recovery.NewLenientStrategy()
		out, err := (&FlateCodec{Recovery: rec}).Decode(context.Background(), enc, nil)
		require.NoError(t, err)
		assert.Equal(t, payload, out)
		assert.Empty(t, rec.Events())
		sizes = append(sizes, len(enc))
	}
	assert.LessOrEqual(t, sizes[2], sizes[0])
}

func TestFlateChecksumMismatchIsRecoverable(t *testing.T) {
	payload := []byte("stream payload that will be verified")
	enc, err := Deflate(payload, LevelDefault)
	require.NoError(t, err)
	enc[len(enc)-1] ^= 0xFF

	rec := recovery.NewLenientStrategy()
	out, err := (&FlateCodec{Recovery: rec}).Decode(context.Background(), enc, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
	assert.Equal(t, 1, rec.Count(recovery.IssueChecksum))

	_, err = (&FlateCodec{Recovery: recovery.NewStrictStrategy()}).Decode(context.Background(), enc, nil)
	require.Error(t, err)
	var rerr *recovery.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, recovery.IssueChecksum, rerr.Location.Issue)
}

func TestFlateMissingChecksum(t *testing.T) {
	payload := []byte("no trailer")
	enc, err := Deflate(payload, LevelFast)
	require.NoError(t, err)

	rec := recovery.NewLenientStrategy()
	out, err := (&FlateCodec{Recovery: rec}).Decode(context.Background(), enc[:len(enc)-4], nil)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
	assert.Equal(t, 1, rec.Count(recovery.IssueChecksum))
}

func TestFlateTruncatedKeepsPrefix(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 5000)
	enc, err := Deflate(payload, LevelNone)
	require.NoError(t, err)

	rec := recovery.NewLenientStrategy()
	out, err := (&FlateCodec{Recovery: rec}).Decode(context.Background(), enc[:len(enc)/2], nil)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.True(t, bytes.HasPrefix(payload, out))
	assert.Equal(t, 1, rec.Count(recovery.IssueTruncated))
}

func TestFlateOutputLimit(t *testing.T) {
	enc, err := Deflate(make([]byte, 1<<16), LevelBest)
	require.NoError(t, err)
	_, err = (&FlateCodec{MaxOutput: 1024}).Decode(context.Background(), enc, nil)
	assert.ErrorIs(t, err, ErrLimit)
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	comp, err := Deflate([]byte{1, 10, 12, 20}, LevelFast)
	require.NoError(t, err)

	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(12))
	params.Set("Colors", raw.NumberInt(1))
	params.Set("BitsPerComponent", raw.NumberInt(8))
	params.Set("Columns", raw.NumberInt(3))

	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), comp, params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestPNGPredictorRoundTrip(t *testing.T) {
	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(12))
	params.Set("Columns", raw.NumberInt(7))

	// xref stream rows with W [1 4 2]
	data := []byte{
		1, 0, 0, 0, 15, 0, 0,
		1, 0, 0, 0, 80, 0, 0,
		2, 0, 0, 0, 9, 0, 3,
	}
	codec := &FlateCodec{Level: LevelDefault}
	enc, err := codec.Encode(context.Background(), data, params)
	require.NoError(t, err)
	out, err := codec.Decode(context.Background(), enc, params)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestPNGPredictorAllFilterTypes(t *testing.T) {
	p := predictorParams{predictor: 15, colors: 1, bpc: 8, columns: 3}
	// row 1: None, row 2: Up, row 3: Average, row 4: Paeth
	in := []byte{
		0, 10, 20, 30,
		2, 1, 1, 1,
		3, 5, 5, 5,
		4, 1, 2, 3,
	}
	out, err := pngDecode(in, p)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		10, 20, 30,
		11, 21, 31,
		10, 20, 30,
		11, 22, 33,
	}, out)
}

func TestTIFFPredictor(t *testing.T) {
	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(2))
	params.Set("Colors", raw.NumberInt(1))
	params.Set("Columns", raw.NumberInt(4))
	out, err := applyPredictor([]byte{1, 1, 1, 1, 5, 0, 0, 0}, params)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 5, 5, 5}, out)
}

func TestLZWRoundTrip(t *testing.T) {
	input := []byte("hello hello hello hello hello hello")
	for _, ec := range []int64{0, 1} {
		params := raw.Dict()
		params.Set("EarlyChange", raw.NumberInt(ec))
		codec := &LZWCodec{}
		enc, err := codec.Encode(context.Background(), input, params)
		if err != nil {
			t.Fatalf("encode (EarlyChange %d): %v", ec, err)
		}
		out, err := codec.Decode(context.Background(), enc, params)
		if err != nil {
			t.Fatalf("decode (EarlyChange %d): %v", ec, err)
		}
		if !bytes.Equal(out, input) {
			t.Fatalf("EarlyChange %d: unexpected output: %q", ec, out)
		}
	}
}

func TestRunLengthDecode(t *testing.T) {
	// literal run of 3 bytes (len=2), then repeat 'A' 2 times (len=255 => count=2), then EOD 128
	data := []byte{2, 'h', 'i', '!', 255, 'A', 128}
	dec := NewRunLengthDecoder()
	out, err := dec.Decode(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hi!AA" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunLengthRoundTrip(t *testing.T) {
	input := append(bytes.Repeat([]byte{'x'}, 300), []byte("abcdefg")...)
	enc, err := RunLengthCodec{}.Encode(context.Background(), input, nil)
	require.NoError(t, err)
	out, err := RunLengthCodec{}.Decode(context.Background(), enc, nil)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestASCII85Decode(t *testing.T) {
	dec := NewASCII85Decoder()
	out, err := dec.Decode(context.Background(), []byte("<~87cURD_*#4DfTZ)+T~>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hello, World!" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	dec := NewASCIIHexDecoder()
	out, err := dec.Decode(context.Background(), []byte("68656c6c 6f20776f\n726c64>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
	out, err = dec.Decode(context.Background(), []byte("7>"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x70}, out)
}

func TestPipelineChainRoundTrip(t *testing.T) {
	p := NewDefaultPipeline(Limits{}, nil)
	chain := []string{"ASCII85Decode", "FlateDecode"}
	input := bytes.Repeat([]byte("q 1 0 0 1 0 0 cm Q\n"), 50)

	enc, err := p.Encode(context.Background(), input, chain, nil)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(enc, []byte("~>")))

	out, err := p.Decode(context.Background(), enc, chain, nil)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestPipelineAbbreviations(t *testing.T) {
	p := NewDefaultPipeline(Limits{}, nil)
	out, err := p.Decode(context.Background(), []byte("414243>"), []string{"AHx"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ABC", string(out))
}

func TestUnsupportedFilters(t *testing.T) {
	fp := NewPipeline([]Decoder{NewFlateDecoder()}, Limits{})
	_, err := fp.Decode(context.Background(), []byte{0x00}, []string{"JBIG2Decode"}, nil)
	var ue UnsupportedError
	if err == nil || !errors.As(err, &ue) || ue.Filter != "JBIG2Decode" {
		t.Fatalf("expected unsupported error, got %v", err)
	}

	_, err = NewDefaultPipeline(Limits{}, nil).Encode(context.Background(), []byte{0}, []string{"CCITTFaxDecode"}, nil)
	require.ErrorAs(t, err, &ue)
	assert.True(t, ue.Encode)
}

func TestCCITTTwoDimensionalGroup3Unsupported(t *testing.T) {
	params := raw.Dict()
	params.Set("K", raw.NumberInt(4))
	_, err := (&CCITTFaxDecoder{}).Decode(context.Background(), []byte{0}, params)
	var ue UnsupportedError
	require.ErrorAs(t, err, &ue)
}

func TestPipelineLimit(t *testing.T) {
	enc, err := Deflate(make([]byte, 4096), LevelDefault)
	require.NoError(t, err)
	p := NewPipeline([]Decoder{NewFlateDecoder()}, Limits{MaxDecompressedSize: 100})
	_, err = p.Decode(context.Background(), enc, []string{"FlateDecode"}, nil)
	assert.ErrorIs(t, err, ErrLimit)
}

func TestPassthroughAndCrypt(t *testing.T) {
	p := NewDefaultPipeline(Limits{}, nil)
	out, err := p.Decode(context.Background(), []byte{0xFF, 0xD8}, []string{"DCTDecode"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, out)

	params := raw.Dict()
	params.Set("Name", raw.Name("StdCF"))
	_, err = p.Decode(context.Background(), []byte("x"), []string{"Crypt"}, []*raw.DictObj{params})
	assert.Error(t, err)
}

func TestExtractAndSetFilters(t *testing.T) {
	d := raw.Dict()
	parms := raw.Dict()
	parms.Set("Predictor", raw.NumberInt(12))
	SetFilters(d, []string{"ASCII85Decode", "FlateDecode"}, []*raw.DictObj{nil, parms})

	names, params := ExtractFilters(d)
	assert.Equal(t, []string{"ASCII85Decode", "FlateDecode"}, names)
	require.Len(t, params, 2)
	assert.Nil(t, params[0])
	v, _ := params[1].GetInt("Predictor")
	assert.Equal(t, int64(12), v)

	SetFilters(d, []string{"FlateDecode"}, nil)
	n, ok := d.GetName("Filter")
	assert.True(t, ok)
	assert.Equal(t, "FlateDecode", n)
	_, ok = d.Get("DecodeParms")
	assert.False(t, ok)

	inline := raw.Dict()
	inline.Set("F", raw.Name("Fl"))
	names, _ = ExtractFilters(inline)
	assert.Equal(t, []string{"FlateDecode"}, names)
}
