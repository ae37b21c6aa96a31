package filters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/security"
)

// Decoder reverses one named filter.
type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params *raw.DictObj) ([]byte, error)
}

// Encoder applies one named filter.
type Encoder interface {
	Name() string
	Encode(ctx context.Context, input []byte, params *raw.DictObj) ([]byte, error)
}

// Codec is a filter that can be applied and reversed.
type Codec interface {
	Decoder
	Encoder
}

// ErrLimit is returned when decoded output grows beyond Limits.MaxDecompressedSize.
var ErrLimit = errors.New("decompressed size exceeds limit")

// UnsupportedError reports a filter name the pipeline has no codec for.
type UnsupportedError struct {
	Filter string
	Encode bool
}

func (e UnsupportedError) Error() string {
	if e.Encode {
		return "no encoder for filter: " + e.Filter
	}
	return "unknown filter: " + e.Filter
}

type Pipeline struct {
	decoders []Decoder
	encoders []Encoder
	limits   Limits
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	return &Pipeline{decoders: decoders, limits: limits}
}

// WithEncoders registers encoders and returns p.
func (p *Pipeline) WithEncoders(encoders ...Encoder) *Pipeline {
	p.encoders = append(p.encoders, encoders...)
	return p
}

type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

// LimitsFrom narrows the process-wide security limits to what filters enforce.
func LimitsFrom(l security.Limits) Limits {
	return Limits{MaxDecompressedSize: l.MaxDecompressedSize, MaxDecodeTime: l.MaxDecodeTime}
}

// NewDefaultPipeline returns a pipeline carrying every built-in filter.
// Integrity defects in Flate data are routed through rec.
func NewDefaultPipeline(limits Limits, rec recovery.Strategy) *Pipeline {
	flate := &FlateCodec{Level: LevelDefault, Recovery: rec, MaxOutput: limits.MaxDecompressedSize}
	lzw := &LZWCodec{MaxOutput: limits.MaxDecompressedSize}
	hex := ASCIIHexCodec{}
	a85 := ASCII85Codec{}
	rl := RunLengthCodec{}
	p := NewPipeline([]Decoder{
		flate, lzw, hex, a85, rl,
		&CCITTFaxDecoder{MaxOutput: limits.MaxDecompressedSize},
		Passthrough("DCTDecode"),
		Passthrough("JPXDecode"),
		Passthrough("JBIG2Decode"),
		CryptIdentity{},
	}, limits)
	return p.WithEncoders(flate, lzw, hex, a85, rl, Passthrough("DCTDecode"), Passthrough("JPXDecode"))
}

// abbreviations permitted in inline images
var abbreviations = map[string]string{
	"AHx": "ASCIIHexDecode",
	"A85": "ASCII85Decode",
	"LZW": "LZWDecode",
	"Fl":  "FlateDecode",
	"RL":  "RunLengthDecode",
	"CCF": "CCITTFaxDecode",
	"DCT": "DCTDecode",
}

// CanonicalName expands inline-image filter abbreviations.
func CanonicalName(name string) string {
	if full, ok := abbreviations[name]; ok {
		return full
	}
	return name
}

func (p *Pipeline) findDecoder(name string) Decoder {
	name = CanonicalName(name)
	for _, d := range p.decoders {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

func (p *Pipeline) findEncoder(name string) Encoder {
	name = CanonicalName(name)
	for _, e := range p.encoders {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

// Has reports whether name can be decoded.
func (p *Pipeline) Has(name string) bool { return p.findDecoder(name) != nil }

// Decode applies the filters in declared order.
func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []*raw.DictObj) ([]byte, error) {
	if p.limits.MaxDecodeTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limits.MaxDecodeTime)
		defer cancel()
	}
	data := input
	for i, name := range filterNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dec := p.findDecoder(name)
		if dec == nil {
			return nil, UnsupportedError{Filter: name}
		}
		var param *raw.DictObj
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dec.Name(), err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, ErrLimit
		}
		data = out
	}
	return data, nil
}

// Encode is the inverse of Decode: filters are applied last to first, so that
// decoding the result with the same chain yields input.
func (p *Pipeline) Encode(ctx context.Context, input []byte, filterNames []string, params []*raw.DictObj) ([]byte, error) {
	data := input
	for i := len(filterNames) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		enc := p.findEncoder(filterNames[i])
		if enc == nil {
			return nil, UnsupportedError{Filter: filterNames[i], Encode: true}
		}
		var param *raw.DictObj
		if i < len(params) {
			param = params[i]
		}
		out, err := enc.Encode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", enc.Name(), err)
		}
		data = out
	}
	return data, nil
}

type Registry struct{ decoders map[string]Decoder }

func (r *Registry) Register(d Decoder) {
	if r.decoders == nil {
		r.decoders = make(map[string]Decoder)
	}
	r.decoders[d.Name()] = d
}
func (r *Registry) Get(name string) (Decoder, bool) { d, ok := r.decoders[name]; return d, ok }

// Pipeline builds a pipeline from the registered decoders.
func (r *Registry) Pipeline(limits Limits) *Pipeline {
	decs := make([]Decoder, 0, len(r.decoders))
	for _, d := range r.decoders {
		decs = append(decs, d)
	}
	return NewPipeline(decs, limits)
}

// Passthrough returns a codec that leaves bytes untouched. Image codecs whose
// output is consumed by renderers, not by this engine, use it.
func Passthrough(name string) Codec { return passthrough(name) }

type passthrough string

func (p passthrough) Name() string { return string(p) }
func (passthrough) Decode(_ context.Context, in []byte, _ *raw.DictObj) ([]byte, error) {
	return in, nil
}
func (passthrough) Encode(_ context.Context, in []byte, _ *raw.DictObj) ([]byte, error) {
	return in, nil
}

// CryptIdentity handles /Crypt with the Identity crypt filter. Any other
// crypt filter belongs to the security handler.
type CryptIdentity struct{}

func (CryptIdentity) Name() string { return "Crypt" }
func (CryptIdentity) Decode(_ context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	if name, ok := params.GetName("Name"); ok && name != "Identity" {
		return nil, UnsupportedError{Filter: "Crypt/" + name}
	}
	return in, nil
}

func intParam(d *raw.DictObj, key string, def int) int {
	if v, ok := d.GetInt(key); ok {
		return int(v)
	}
	return def
}

func boolParam(d *raw.DictObj, key string, def bool) bool {
	v, ok := d.Get(key)
	if !ok {
		return def
	}
	b, ok := v.(raw.BoolObj)
	if !ok {
		return def
	}
	return b.V
}
