package writer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"

	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/xref"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF15 PDFVersion = "1.5"
	PDF17 PDFVersion = "1.7"
	PDF20 PDFVersion = "2.0"
)

// AtLeast compares dotted versions numerically. An empty version is 1.7.
func (v PDFVersion) AtLeast(o PDFVersion) bool {
	a, b := parseVersion(v), parseVersion(o)
	if a[0] != b[0] {
		return a[0] > b[0]
	}
	return a[1] >= b[1]
}

func parseVersion(v PDFVersion) [2]int {
	if v == "" {
		v = PDF17
	}
	var major, minor int
	fmt.Sscanf(string(v), "%d.%d", &major, &minor)
	return [2]int{major, minor}
}

// Compression is the document-level override of object stream packing.
type Compression int

const (
	// CompressionDefault packs objects when Config.ObjectStreams is set.
	CompressionDefault Compression = iota
	CompressionUncompressed
	CompressionCompressed
)

// ColorMode restricts the device color operators content may use.
type ColorMode int

const (
	ColorUndefined ColorMode = iota
	ColorRGB
	ColorCMYK
)

func (m ColorMode) String() string {
	switch m {
	case ColorRGB:
		return "rgb"
	case ColorCMYK:
		return "cmyk"
	}
	return "undefined"
}

func ParseColorMode(s string) (ColorMode, error) {
	switch s {
	case "", "undefined":
		return ColorUndefined, nil
	case "rgb":
		return ColorRGB, nil
	case "cmyk":
		return ColorCMYK, nil
	}
	return 0, fmt.Errorf("unknown color mode %q", s)
}

func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "default":
		return CompressionDefault, nil
	case "uncompressed":
		return CompressionUncompressed, nil
	case "compressed":
		return CompressionCompressed, nil
	}
	return 0, fmt.Errorf("unknown compression mode %q", s)
}

var (
	// ErrEncrypted refuses a full rewrite of a document whose trailer has /Encrypt.
	ErrEncrypted = errors.New("writer: encrypted document cannot be fully rewritten")
	// ErrNestedStream reports a stream stored inside an array or dictionary.
	ErrNestedStream = errors.New("writer: stream must be an indirect object")
	// ErrColorMode reports content that uses a color model the configuration forbids.
	ErrColorMode = errors.New("writer: color operator not allowed by color mode")
	ErrInvalidRef = errors.New("writer: invalid object number")
	// ErrNonFinite reports an infinite or NaN real, which has no PDF syntax.
	ErrNonFinite = errors.New("writer: real number is not finite")
)

type Config struct {
	Version    PDFVersion    `validate:"omitempty,oneof=1.0 1.1 1.2 1.3 1.4 1.5 1.6 1.7 2.0"`
	FlateLevel filters.Level `validate:"min=0,max=3"`
	// CompressStreams flates streams that carry no filter.
	CompressStreams bool
	Compression     Compression `validate:"min=0,max=2"`
	ColorMode       ColorMode   `validate:"min=0,max=2"`
	// FaxBilevel keeps bilevel images in CCITT fax form. When off and
	// CompressStreams is set, they are decoded and re-stored with Flate.
	FaxBilevel    bool
	FlateWrapJPEG bool
	XRefStreams   bool
	ObjectStreams bool
	// Deterministic derives /ID from the content so equal graphs give equal bytes.
	Deterministic       bool
	Deduplicate         bool
	ParallelCompression bool
	// Workers bounds ParallelCompression; zero means GOMAXPROCS.
	Workers int `validate:"min=0"`

	Logger observability.Logger `validate:"-"`
	Tracer observability.Tracer `validate:"-"`
}

func DefaultConfig() Config {
	return Config{
		Version:         PDF17,
		FlateLevel:      filters.LevelDefault,
		CompressStreams: true,
		FaxBilevel:      true,
	}
}

// Validate checks field ranges and the combinations the file format allows.
func (cfg Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	// object streams imply a cross-reference stream
	if cfg.xrefStreams() && !cfg.Version.AtLeast(PDF15) {
		return fmt.Errorf("cross-reference streams need PDF 1.5, have %s", cfg.Version)
	}
	return nil
}

func (cfg Config) packObjects() bool {
	switch cfg.Compression {
	case CompressionCompressed:
		return true
	case CompressionUncompressed:
		return false
	}
	return cfg.ObjectStreams
}

func (cfg Config) xrefStreams() bool { return cfg.XRefStreams || cfg.packObjects() }

func (cfg Config) withDefaults() Config {
	if cfg.Version == "" {
		cfg.Version = PDF17
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	return cfg
}

// Base describes the file an incremental update is appended to.
type Base struct {
	Source io.ReaderAt
	Size   int64
	// StartXRef is the offset of the newest section; it becomes /Prev.
	StartXRef  int64
	XRefStream bool
	// Entries restates the complete location map when the original chain was
	// repaired. The new section then stands alone and carries no /Prev.
	Entries map[int]xref.Entry
}

type Writer interface {
	// Write produces a complete file holding every object of g.
	Write(ctx context.Context, g *Graph, out io.Writer, cfg Config) error
	// Append copies base unchanged and adds one section holding the objects
	// g marks as changed or deleted.
	Append(ctx context.Context, g *Graph, base Base, out io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

type Interceptor interface {
	BeforeWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object) error
	AfterWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object, bytesWritten int64) error
}

type WriterBuilder struct{ interceptors []Interceptor }

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}
func (b *WriterBuilder) Build() Writer { return &impl{interceptors: b.interceptors} }

// New returns a writer without interceptors.
func New() Writer { return (&WriterBuilder{}).Build() }
