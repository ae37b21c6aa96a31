package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/scanner"
	"github.com/wudi/pdfcodec/security"
)

// ErrNotFound reports an object with no in-use location. It is a lookup miss,
// not a sign of corruption.
var ErrNotFound = errors.New("object not found")

// Location is where a cross-reference section says an object lives: either at
// a byte offset or at an index inside an object stream.
type Location struct {
	Offset     int64
	Gen        int
	Compressed bool
	StreamNum  int
	Index      int
}

// Locator maps object numbers to their current location.
type Locator interface {
	Locate(num int) (Location, bool)
}

type Cache interface {
	Get(ref raw.ObjectRef) (raw.Object, bool)
	Put(ref raw.ObjectRef, obj raw.Object)
}

type ObjectLoader interface {
	Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
	// Resolve follows references until a direct value is reached.
	Resolve(ctx context.Context, obj raw.Object) (raw.Object, error)
}

type ObjectLoaderBuilder struct {
	reader  io.ReaderAt
	locator Locator
	cfg     Config
	cache   Cache
	filters *filters.Pipeline
}

func NewObjectLoaderBuilder() *ObjectLoaderBuilder { return &ObjectLoaderBuilder{} }

func (b *ObjectLoaderBuilder) WithReader(r io.ReaderAt) *ObjectLoaderBuilder {
	b.reader = r
	return b
}
func (b *ObjectLoaderBuilder) WithLocator(l Locator) *ObjectLoaderBuilder {
	b.locator = l
	return b
}
func (b *ObjectLoaderBuilder) WithConfig(cfg Config) *ObjectLoaderBuilder {
	b.cfg = cfg
	return b
}
func (b *ObjectLoaderBuilder) WithCache(c Cache) *ObjectLoaderBuilder { b.cache = c; return b }

// WithFilters sets the pipeline used to decode object streams.
func (b *ObjectLoaderBuilder) WithFilters(p *filters.Pipeline) *ObjectLoaderBuilder {
	b.filters = p
	return b
}

func (b *ObjectLoaderBuilder) Build() (ObjectLoader, error) {
	if b.reader == nil || b.locator == nil {
		return nil, errors.New("reader and locator required")
	}
	cfg := b.cfg
	if cfg.Limits == (security.Limits{}) {
		cfg.Limits = security.DefaultLimits()
	}
	pipe := b.filters
	if pipe == nil {
		pipe = filters.NewDefaultPipeline(filters.LimitsFrom(cfg.Limits), cfg.Recovery)
	}
	return &objectLoader{
		reader:    b.reader,
		locator:   b.locator,
		cfg:       cfg,
		cache:     b.cache,
		filters:   pipe,
		objstm:    make(map[int]*objectStream),
		resolving: make(map[int]bool),
	}, nil
}

type objectLoader struct {
	reader    io.ReaderAt
	locator   Locator
	cfg       Config
	cache     Cache
	filters   *filters.Pipeline
	mu        sync.Mutex
	objstm    map[int]*objectStream
	resolving map[int]bool
}

func (o *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	if o.cache != nil {
		if obj, ok := o.cache.Get(ref); ok {
			return obj, nil
		}
	}

	o.mu.Lock()
	obj, err := o.load(ctx, ref)
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if o.cache != nil {
		o.cache.Put(ref, obj)
	}
	return obj, nil
}

func (o *objectLoader) Resolve(ctx context.Context, obj raw.Object) (raw.Object, error) {
	for depth := 0; ; depth++ {
		r, ok := obj.(raw.RefObj)
		if !ok {
			return obj, nil
		}
		if o.cfg.Limits.MaxIndirectDepth > 0 && depth >= o.cfg.Limits.MaxIndirectDepth {
			return nil, fmt.Errorf("reference chain deeper than %d at %s", o.cfg.Limits.MaxIndirectDepth, r.R)
		}
		next, err := o.Load(ctx, r.R)
		if err != nil {
			return nil, err
		}
		obj = next
	}
}

// load assumes the caller holds the loader mutex.
func (o *objectLoader) load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc, ok := o.locator.Locate(ref.Num)
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	if loc.Compressed {
		if ref.Gen != 0 {
			return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return o.loadFromObjectStream(ctx, ref, loc)
	}
	if loc.Gen != ref.Gen {
		return nil, fmt.Errorf("%s: %w (current generation %d)", ref, ErrNotFound, loc.Gen)
	}
	return o.loadAtOffset(ref, loc.Offset)
}

// loadAtOffset uses a fresh scanner per object so nested Length lookups never
// disturb the cursor of an outer parse.
func (o *objectLoader) loadAtOffset(ref raw.ObjectRef, offset int64) (raw.Object, error) {
	p := NewObjectParser(scanner.New(o.reader, o.cfg.ScannerConfig()), o.cfg)
	p.SetLengthResolver(o.resolveLength)
	if err := p.Seek(offset); err != nil {
		return nil, fmt.Errorf("%s: seek %d: %w", ref, offset, err)
	}
	got, obj, err := p.ParseIndirect()
	if err != nil {
		return nil, fmt.Errorf("%s at offset %d: %w", ref, offset, err)
	}
	if got != ref {
		return nil, fmt.Errorf("%w: offset %d holds %s, expected %s", ErrSyntax, offset, got, ref)
	}
	return obj, nil
}

func (o *objectLoader) resolveLength(ref raw.ObjectRef) (int64, bool) {
	if o.resolving[ref.Num] {
		return 0, false
	}
	o.resolving[ref.Num] = true
	defer delete(o.resolving, ref.Num)

	obj, err := o.load(context.Background(), ref)
	if err != nil {
		return 0, false
	}
	n, ok := obj.(raw.NumberObj)
	if !ok || !n.IsInteger() {
		return 0, false
	}
	return n.I, true
}

type objectStream struct {
	data    []byte
	first   int
	offsets map[int]int // object number -> offset relative to First
}

func (o *objectLoader) loadFromObjectStream(ctx context.Context, ref raw.ObjectRef, loc Location) (raw.Object, error) {
	stm, err := o.objectStream(ctx, loc.StreamNum)
	if err != nil {
		return nil, fmt.Errorf("%s in object stream %d: %w", ref, loc.StreamNum, err)
	}
	// the header is authoritative; the xref index is only a hint
	off, ok := stm.offsets[ref.Num]
	if !ok {
		return nil, fmt.Errorf("%s: %w in object stream %d", ref, ErrNotFound, loc.StreamNum)
	}
	start := stm.first + off
	if start < 0 || start > len(stm.data) {
		return nil, fmt.Errorf("%w: object %d offset %d outside object stream %d", ErrSyntax, ref.Num, off, loc.StreamNum)
	}
	cfg := o.cfg
	p := NewObjectParser(scanner.New(bytes.NewReader(stm.data[start:]), cfg.ScannerConfig()), cfg)
	p.loc = recovery.Location{ObjectNum: ref.Num, Component: "objstm"}
	obj, err := p.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("%s in object stream %d: %w", ref, loc.StreamNum, err)
	}
	return obj, nil
}

func (o *objectLoader) objectStream(ctx context.Context, num int) (*objectStream, error) {
	if stm, ok := o.objstm[num]; ok {
		return stm, nil
	}
	loc, ok := o.locator.Locate(num)
	if !ok {
		return nil, fmt.Errorf("object stream %d: %w", num, ErrNotFound)
	}
	if loc.Compressed {
		return nil, fmt.Errorf("%w: object stream %d is itself compressed", ErrSyntax, num)
	}
	obj, err := o.loadAtOffset(raw.ObjectRef{Num: num, Gen: loc.Gen}, loc.Offset)
	if err != nil {
		return nil, err
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("%w: object stream %d is a %s", ErrSyntax, num, obj.Type())
	}
	n, _ := st.Dict.GetInt("N")
	first, _ := st.Dict.GetInt("First")
	if n < 0 || first < 0 {
		return nil, fmt.Errorf("%w: object stream %d has N=%d First=%d", ErrSyntax, num, n, first)
	}
	if max := o.cfg.Limits.MaxObjectStreamCount; max > 0 && n > int64(max) {
		return nil, fmt.Errorf("object stream %d holds %d objects, limit %d", num, n, max)
	}
	names, params := filters.ExtractFilters(st.Dict)
	data, err := o.filters.Decode(ctx, st.Data, names, params)
	if err != nil {
		return nil, fmt.Errorf("decode object stream %d: %w", num, err)
	}
	if first > int64(len(data)) {
		return nil, fmt.Errorf("%w: object stream %d First %d beyond %d bytes", ErrSyntax, num, first, len(data))
	}

	stm := &objectStream{data: data, first: int(first), offsets: make(map[int]int, n)}
	hs := scanner.New(bytes.NewReader(data[:first]), o.cfg.ScannerConfig())
	var listed int64
	for i := int64(0); i < n; i++ {
		numTok, err := hs.Next()
		if err != nil {
			break
		}
		offTok, err := hs.Next()
		if err != nil {
			break
		}
		if !numTok.IsInt || !offTok.IsInt {
			return nil, fmt.Errorf("%w: object stream %d header entry %d", ErrSyntax, num, i)
		}
		objNum := int(numTok.Int)
		if _, dup := stm.offsets[objNum]; !dup {
			stm.offsets[objNum] = int(offTok.Int)
		}
		listed++
	}
	if listed < n {
		loc := recovery.Location{ObjectNum: num, Component: "objstm", Issue: recovery.IssueTruncated}
		err := fmt.Errorf("object stream header lists %d of %d objects", listed, n)
		if rerr := recovery.Report(ctx, o.cfg.Recovery, err, loc); rerr != nil {
			return nil, rerr
		}
	}
	o.objstm[num] = stm
	return stm, nil
}
