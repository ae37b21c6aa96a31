// Package document owns an object table opened from bytes or built fresh,
// loads objects lazily on first lookup and saves it either as a full rewrite
// or as an incremental update after the original bytes.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/parser"
	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/writer"
	"github.com/wudi/pdfcodec/xref"
)

var (
	// ErrInvalidPDF wraps structural failures found while opening.
	ErrInvalidPDF = errors.New("invalid PDF")
	// ErrNotModifiable reports a save the open mode does not permit.
	ErrNotModifiable = errors.New("document not modifiable in this mode")
	// ErrReadOnly reports a mutation of an Import-mode document.
	ErrReadOnly = errors.New("document is read-only")
	ErrDisposed = errors.New("document is closed")
)

// Document is not safe for concurrent use.
type Document struct {
	opts   Options
	graph  *writer.Graph
	xref   *xref.Map
	loader parser.ObjectLoader
	base   writer.Base

	// touched numbers are owned by graph; the source is never consulted for them
	touched map[int]bool
	loaded  map[int]bool

	release func() error
	once    sync.Once
	closed  bool
}

// New creates an empty document with a catalog and an empty page tree. It
// can only be saved as a full rewrite.
func New(opts Options) (*Document, error) {
	opts = opts.withDefaults()
	opts.Mode = ModeModify
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("document options: %w", err)
	}
	g := writer.NewGraph()
	g.Version = opts.Writer.Version
	if g.Version == "" {
		g.Version = writer.PDF17
	}

	catalog := raw.Dict()
	catalog.Set("Type", raw.Name("Catalog"))
	root := g.Add(catalog)
	pages := raw.Dict()
	pages.Set("Type", raw.Name("Pages"))
	pages.Set("Kids", raw.NewArray())
	pages.Set("Count", raw.NumberInt(0))
	pagesRef := g.Add(pages)
	catalog.Set("Pages", raw.Ref(pagesRef.Num, pagesRef.Gen))
	g.Trailer.Set("Root", raw.Ref(root.Num, root.Gen))

	return &Document{
		opts:    opts,
		graph:   g,
		touched: map[int]bool{root.Num: true, pagesRef.Num: true},
		loaded:  make(map[int]bool),
	}, nil
}

// Open reads the cross-reference information of the size bytes behind r and
// the catalog, within Limits.MaxParseTime. Every other object is loaded on
// first lookup, so r must stay readable until Close.
func Open(ctx context.Context, r io.ReaderAt, size int64, opts Options) (*Document, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("document options: %w", err)
	}
	if r == nil || size <= 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidPDF)
	}
	if opts.Limits.MaxParseTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Limits.MaxParseTime)
		defer cancel()
	}
	start := time.Now()
	src := io.NewSectionReader(r, 0, size)
	version, ok := headerVersion(src)
	if !ok {
		return nil, fmt.Errorf("%w: no %%PDF- header", ErrInvalidPDF)
	}

	m, err := xref.NewResolver(xref.ResolverConfig{
		Recovery: opts.Recovery,
		Repair:   opts.Repair,
		Limits:   opts.Limits,
		Logger:   opts.Logger,
	}).BuildLocationMap(ctx, src)
	if err != nil {
		return nil, invalid(err)
	}
	trailer := m.Trailer()
	if trailer == nil {
		return nil, fmt.Errorf("%w: no trailer", ErrInvalidPDF)
	}
	rootRef, ok := trailer.GetRef("Root")
	if !ok {
		return nil, fmt.Errorf("%w: trailer has no /Root", ErrInvalidPDF)
	}

	loader, err := parser.NewObjectLoaderBuilder().
		WithReader(src).
		WithLocator(m).
		WithConfig(parser.Config{Recovery: opts.Recovery, Limits: opts.Limits}).
		WithFilters(filters.NewDefaultPipeline(filters.LimitsFrom(opts.Limits), opts.Recovery)).
		Build()
	if err != nil {
		return nil, err
	}

	d := &Document{
		opts:   opts,
		xref:   m,
		loader: loader,
		graph: &writer.Graph{
			Objects:  make(map[raw.ObjectRef]raw.Object),
			Trailer:  sourceTrailer(trailer),
			Freed:    freeEntries(m),
			Reserved: m.Size(),
		},
		touched: make(map[int]bool),
		loaded:  make(map[int]bool),
	}

	res := d.lookup(ctx, rootRef)
	if res.Status != Found {
		if res.Err != nil {
			return nil, invalid(res.Err)
		}
		return nil, fmt.Errorf("%w: catalog %s missing", ErrInvalidPDF, rootRef)
	}
	catalog, ok := res.Object.(*raw.DictObj)
	if !ok {
		return nil, fmt.Errorf("%w: catalog %s is a %s", ErrInvalidPDF, rootRef, res.Object.Type())
	}
	// a catalog /Version newer than the header wins
	if v, ok := catalog.GetName("Version"); ok {
		if pv, ok := parseVersion(v); ok && pv.AtLeast(version) {
			version = pv
		}
	}
	d.graph.Version = version

	d.base = writer.Base{
		Source:     src,
		Size:       size,
		StartXRef:  m.StartXRef(),
		XRefStream: m.Type() == "stream",
	}
	if m.Repaired() {
		// there is no trustworthy chain to point /Prev at; restate everything
		d.base.Entries = m.Entries()
		for _, e := range d.base.Entries {
			if e.Type == xref.EntryCompressed {
				d.base.XRefStream = true
				break
			}
		}
	}

	opts.Logger.Info("document opened",
		observability.String("mode", opts.Mode.String()),
		observability.String("version", string(version)),
		observability.String("xref", m.Type()),
		observability.Int("objects", len(m.Objects())),
		observability.Bool("repaired", m.Repaired()),
		observability.Int64("size", size),
		observability.Duration("took", time.Since(start)))
	return d, nil
}

func invalid(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInvalidPDF, err)
}

// headerVersion reads "%PDF-x.y" from the first KiB.
func headerVersion(r io.ReaderAt) (writer.PDFVersion, bool) {
	buf := make([]byte, 1024)
	n, _ := r.ReadAt(buf, 0)
	idx := bytes.Index(buf[:n], []byte("%PDF-"))
	if idx < 0 {
		return "", false
	}
	rest := buf[idx+5 : n]
	end := 0
	for end < len(rest) && (rest[end] == '.' || rest[end] >= '0' && rest[end] <= '9') {
		end++
	}
	v, ok := parseVersion(string(rest[:end]))
	if !ok {
		// unreadable version digits are tolerated; the body decides the rest
		return writer.PDF14, true
	}
	return v, true
}

func parseVersion(s string) (writer.PDFVersion, bool) {
	major, minor, ok := bytes.Cut([]byte(s), []byte("."))
	if !ok {
		return "", false
	}
	a, err1 := strconv.Atoi(string(major))
	b, err2 := strconv.Atoi(string(minor))
	if err1 != nil || err2 != nil || a < 1 || a > 2 || b < 0 || b > 9 {
		return "", false
	}
	if a == 2 {
		return writer.PDF20, true
	}
	if b > 7 {
		b = 7
	}
	return writer.PDFVersion(fmt.Sprintf("1.%d", b)), true
}

// sourceTrailer keeps the document-level trailer keys and drops the ones that
// describe the newest cross-reference section.
func sourceTrailer(t *raw.DictObj) *raw.DictObj {
	out, _ := raw.DeepCopy(t).(*raw.DictObj)
	for _, k := range []string{"Prev", "XRefStm", "Type", "W", "Index", "Filter", "DecodeParms", "Length"} {
		out.Delete(k)
	}
	return out
}

// freeEntries collects free numbers that may still be reused.
func freeEntries(m *xref.Map) map[int]int {
	freed := make(map[int]int)
	for num, e := range m.Entries() {
		if e.Type == xref.EntryFree && num > 0 && e.Gen < 65535 {
			freed[num] = e.Gen
		}
	}
	return freed
}

func (d *Document) check() error {
	if d.closed {
		return ErrDisposed
	}
	return nil
}

func (d *Document) mutable() error {
	if err := d.check(); err != nil {
		return err
	}
	if d.opts.Mode == ModeImport {
		return ErrReadOnly
	}
	return nil
}

// Get returns the object behind ref, loading it from the source on first use.
// A closed document reports StructuralError with ErrDisposed.
func (d *Document) Get(ctx context.Context, ref raw.ObjectRef) Result {
	if err := d.check(); err != nil {
		return broken(err)
	}
	return d.lookup(ctx, ref)
}

func (d *Document) lookup(ctx context.Context, ref raw.ObjectRef) Result {
	if obj, ok := d.graph.Objects[ref]; ok {
		return found(obj)
	}
	if !ref.Valid() || d.loader == nil || d.touched[ref.Num] {
		return Result{}
	}
	if _, freed := d.graph.Freed[ref.Num]; freed {
		return Result{}
	}
	obj, err := d.loader.Load(ctx, ref)
	switch {
	case errors.Is(err, parser.ErrNotFound):
		return Result{}
	case err != nil:
		return broken(err)
	}
	d.loaded[ref.Num] = true
	// cross-reference and object streams describe the old layout only
	if !structural(obj) {
		d.graph.Objects[ref] = obj
	}
	return found(obj)
}

func structural(obj raw.Object) bool {
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return false
	}
	t, _ := st.Dict.GetName("Type")
	return t == "XRef" || t == "ObjStm"
}

// Resolve follows references until a direct value is reached.
func (d *Document) Resolve(ctx context.Context, obj raw.Object) Result {
	for depth := 0; ; depth++ {
		ref, ok := obj.(raw.RefObj)
		if !ok {
			return found(obj)
		}
		if depth > d.opts.Limits.MaxIndirectDepth && d.opts.Limits.MaxIndirectDepth > 0 {
			return broken(fmt.Errorf("reference chain from %s too deep", ref.R))
		}
		res := d.Get(ctx, ref.R)
		if res.Status != Found {
			return res
		}
		obj = res.Object
	}
}

// Set replaces or creates the object at ref.
func (d *Document) Set(ref raw.ObjectRef, obj raw.Object) error {
	if err := d.mutable(); err != nil {
		return err
	}
	if !ref.Valid() {
		return fmt.Errorf("%w: %s", writer.ErrInvalidRef, ref)
	}
	for old := range d.graph.Objects {
		if old.Num == ref.Num && old != ref {
			delete(d.graph.Objects, old)
		}
	}
	d.graph.Set(ref, obj)
	d.touched[ref.Num] = true
	return nil
}

// Add stores obj under a new identifier.
func (d *Document) Add(obj raw.Object) (raw.ObjectRef, error) {
	if err := d.mutable(); err != nil {
		return raw.ObjectRef{}, err
	}
	ref := d.graph.Add(obj)
	d.touched[ref.Num] = true
	return ref, nil
}

// Delete removes ref and frees its number for reuse with the next generation.
func (d *Document) Delete(ctx context.Context, ref raw.ObjectRef) error {
	if err := d.mutable(); err != nil {
		return err
	}
	res := d.lookup(ctx, ref)
	switch res.Status {
	case StructuralError:
		return res.Err
	case NotFound:
		return fmt.Errorf("delete %s: %w", ref, parser.ErrNotFound)
	}
	if !d.graph.Delete(ref) {
		return fmt.Errorf("delete %s: cross-reference structures cannot be deleted", ref)
	}
	d.touched[ref.Num] = true
	return nil
}

// Trailer returns the live trailer. Changes to it are saved with the document.
func (d *Document) Trailer() *raw.DictObj {
	if d.closed {
		return nil
	}
	return d.graph.Trailer
}

// Catalog returns the document catalog.
func (d *Document) Catalog(ctx context.Context) (*raw.DictObj, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	ref, ok := d.graph.Trailer.GetRef("Root")
	if !ok {
		return nil, errors.New("trailer has no /Root")
	}
	res := d.lookup(ctx, ref)
	if res.Status == StructuralError {
		return nil, res.Err
	}
	cat, ok := res.Object.(*raw.DictObj)
	if !ok {
		return nil, fmt.Errorf("catalog %s is not a dictionary", ref)
	}
	return cat, nil
}

func (d *Document) Mode() Mode { return d.opts.Mode }

func (d *Document) Version() writer.PDFVersion {
	if d.closed {
		return ""
	}
	return d.graph.Version
}

// XRef returns the cross-reference map of the source, nil for a new document.
func (d *Document) XRef() *xref.Map { return d.xref }

func (d *Document) Encrypted() bool {
	if d.closed {
		return false
	}
	_, ok := d.graph.Trailer.Get("Encrypt")
	return ok
}

// Refs lists every live object identifier, loaded or not.
func (d *Document) Refs() []raw.ObjectRef {
	if d.closed {
		return nil
	}
	seen := make(map[int]bool)
	var refs []raw.ObjectRef
	for ref := range d.graph.Objects {
		refs = append(refs, ref)
		seen[ref.Num] = true
	}
	if d.xref != nil {
		for _, num := range d.xref.Objects() {
			if seen[num] || d.touched[num] {
				continue
			}
			refs = append(refs, d.sourceRef(num))
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
	return refs
}

func (d *Document) sourceRef(num int) raw.ObjectRef {
	ref := raw.ObjectRef{Num: num}
	if e, ok := d.xref.Entry(num); ok && e.Type == xref.EntryInUse {
		ref.Gen = e.Gen
	}
	return ref
}

// materialize loads every object of the source. Objects that fail to load
// are reported to the recovery strategy and left out.
func (d *Document) materialize(ctx context.Context) error {
	if d.xref == nil {
		return nil
	}
	for _, num := range d.xref.Objects() {
		if d.touched[num] || d.loaded[num] {
			continue
		}
		ref := d.sourceRef(num)
		res := d.lookup(ctx, ref)
		if res.Status != StructuralError {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		loc := recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "document"}
		if err := recovery.Report(ctx, d.opts.Recovery, res.Err, loc); err != nil {
			return err
		}
		d.loaded[num] = true
	}
	return nil
}

// Raw loads the whole document into the eager container.
func (d *Document) Raw(ctx context.Context) (*raw.Document, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if err := d.materialize(ctx); err != nil {
		return nil, err
	}
	doc := &raw.Document{
		Objects:   make(map[raw.ObjectRef]raw.Object, len(d.graph.Objects)),
		Trailer:   d.graph.Trailer,
		Version:   string(d.graph.Version),
		Encrypted: d.Encrypted(),
	}
	for ref, obj := range d.graph.Objects {
		doc.Objects[ref] = obj
	}
	if d.xref != nil {
		doc.StartXRef = d.xref.StartXRef()
		doc.Repaired = d.xref.Repaired()
	}
	return doc, nil
}

// Save writes the whole document as a new file. Import-mode documents are
// refused before anything is written.
func (d *Document) Save(ctx context.Context, w io.Writer) error {
	if err := d.check(); err != nil {
		return err
	}
	if d.opts.Mode == ModeImport {
		return fmt.Errorf("%w: full save of an %s-mode document", ErrNotModifiable, d.opts.Mode)
	}
	if err := d.materialize(ctx); err != nil {
		return err
	}
	return writer.New().Write(ctx, d.graph, w, d.opts.Writer)
}

// SaveIncremental writes the original bytes followed by an update holding
// every change since Open. Each call restates all changes, so successive
// saves against the same source stay valid.
func (d *Document) SaveIncremental(ctx context.Context, w io.Writer) error {
	if err := d.check(); err != nil {
		return err
	}
	if d.opts.Mode != ModeAppend || d.base.Source == nil {
		return fmt.Errorf("%w: incremental save of an %s-mode document", ErrNotModifiable, d.opts.Mode)
	}
	return writer.New().Append(ctx, d.graph, d.base, w, d.opts.Writer)
}

// SaveFile saves to path atomically: incrementally in Append mode, as a full
// rewrite otherwise.
func (d *Document) SaveFile(ctx context.Context, path string) error {
	if err := d.check(); err != nil {
		return err
	}
	save := d.Save
	switch d.opts.Mode {
	case ModeImport:
		return fmt.Errorf("%w: save of an %s-mode document", ErrNotModifiable, d.opts.Mode)
	case ModeAppend:
		save = d.SaveIncremental
	}
	return writer.WriteFile(path, func(w io.Writer) error { return save(ctx, w) })
}

// Close releases the byte source exactly once. Later calls on d fail with
// ErrDisposed.
func (d *Document) Close() error {
	var err error
	d.once.Do(func() {
		d.closed = true
		if d.release != nil {
			err = d.release()
		}
		d.graph = nil
		d.loader = nil
		d.base = writer.Base{}
	})
	return err
}
