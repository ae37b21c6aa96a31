package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/optimize"
	"github.com/wudi/pdfcodec/xref"
)

// maxPerObjectStream caps how many objects share one object stream.
const maxPerObjectStream = 100

type impl struct {
	interceptors []Interceptor
}

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	if err := checkNesting(ref, obj); err != nil {
		return nil, err
	}
	return appendIndirect(nil, ref, obj), nil
}

// appendIndirect writes "N G obj ... endobj". Stream lengths are taken from
// the data, never from the dictionary.
func appendIndirect(dst []byte, ref raw.ObjectRef, obj raw.Object) []byte {
	dst = strconv.AppendInt(dst, int64(ref.Num), 10)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(ref.Gen), 10)
	dst = append(dst, " obj\n"...)
	if st, ok := obj.(*raw.StreamObj); ok {
		dict, _ := raw.DeepCopy(st.Dict).(*raw.DictObj)
		if dict == nil {
			dict = raw.Dict()
		}
		dict.Set("Length", raw.NumberInt(int64(len(st.Data))))
		dst = raw.AppendObject(dst, dict)
		dst = append(dst, "\nstream\n"...)
		dst = append(dst, st.Data...)
		dst = append(dst, "\nendstream"...)
	} else {
		dst = raw.AppendObject(dst, obj)
	}
	return append(dst, "\nendobj\n"...)
}

// emit writes one indirect object and returns its offset.
func (w *impl) emit(ctx context.Context, buf *bytes.Buffer, ref raw.ObjectRef, obj raw.Object) (int64, error) {
	for _, ic := range w.interceptors {
		if err := ic.BeforeWrite(ctx, ref, obj); err != nil {
			return 0, err
		}
	}
	off := int64(buf.Len())
	buf.Write(appendIndirect(nil, ref, obj))
	n := int64(buf.Len()) - off
	for _, ic := range w.interceptors {
		if err := ic.AfterWrite(ctx, ref, obj, n); err != nil {
			return 0, err
		}
	}
	return off, nil
}

func (w *impl) Write(ctx context.Context, g *Graph, out io.Writer, cfg Config) (err error) {
	cfg = cfg.withDefaults()
	// never write a header older than the document's own version
	if g != nil && g.Version != "" && !cfg.Version.AtLeast(g.Version) {
		cfg.Version = g.Version
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("writer config: %w", err)
	}
	ctx, span := cfg.Tracer.StartSpan(ctx, "pdf.write")
	start := time.Now()
	defer func() {
		span.SetTag(observability.MetricWriteTime, time.Since(start))
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	if g == nil || g.Trailer == nil {
		return errors.New("writer: graph has no trailer")
	}
	if _, ok := g.Trailer.Get("Encrypt"); ok {
		return ErrEncrypted
	}
	if _, ok := g.Trailer.GetRef("Root"); !ok {
		return errors.New("writer: trailer has no /Root")
	}

	objects := make(map[raw.ObjectRef]raw.Object, len(g.Objects))
	for ref, obj := range g.Objects {
		if err := checkNesting(ref, obj); err != nil {
			return err
		}
		objects[ref] = obj
	}
	trailer, _ := raw.DeepCopy(g.Trailer).(*raw.DictObj)
	freed := make(map[int]int, len(g.Freed))
	for num, gen := range g.Freed {
		freed[num] = gen
	}

	if cfg.Deduplicate {
		for ref, obj := range objects {
			objects[ref] = raw.DeepCopy(obj)
		}
		removed, err := optimize.Deduplicate(ctx, &raw.Document{Objects: objects, Trailer: trailer})
		if err != nil {
			return fmt.Errorf("deduplicate: %w", err)
		}
		for _, ref := range removed {
			freed[ref.Num] = min(ref.Gen+1, maxGen)
		}
		cfg.Logger.Debug("deduplicated objects", observability.Int("removed", len(removed)))
	}

	refs := make([]raw.ObjectRef, 0, len(objects))
	for ref := range objects {
		refs = append(refs, ref)
	}
	sortRefs(refs)

	if err := checkColorMode(ctx, objects, refs, cfg); err != nil {
		return err
	}
	if err := encodeStreams(ctx, objects, refs, cfg); err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-" + string(cfg.Version) + "\n%\xE2\xE3\xCF\xD3\n")

	entries := make(map[int]xref.Entry, len(refs)+1)
	next := 1
	for num := range freed {
		next = max(next, num+1)
	}
	var packed []raw.ObjectRef
	for _, ref := range refs {
		next = max(next, ref.Num+1)
		obj := objects[ref]
		if cfg.packObjects() && packable(ref, obj) {
			packed = append(packed, ref)
			continue
		}
		off, err := w.emit(ctx, &buf, ref, obj)
		if err != nil {
			return err
		}
		entries[ref.Num] = xref.Entry{Type: xref.EntryInUse, Offset: off, Gen: ref.Gen}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	for len(packed) > 0 {
		chunk := packed[:min(len(packed), maxPerObjectStream)]
		packed = packed[len(chunk):]
		stmRef := raw.ObjectRef{Num: next}
		next++
		st, err := w.objectStream(ctx, chunk, objects, cfg)
		if err != nil {
			return err
		}
		off, err := w.emit(ctx, &buf, stmRef, st)
		if err != nil {
			return err
		}
		entries[stmRef.Num] = xref.Entry{Type: xref.EntryInUse, Offset: off}
		for i, ref := range chunk {
			entries[ref.Num] = xref.Entry{Type: xref.EntryCompressed, StreamNum: stmRef.Num, Index: i}
		}
	}

	if cfg.xrefStreams() {
		xrefRef := raw.ObjectRef{Num: next}
		next++
		threadFreeList(entries, freed, next)
		tr := newTrailer(trailer, next)
		tr.Set("ID", fileID(g.Trailer, buf.Bytes(), cfg.Deterministic))
		if err := w.writeXRefStream(ctx, &buf, xrefRef, entries, tr, cfg); err != nil {
			return err
		}
	} else {
		threadFreeList(entries, freed, next)
		tr := newTrailer(trailer, next)
		tr.Set("ID", fileID(g.Trailer, buf.Bytes(), cfg.Deterministic))
		xrefOffset := int64(buf.Len())
		buf.Write(xref.AppendTable(nil, entries, tr))
		writeStartXRef(&buf, xrefOffset)
	}

	span.SetTag(observability.MetricObjectCount, len(refs))
	span.SetTag(observability.MetricWrittenBytes, buf.Len())
	cfg.Logger.Info("document written",
		observability.Int("objects", len(refs)),
		observability.Int("size", next),
		observability.Int("bytes", buf.Len()))
	_, err = out.Write(buf.Bytes())
	return err
}

func (w *impl) Append(ctx context.Context, g *Graph, base Base, out io.Writer, cfg Config) (err error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("writer config: %w", err)
	}
	ctx, span := cfg.Tracer.StartSpan(ctx, "pdf.write.incremental")
	start := time.Now()
	defer func() {
		span.SetTag(observability.MetricWriteTime, time.Since(start))
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()
	if base.Source == nil || base.Size <= 0 {
		return errors.New("writer: incremental update needs the original bytes")
	}
	if g == nil || g.Trailer == nil {
		return errors.New("writer: graph has no trailer")
	}

	var buf bytes.Buffer
	buf.Grow(int(base.Size) + 4096)
	if _, err := io.Copy(&buf, io.NewSectionReader(base.Source, 0, base.Size)); err != nil {
		return fmt.Errorf("copy original: %w", err)
	}
	if !g.Dirty() {
		_, err = out.Write(buf.Bytes())
		return err
	}
	if b := buf.Bytes(); len(b) > 0 && b[len(b)-1] != '\n' && b[len(b)-1] != '\r' {
		buf.WriteByte('\n')
	}
	sectionStart := buf.Len()

	changed := g.Changed()
	objects := make(map[raw.ObjectRef]raw.Object, len(changed))
	for _, ref := range changed {
		obj := g.Objects[ref]
		if err := checkNesting(ref, obj); err != nil {
			return err
		}
		objects[ref] = obj
	}
	if err := checkColorMode(ctx, g.Objects, changed, cfg); err != nil {
		return err
	}
	if err := encodeStreams(ctx, objects, changed, cfg); err != nil {
		return err
	}

	entries := make(map[int]xref.Entry)
	for num, e := range base.Entries {
		entries[num] = e
	}
	for _, ref := range changed {
		off, err := w.emit(ctx, &buf, ref, objects[ref])
		if err != nil {
			return err
		}
		entries[ref.Num] = xref.Entry{Type: xref.EntryInUse, Offset: off, Gen: ref.Gen}
	}

	next := g.MaxNum() + 1
	if size, ok := g.Trailer.GetInt("Size"); ok && int(size) > next {
		next = int(size)
	}
	freed := make(map[int]int)
	for _, num := range g.Deleted() {
		freed[num] = g.Freed[num]
	}
	if len(freed) > 0 {
		linkFree(entries, freed)
	}

	trailer, _ := raw.DeepCopy(g.Trailer).(*raw.DictObj)
	if base.Entries == nil {
		trailer.Set("Prev", raw.NumberInt(base.StartXRef))
	} else {
		trailer.Delete("Prev")
	}
	for _, k := range []string{"XRefStm", "Type", "W", "Index", "Filter", "DecodeParms", "Length"} {
		trailer.Delete(k)
	}
	trailer.Set("ID", fileID(g.Trailer, buf.Bytes()[sectionStart:], cfg.Deterministic))

	if base.XRefStream || cfg.XRefStreams {
		xrefRef := raw.ObjectRef{Num: next}
		next++
		trailer.Set("Size", raw.NumberInt(int64(next)))
		if err := w.writeXRefStream(ctx, &buf, xrefRef, entries, trailer, cfg); err != nil {
			return err
		}
	} else {
		trailer.Set("Size", raw.NumberInt(int64(next)))
		xrefOffset := int64(buf.Len())
		buf.Write(xref.AppendTable(nil, entries, trailer))
		writeStartXRef(&buf, xrefOffset)
	}

	span.SetTag(observability.MetricObjectCount, len(changed))
	span.SetTag(observability.MetricWrittenBytes, buf.Len()-int(base.Size))
	cfg.Logger.Info("incremental update written",
		observability.Int("changed", len(changed)),
		observability.Int("deleted", len(freed)),
		observability.Int64("prev", base.StartXRef))
	_, err = out.Write(buf.Bytes())
	return err
}

// packable reports whether obj may live in an object stream.
func packable(ref raw.ObjectRef, obj raw.Object) bool {
	if ref.Gen != 0 {
		return false
	}
	if _, ok := obj.(*raw.StreamObj); ok {
		return false
	}
	return true
}

func (w *impl) objectStream(ctx context.Context, chunk []raw.ObjectRef, objects map[raw.ObjectRef]raw.Object, cfg Config) (*raw.StreamObj, error) {
	var header, body []byte
	for i, ref := range chunk {
		obj := objects[ref]
		for _, ic := range w.interceptors {
			if err := ic.BeforeWrite(ctx, ref, obj); err != nil {
				return nil, err
			}
		}
		if i > 0 {
			header = append(header, ' ')
		}
		header = strconv.AppendInt(header, int64(ref.Num), 10)
		header = append(header, ' ')
		header = strconv.AppendInt(header, int64(len(body)), 10)
		n := len(body)
		body = raw.AppendObject(body, obj)
		body = append(body, '\n')
		for _, ic := range w.interceptors {
			if err := ic.AfterWrite(ctx, ref, obj, int64(len(body)-n)); err != nil {
				return nil, err
			}
		}
	}
	header = append(header, '\n')
	data := append(header, body...)

	dict := raw.Dict()
	dict.Set("Type", raw.Name("ObjStm"))
	dict.Set("N", raw.NumberInt(int64(len(chunk))))
	dict.Set("First", raw.NumberInt(int64(len(header))))
	packed, err := filters.Deflate(data, cfg.FlateLevel)
	if err != nil {
		return nil, fmt.Errorf("object stream: %w", err)
	}
	dict.Set("Filter", raw.Name("FlateDecode"))
	return raw.NewStream(dict, packed), nil
}

func (w *impl) writeXRefStream(ctx context.Context, buf *bytes.Buffer, ref raw.ObjectRef, entries map[int]xref.Entry, trailer *raw.DictObj, cfg Config) error {
	off := int64(buf.Len())
	entries[ref.Num] = xref.Entry{Type: xref.EntryInUse, Offset: off}
	widths, index, rows := xref.EncodeStream(entries)

	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(12))
	params.Set("Columns", raw.NumberInt(int64(widths[0]+widths[1]+widths[2])))
	data, err := (&filters.FlateCodec{Level: cfg.FlateLevel}).Encode(ctx, rows, params)
	if err != nil {
		return fmt.Errorf("xref stream: %w", err)
	}

	dict, _ := raw.DeepCopy(trailer).(*raw.DictObj)
	dict.Set("Type", raw.Name("XRef"))
	dict.Set("W", raw.NewArray(raw.NumberInt(int64(widths[0])), raw.NumberInt(int64(widths[1])), raw.NumberInt(int64(widths[2]))))
	dict.Set("Index", index)
	dict.Set("Filter", raw.Name("FlateDecode"))
	dict.Set("DecodeParms", params)
	if _, err := w.emit(ctx, buf, ref, raw.NewStream(dict, data)); err != nil {
		return err
	}
	writeStartXRef(buf, off)
	return nil
}

func writeStartXRef(buf *bytes.Buffer, off int64) {
	buf.WriteString("startxref\n")
	buf.WriteString(strconv.FormatInt(off, 10))
	buf.WriteString("\n%%EOF\n")
}

// newTrailer keeps the document-level keys of src. Section keys are rebuilt
// by the caller.
func newTrailer(src *raw.DictObj, size int) *raw.DictObj {
	tr := raw.Dict()
	for _, k := range []string{"Root", "Info"} {
		if v, ok := src.Get(k); ok {
			tr.Set(k, v)
		}
	}
	tr.Set("Size", raw.NumberInt(int64(size)))
	return tr
}

// threadFreeList fills every number below size that has no entry. Freed
// numbers form the chain from object 0 and carry their next generation;
// numbers never used are written as retired.
func threadFreeList(entries map[int]xref.Entry, freed map[int]int, size int) {
	live := make(map[int]int)
	for num, gen := range freed {
		if _, used := entries[num]; !used && num > 0 && num < size {
			live[num] = gen
		}
	}
	for num := 1; num < size; num++ {
		if _, ok := entries[num]; ok {
			continue
		}
		if _, ok := live[num]; ok {
			continue
		}
		entries[num] = xref.Entry{Type: xref.EntryFree, Gen: maxGen}
	}
	linkFree(entries, live)
}

// linkFree chains the freed numbers in ascending order, starting at object 0
// and ending back at 0.
func linkFree(entries map[int]xref.Entry, freed map[int]int) {
	nums := make([]int, 0, len(freed))
	for num := range freed {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	head := xref.Entry{Type: xref.EntryFree, Gen: maxGen}
	if len(nums) > 0 {
		head.Offset = int64(nums[0])
	}
	entries[0] = head
	for i, num := range nums {
		e := xref.Entry{Type: xref.EntryFree, Gen: freed[num]}
		if i+1 < len(nums) {
			e.Offset = int64(nums[i+1])
		}
		entries[num] = e
	}
}
