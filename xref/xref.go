package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/parser"
	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/security"
)

var (
	// ErrNoXRef means no usable cross-reference data was found.
	ErrNoXRef = errors.New("xref: no cross-reference data")
	// ErrUnsupported means a cross-reference form the resolver cannot decode.
	ErrUnsupported = errors.New("xref: unsupported cross-reference form")
)

type EntryType int

const (
	EntryFree EntryType = iota
	EntryInUse
	EntryCompressed
)

func (t EntryType) String() string {
	switch t {
	case EntryFree:
		return "free"
	case EntryInUse:
		return "in-use"
	case EntryCompressed:
		return "compressed"
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// Entry is one cross-reference record. Offset is used by in-use entries,
// StreamNum and Index by compressed ones; free entries carry the next free
// object number in Offset.
type Entry struct {
	Type      EntryType
	Offset    int64
	Gen       int
	StreamNum int
	Index     int
}

// Section describes one link of the Prev chain, newest first.
type Section struct {
	Offset  int64
	Kind    string // "table", "stream" or "hybrid"
	Trailer *raw.DictObj
	Entries int
}

// Map is the merged location map of a file.
type Map struct {
	entries   map[int]Entry
	trailer   *raw.DictObj
	startXRef int64
	sections  []Section
	repaired  bool
}

func newMap() *Map { return &Map{entries: make(map[int]Entry)} }

// Locate implements parser.Locator. Free and unknown numbers are absent.
func (m *Map) Locate(num int) (parser.Location, bool) {
	e, ok := m.entries[num]
	if !ok || e.Type == EntryFree {
		return parser.Location{}, false
	}
	if e.Type == EntryCompressed {
		return parser.Location{Compressed: true, StreamNum: e.StreamNum, Index: e.Index}, true
	}
	return parser.Location{Offset: e.Offset, Gen: e.Gen}, true
}

// Entry returns the raw merged record, free entries included.
func (m *Map) Entry(num int) (Entry, bool) {
	e, ok := m.entries[num]
	return e, ok
}

// Objects lists in-use and compressed object numbers in ascending order.
func (m *Map) Objects() []int {
	out := make([]int, 0, len(m.entries))
	for k, e := range m.entries {
		if e.Type != EntryFree && k > 0 {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

// Size is one more than the highest object number known to the file.
func (m *Map) Size() int {
	size := 0
	for k := range m.entries {
		if k+1 > size {
			size = k + 1
		}
	}
	if m.trailer != nil {
		if n, ok := m.trailer.GetInt("Size"); ok && int(n) > size {
			size = int(n)
		}
	}
	return size
}

// Entries returns a copy of the merged entries, keyed by object number.
func (m *Map) Entries() map[int]Entry {
	out := make(map[int]Entry, len(m.entries))
	for k, e := range m.entries {
		out[k] = e
	}
	return out
}

func (m *Map) Trailer() *raw.DictObj { return m.trailer }

// StartXRef is the offset named by the final startxref, the value an
// incremental update must use as /Prev.
func (m *Map) StartXRef() int64 { return m.startXRef }

func (m *Map) Sections() []Section { return m.sections }

// Repaired reports whether the map was rebuilt by scanning the file.
func (m *Map) Repaired() bool { return m.repaired }

func (m *Map) Type() string {
	switch {
	case m.repaired:
		return "repaired"
	case len(m.sections) == 0:
		return "empty"
	}
	return m.sections[0].Kind
}

// set records e unless the number is already defined; earlier sections in
// the walk are newer and win, free entries included.
func (m *Map) set(num int, e Entry) bool {
	if _, ok := m.entries[num]; ok {
		return false
	}
	m.entries[num] = e
	return true
}

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
	// Repair enables the brute-force scan when the chain is unusable.
	Repair bool
	Limits security.Limits
	Logger observability.Logger
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	BuildLocationMap(ctx context.Context, r io.ReaderAt) (*Map, error)
}

func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.Limits == (security.Limits{}) {
		cfg.Limits = security.DefaultLimits()
	}
	if cfg.MaxXRefDepth > 0 {
		cfg.Limits.MaxXRefDepth = cfg.MaxXRefDepth
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &resolver{cfg: cfg}
}

type resolver struct {
	cfg ResolverConfig
}

// walk is the state of one BuildLocationMap call.
type walk struct {
	cfg     ResolverConfig
	r       io.ReaderAt
	size    int64
	shift   int64 // bytes of junk before %PDF-, added to every offset
	parser  *parser.ObjectParser
	filters *filters.Pipeline
	m       *Map
}

func (res *resolver) BuildLocationMap(ctx context.Context, r io.ReaderAt) (*Map, error) {
	size, err := sourceSize(r)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrNoXRef)
	}
	pcfg := parser.Config{Recovery: res.cfg.Recovery, Limits: res.cfg.Limits}
	w := &walk{
		cfg:     res.cfg,
		r:       r,
		size:    size,
		filters: filters.NewDefaultPipeline(filters.LimitsFrom(res.cfg.Limits), res.cfg.Recovery),
		m:       newMap(),
	}
	w.parser = parser.NewObjectParser(newScanner(r, pcfg), pcfg)

	start, err := w.findStartXRef()
	if err == nil {
		err = w.chain(ctx, start)
	}
	if err != nil {
		if !res.cfg.Repair || errors.Is(err, recovery.ErrAborted) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		res.cfg.Logger.Warn("xref unusable, scanning file", observability.Error("error", err))
		m, rerr := repair(ctx, r, size, res.cfg)
		if rerr != nil {
			return nil, fmt.Errorf("%w (repair: %v)", err, rerr)
		}
		loc := recovery.Location{Component: "xref", Issue: recovery.IssueRepaired}
		if rerr := recovery.Report(ctx, res.cfg.Recovery, err, loc); rerr != nil {
			return nil, rerr
		}
		return m, nil
	}
	w.finishTrailer()
	res.cfg.Logger.Debug("xref resolved",
		observability.String("type", w.m.Type()),
		observability.Int("sections", len(w.m.sections)),
		observability.Int("objects", len(w.m.entries)))
	return w.m, nil
}

// findStartXRef reads the offset after the last startxref keyword.
func (w *walk) findStartXRef() (int64, error) {
	const tail = 2048
	from := w.size - tail
	if from < 0 {
		from = 0
	}
	buf := make([]byte, w.size-from)
	n, err := w.r.ReadAt(buf, from)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	buf = buf[:n]
	idx := bytes.LastIndex(buf, []byte("startxref"))
	if idx < 0 {
		return 0, fmt.Errorf("%w: startxref not found", ErrNoXRef)
	}
	rest := bytes.TrimLeft(buf[idx+len("startxref"):], " \t\r\n\f\x00")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	off, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: startxref offset %q", ErrNoXRef, rest[:end])
	}
	w.m.startXRef = off
	return off, nil
}

// chain walks the Prev links starting at the newest section.
func (w *walk) chain(ctx context.Context, start int64) error {
	visited := make(map[int64]bool)
	off := start
	for depth := 0; ; depth++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if visited[off] {
			err := fmt.Errorf("Prev chain revisits offset %d", off)
			return w.report(ctx, off, err, recovery.IssueXRefCycle)
		}
		if w.cfg.Limits.ExceedsXRefDepth(depth + 1) {
			err := fmt.Errorf("Prev chain longer than %d sections", w.cfg.Limits.MaxXRefDepth)
			return w.report(ctx, off, err, recovery.IssueXRefCycle)
		}
		visited[off] = true

		sec, err := w.section(ctx, off, depth == 0)
		if err != nil {
			if depth == 0 || isFatal(err) {
				return err
			}
			// an older update is damaged; keep what the newer ones define
			return w.report(ctx, off, fmt.Errorf("previous section: %w", err), recovery.IssueXRefEntry)
		}
		w.m.sections = append(w.m.sections, sec)

		prev, ok := sec.Trailer.GetInt("Prev")
		if !ok {
			return nil
		}
		off = prev
	}
}

// section parses the table or stream at off and merges it into the map.
// For the newest section a bad offset is retried relative to the header.
func (w *walk) section(ctx context.Context, off int64, newest bool) (Section, error) {
	entries, sec, err := w.readSection(ctx, off+w.shift)
	if err != nil && newest && !isFatal(err) && w.shift == 0 {
		if alt := headerOffset(w.r); alt > 0 {
			if e2, s2, err2 := w.readSection(ctx, off+alt); err2 == nil {
				w.shift = alt
				entries, sec, err = e2, s2, nil
				if rerr := w.report(ctx, off, fmt.Errorf("offsets are relative to header at %d", alt), recovery.IssueHeaderOffset); rerr != nil {
					return Section{}, rerr
				}
			}
		}
	}
	if err != nil {
		return Section{}, err
	}
	sec.Offset = off

	// hybrid files: the XRefStm overrides the table except with a free entry
	if stmOff, ok := sec.Trailer.GetInt("XRefStm"); ok && sec.Kind == "table" {
		stmEntries, _, err := w.readStream(ctx, stmOff+w.shift)
		if err != nil {
			if isFatal(err) {
				return Section{}, err
			}
			if rerr := w.report(ctx, stmOff, fmt.Errorf("XRefStm: %w", err), recovery.IssueXRefEntry); rerr != nil {
				return Section{}, rerr
			}
		} else {
			for num, e := range stmEntries {
				if _, ok := entries[num]; ok && e.Type == EntryFree {
					continue
				}
				entries[num] = e
			}
			sec.Kind = "hybrid"
		}
	}

	nums := make([]int, 0, len(entries))
	for num := range entries {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	for _, num := range nums {
		e := entries[num]
		if e.Type == EntryInUse {
			e.Offset += w.shift
		}
		if w.m.set(num, e) {
			sec.Entries++
		}
	}
	return sec, nil
}

func (w *walk) readSection(ctx context.Context, off int64) (map[int]Entry, Section, error) {
	if off < 0 || off >= w.size {
		return nil, Section{}, fmt.Errorf("%w: xref offset %d outside file of %d bytes", ErrNoXRef, off, w.size)
	}
	if err := w.parser.Seek(off); err != nil {
		return nil, Section{}, err
	}
	tok, err := w.parser.Token()
	if err != nil {
		return nil, Section{}, fmt.Errorf("%w: at offset %d: %v", ErrNoXRef, off, err)
	}
	if tok.IsKeyword("xref") {
		entries, trailer, err := w.readTable(ctx)
		if err != nil {
			return nil, Section{}, err
		}
		return entries, Section{Kind: "table", Trailer: trailer}, nil
	}
	entries, trailer, err := w.readStream(ctx, off)
	if err != nil {
		return nil, Section{}, err
	}
	return entries, Section{Kind: "stream", Trailer: trailer}, nil
}

// finishTrailer builds the effective trailer: the newest one, with keys it
// lacks filled from older sections.
func (w *walk) finishTrailer() {
	t := raw.Dict()
	for _, sec := range w.m.sections {
		for _, k := range sec.Trailer.Keys() {
			if _, ok := t.Get(k); ok || sectionOnlyKey(k) {
				continue
			}
			t.Set(k, sec.Trailer.KV[k])
		}
	}
	if len(w.m.sections) > 0 {
		if prev, ok := w.m.sections[0].Trailer.Get("Prev"); ok {
			t.Set("Prev", prev)
		}
	}
	w.m.trailer = t
}

func sectionOnlyKey(k string) bool {
	switch k {
	case "Prev", "XRefStm", "Type", "W", "Index", "Length", "Filter", "DecodeParms", "F", "DP":
		return true
	}
	return false
}

func (w *walk) report(ctx context.Context, off int64, err error, issue recovery.Issue) error {
	loc := recovery.Location{ByteOffset: off, Component: "xref", Issue: issue}
	return recovery.Report(ctx, w.cfg.Recovery, err, loc)
}

// isFatal separates errors that must abort the walk from damaged data.
func isFatal(err error) bool {
	return errors.Is(err, ErrUnsupported) || errors.Is(err, recovery.ErrAborted) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// headerOffset returns the position of "%PDF-" within the first KiB.
func headerOffset(r io.ReaderAt) int64 {
	buf := make([]byte, 1024)
	n, _ := r.ReadAt(buf, 0)
	idx := bytes.Index(buf[:n], []byte("%PDF-"))
	if idx < 0 {
		return 0
	}
	return int64(idx)
}

func sourceSize(r io.ReaderAt) (int64, error) {
	if s, ok := r.(interface{ Size() int64 }); ok {
		return s.Size(), nil
	}
	return int64(len(readAll(r))), nil
}

func readAll(r io.ReaderAt) []byte {
	var buf bytes.Buffer
	const chunk = int64(32 * 1024)
	for off := int64(0); ; off += chunk {
		tmp := make([]byte, chunk)
		n, err := r.ReadAt(tmp, off)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil {
			break
		}
		if int64(n) < chunk {
			break
		}
	}
	return buf.Bytes()
}
