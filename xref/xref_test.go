package xref_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/parser"
	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/xref"
)

func buildSimplePDF() ([]byte, map[int]int64) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	offsets := make(map[int]int64)

	offsets[1] = int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")

	offsets[2] = int64(buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")

	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 3\n")
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 2; i++ {
		buf.WriteString(fmt.Sprintf("%010d 00000 n \n", offsets[i]))
	}
	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n")
	buf.WriteString("startxref\n")
	buf.WriteString(fmt.Sprintf("%d\n", xrefOffset))
	buf.WriteString("%%EOF\n")

	return buf.Bytes(), offsets
}

type readerAt struct {
	data []byte
}

func (r *readerAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if off+int64(n) >= int64(len(r.data)) {
		return n, io.EOF
	}
	return n, nil
}

func resolve(t *testing.T, data []byte, cfg xref.ResolverConfig) *xref.Map {
	t.Helper()
	m, err := xref.NewResolver(cfg).BuildLocationMap(context.Background(), &readerAt{data: data})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return m
}

func TestResolverParsesXRefTable(t *testing.T) {
	pdf, offsets := buildSimplePDF()
	table := resolve(t, pdf, xref.ResolverConfig{})

	for obj, off := range offsets {
		loc, ok := table.Locate(obj)
		if !ok {
			t.Fatalf("missing object %d", obj)
		}
		if loc.Offset != off || loc.Gen != 0 {
			t.Fatalf("object %d: expected (%d,0), got (%d,%d)", obj, off, loc.Offset, loc.Gen)
		}
	}
	if table.Type() != "table" {
		t.Fatalf("expected table, got %s", table.Type())
	}
	if root, ok := table.Trailer().GetRef("Root"); !ok || root.Num != 1 {
		t.Fatalf("trailer Root missing: %v", table.Trailer())
	}
	if _, ok := table.Locate(0); ok {
		t.Fatalf("object 0 must never be located")
	}
}

func buildXRefStreamEntries(size int, offsets map[int]int, objStreams map[int]struct {
	objstm int
	idx    int
}) []byte {
	entrySize := 6 // w: [1 4 1]
	total := make([]byte, entrySize*size)
	for obj, off := range offsets {
		idx := obj * entrySize
		total[idx] = 1 // type 1
		total[idx+1] = byte(off >> 24)
		total[idx+2] = byte(off >> 16)
		total[idx+3] = byte(off >> 8)
		total[idx+4] = byte(off)
		total[idx+5] = 0
	}
	for obj, meta := range objStreams {
		idx := obj * entrySize
		total[idx] = 2 // type 2
		total[idx+1] = byte(meta.objstm >> 24)
		total[idx+2] = byte(meta.objstm >> 16)
		total[idx+3] = byte(meta.objstm >> 8)
		total[idx+4] = byte(meta.objstm)
		total[idx+5] = byte(meta.idx)
	}
	return total
}

func buildXRefStreamPDF(compress bool) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")

	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")

	// Object stream with two objects (4 and 5)
	objStreamContent := "<< /Val 7 >> 5"
	header := "4 0 5 " + fmt.Sprintf("%d ", len("<< /Val 7 >>")+1)
	first := len(header)
	decoded := []byte(header + objStreamContent)
	off3 := buf.Len()
	fmt.Fprintf(buf, "3 0 obj\n<< /Type /ObjStm /N 2 /First %d /Length %d >>\nstream\n", first, len(decoded))
	buf.Write(decoded)
	buf.WriteString("\nendstream\nendobj\n")

	xrefOffset := buf.Len()
	entries := buildXRefStreamEntries(7, map[int]int{
		1: off1,
		2: off2,
		3: off3,
		6: xrefOffset,
	}, map[int]struct {
		objstm int
		idx    int
	}{
		4: {objstm: 3, idx: 0},
		5: {objstm: 3, idx: 1},
	})
	filter := ""
	if compress {
		entries, _ = filters.Deflate(entries, filters.LevelFast)
		filter = " /Filter /FlateDecode"
	}
	fmt.Fprintf(buf, "6 0 obj\n<< /Type /XRef /Size 7 /Root 1 0 R /W [1 4 1] /Index [0 7] /Length %d%s >>\nstream\n", len(entries), filter)
	buf.Write(entries)
	buf.WriteString("\nendstream\nendobj\n")

	buf.WriteString("startxref\n")
	buf.WriteString(fmt.Sprintf("%d\n", xrefOffset))
	buf.WriteString("%%EOF\n")
	return buf.Bytes()
}

func TestResolverParsesXRefStreamAndObjStm(t *testing.T) {
	for _, compress := range []bool{false, true} {
		data := buildXRefStreamPDF(compress)
		table := resolve(t, data, xref.ResolverConfig{})
		if table.Type() != "stream" {
			t.Fatalf("expected stream section, got %s", table.Type())
		}
		loc, ok := table.Locate(4)
		if !ok || !loc.Compressed || loc.StreamNum != 3 || loc.Index != 0 {
			t.Fatalf("expected obj 4 in objstm 3 idx0, got %+v %v", loc, ok)
		}
		if _, ok := table.Trailer().Get("W"); ok {
			t.Fatalf("stream-only keys must not leak into the trailer")
		}

		loader, err := parser.NewObjectLoaderBuilder().
			WithReader(bytes.NewReader(data)).
			WithLocator(table).
			Build()
		if err != nil {
			t.Fatalf("build loader: %v", err)
		}
		obj, err := loader.Load(context.Background(), raw.ObjectRef{Num: 4, Gen: 0})
		if err != nil {
			t.Fatalf("load obj 4: %v", err)
		}
		if _, ok := obj.(*raw.DictObj); !ok {
			t.Fatalf("expected dict from objstm, got %T", obj)
		}
		obj5, err := loader.Load(context.Background(), raw.ObjectRef{Num: 5, Gen: 0})
		if err != nil {
			t.Fatalf("load obj 5: %v", err)
		}
		if num, ok := obj5.(raw.NumberObj); !ok || num.Int() != 5 {
			t.Fatalf("expected number 5, got %#v", obj5)
		}
	}
}

func buildHybridXRefPDF() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")
	off3 := buf.Len()
	buf.WriteString("3 0 obj\n(old three)\nendobj\n")

	xrefStreamOff := buf.Len()
	entries := buildXRefStreamEntries(6, map[int]int{
		1: off1,
		2: off2,
		3: off3,
		4: xrefStreamOff,
	}, nil)
	fmt.Fprintf(buf, "4 0 obj\n<< /Type /XRef /Size 6 /W [1 4 1] /Index [0 6] /Length %d >>\nstream\n", len(entries))
	buf.Write(entries)
	buf.WriteString("\nendstream\nendobj\n")

	// the table claims 3 is free; the hybrid stream of the same section wins
	obj5Off := buf.Len()
	buf.WriteString("5 0 obj\n<< /Producer (inc) >>\nendobj\n")
	tableOff := buf.Len()
	fmt.Fprintf(buf, "xref\n0 1\n0000000000 65535 f \n3 1\n0000000000 00001 f \n5 1\n%010d 00000 n \n", obj5Off)
	fmt.Fprintf(buf, "trailer\n<< /Size 6 /Root 1 0 R /XRefStm %d >>\nstartxref\n%d\n%%%%EOF\n", xrefStreamOff, tableOff)
	return buf.Bytes()
}

func TestResolverParsesHybridXRefTableWithXRefStream(t *testing.T) {
	table := resolve(t, buildHybridXRefPDF(), xref.ResolverConfig{})
	if table.Type() != "hybrid" {
		t.Fatalf("expected hybrid section, got %s", table.Type())
	}
	for _, num := range []int{1, 2, 3, 5} {
		if loc, ok := table.Locate(num); !ok || loc.Offset == 0 {
			t.Fatalf("missing object %d: %+v", num, loc)
		}
	}
}

func TestHybridStreamEntryOverridesTable(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")
	tableThree := buf.Len()
	buf.WriteString("3 0 obj\n(table three)\nendobj\n")
	streamThree := buf.Len()
	buf.WriteString("3 0 obj\n(stream three)\nendobj\n")

	stmOff := buf.Len()
	entries := buildXRefStreamEntries(5, map[int]int{3: streamThree, 4: stmOff}, nil)
	fmt.Fprintf(buf, "4 0 obj\n<< /Type /XRef /Size 5 /W [1 4 1] /Index [0 5] /Length %d >>\nstream\n", len(entries))
	buf.Write(entries)
	buf.WriteString("\nendstream\nendobj\n")

	tableOff := buf.Len()
	fmt.Fprintf(buf, "xref\n0 4\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n%010d 00000 n \n", off1, off2, tableThree)
	fmt.Fprintf(buf, "trailer\n<< /Size 5 /Root 1 0 R /XRefStm %d >>\nstartxref\n%d\n%%%%EOF\n", stmOff, tableOff)

	m := resolve(t, buf.Bytes(), xref.ResolverConfig{})
	require.Equal(t, "hybrid", m.Type())
	loc, ok := m.Locate(3)
	require.True(t, ok)
	assert.Equal(t, int64(streamThree), loc.Offset)

	// free stream entries leave the table's objects alone
	for num, off := range map[int]int{1: off1, 2: off2} {
		loc, ok := m.Locate(num)
		require.True(t, ok, "object %d", num)
		assert.Equal(t, int64(off), loc.Offset)
	}
}

// buildChain writes a base file and two incremental updates. Update 1 frees
// object 3; update 2 redefines object 2.
func buildChain() (data []byte, base2, update2 int64) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	off := map[int]int{}
	for i, body := range []string{"<< /Type /Catalog /Pages 2 0 R >>", "<< /Type /Pages /Count 0 >>", "(three)"} {
		off[i+1] = buf.Len()
		fmt.Fprintf(buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	x0 := buf.Len()
	fmt.Fprintf(buf, "xref\n0 4\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n%010d 00000 n \n", off[1], off[2], off[3])
	fmt.Fprintf(buf, "trailer\n<< /Size 4 /Root 1 0 R /Info 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", x0)

	x1 := buf.Len()
	fmt.Fprintf(buf, "xref\n0 1\n0000000003 65535 f \n3 1\n0000000000 00001 f \n")
	fmt.Fprintf(buf, "trailer\n<< /Size 4 /Root 1 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", x0, x1)

	o2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 2 >>\nendobj\n")
	x2 := buf.Len()
	fmt.Fprintf(buf, "xref\n0 1\n0000000000 65535 f \n2 1\n%010d 00000 n \n", o2)
	fmt.Fprintf(buf, "trailer\n<< /Size 4 /Root 1 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", x1, x2)
	return buf.Bytes(), int64(off[2]), int64(o2)
}

func TestResolverMergesIncrementalUpdates(t *testing.T) {
	data, base2, update2 := buildChain()
	m := resolve(t, data, xref.ResolverConfig{})

	loc, ok := m.Locate(2)
	require.True(t, ok)
	assert.Equal(t, update2, loc.Offset)
	assert.NotEqual(t, base2, loc.Offset)

	_, ok = m.Locate(3)
	assert.False(t, ok, "object freed by update 1 must be absent")
	e, ok := m.Entry(3)
	require.True(t, ok)
	assert.Equal(t, xref.EntryFree, e.Type)
	assert.Equal(t, 1, e.Gen)

	assert.Len(t, m.Sections(), 3)
	assert.Equal(t, []int{1, 2}, m.Objects())
	// /Info is only in the base trailer but still reachable
	_, ok = m.Trailer().Get("Info")
	assert.True(t, ok)

	loader, err := parser.NewObjectLoaderBuilder().WithReader(bytes.NewReader(data)).WithLocator(m).Build()
	require.NoError(t, err)
	obj, err := loader.Load(context.Background(), raw.ObjectRef{Num: 2})
	require.NoError(t, err)
	n, _ := obj.(*raw.DictObj).GetInt("Count")
	assert.EqualValues(t, 2, n)
	_, err = loader.Load(context.Background(), raw.ObjectRef{Num: 3})
	assert.ErrorIs(t, err, parser.ErrNotFound)
}

func TestResolverBreaksPrevCycle(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	x := buf.Len()
	fmt.Fprintf(buf, "xref\n0 2\n0000000000 65535 f \n%010d 00000 n \n", off1)
	fmt.Fprintf(buf, "trailer\n<< /Size 2 /Root 1 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", x, x)

	rec := recovery.NewLenientStrategy()
	m := resolve(t, buf.Bytes(), xref.ResolverConfig{Recovery: rec})
	_, ok := m.Locate(1)
	assert.True(t, ok)
	assert.Equal(t, 1, rec.Count(recovery.IssueXRefCycle))

	_, err := xref.NewResolver(xref.ResolverConfig{Recovery: recovery.NewStrictStrategy()}).
		BuildLocationMap(context.Background(), bytes.NewReader(buf.Bytes()))
	assert.ErrorIs(t, err, recovery.ErrAborted)
}

func TestResolverHeaderOffset(t *testing.T) {
	pdf, offsets := buildSimplePDF()
	junk := []byte("garbage before header\n")
	data := append(append([]byte{}, junk...), pdf...)

	rec := recovery.NewLenientStrategy()
	m := resolve(t, data, xref.ResolverConfig{Recovery: rec})
	loc, ok := m.Locate(1)
	require.True(t, ok)
	assert.Equal(t, offsets[1]+int64(len(junk)), loc.Offset)
	assert.Equal(t, 1, rec.Count(recovery.IssueHeaderOffset))
}

func TestResolverRejectsNonPDF(t *testing.T) {
	inputs := [][]byte{
		{},
		[]byte("this is not a pdf, just 32 bytes"),
	}
	for _, in := range inputs {
		for _, repair := range []bool{false, true} {
			_, err := xref.NewResolver(xref.ResolverConfig{Repair: repair}).
				BuildLocationMap(context.Background(), bytes.NewReader(in))
			if !errors.Is(err, xref.ErrNoXRef) {
				t.Fatalf("input %q repair=%v: expected ErrNoXRef, got %v", in, repair, err)
			}
		}
	}
}

func TestResolverUndecodableStreamIsFatal(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	x := buf.Len()
	fmt.Fprintf(buf, "2 0 obj\n<< /Type /XRef /Size 3 /W [1 4 1] /Filter /BogusDecode /Length 4 >>\nstream\nabcd\nendstream\nendobj\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", x)

	_, err := xref.NewResolver(xref.ResolverConfig{}).BuildLocationMap(context.Background(), bytes.NewReader(buf.Bytes()))
	require.Error(t, err)
	assert.ErrorIs(t, err, xref.ErrUnsupported)

	// the brute-force fallback recovers the objects
	m := resolve(t, buf.Bytes(), xref.ResolverConfig{Repair: true})
	assert.True(t, m.Repaired())
	loc, ok := m.Locate(1)
	require.True(t, ok)
	assert.EqualValues(t, off1, loc.Offset)
}

func TestAppendTableRoundTrip(t *testing.T) {
	entries := map[int]xref.Entry{
		0: {Type: xref.EntryFree, Gen: 65535},
		1: {Type: xref.EntryInUse, Offset: 9},
		2: {Type: xref.EntryInUse, Offset: 55, Gen: 2},
		7: {Type: xref.EntryInUse, Offset: 120},
	}
	trailer := raw.Dict()
	trailer.Set("Size", raw.NumberInt(8))
	trailer.Set("Root", raw.Ref(1, 0))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	for buf.Len() < 200 {
		buf.WriteString("% padding line\n")
	}
	x := buf.Len()
	out := xref.AppendTable(buf.Bytes(), entries, trailer)
	out = append(out, fmt.Sprintf("startxref\n%d\n%%%%EOF\n", x)...)

	assert.Contains(t, string(out), "xref\n0 3\n0000000000 65535 f \n0000000009 00000 n \n0000000055 00002 n \n7 1\n0000000120 00000 n \n")

	m := resolve(t, out, xref.ResolverConfig{})
	loc, ok := m.Locate(2)
	require.True(t, ok)
	assert.EqualValues(t, 55, loc.Offset)
	assert.Equal(t, 2, loc.Gen)
	loc, ok = m.Locate(7)
	require.True(t, ok)
	assert.EqualValues(t, 120, loc.Offset)
}

func TestEncodeStreamWidths(t *testing.T) {
	entries := map[int]xref.Entry{
		0: {Type: xref.EntryFree, Gen: 65535},
		1: {Type: xref.EntryInUse, Offset: 70000},
		2: {Type: xref.EntryCompressed, StreamNum: 5, Index: 3},
	}
	w, index, data := xref.EncodeStream(entries)
	assert.Equal(t, [3]int{1, 3, 2}, w)
	assert.Equal(t, 2, index.Len())
	require.Len(t, data, 3*6)
	assert.Equal(t, []byte{0, 0, 0, 0, 0xFF, 0xFF}, data[:6])
	assert.Equal(t, []byte{1, 0x01, 0x11, 0x70, 0, 0}, data[6:12])
	assert.Equal(t, []byte{2, 0, 0, 5, 0, 3}, data[12:])
}
