package document

import (
	"bytes"
	"context"
	"strconv"
	"testing"

	"github.com/wudi/pdfcodec/ir/raw"
)

const lazyPDF = "%PDF-1.5\n" +
	"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
	"2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n"

func TestObjectsLoadOnFirstLookup(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(lazyPDF)
	xrefOff := buf.Len()
	buf.WriteString("xref\n0 3\n0000000000 65535 f \n0000000009 00000 n \n0000000058 00000 n \n")
	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n")
	buf.WriteString(strconv.Itoa(xrefOff) + "\n%%EOF\n")
	data := buf.Bytes()

	d, err := Open(context.Background(), bytes.NewReader(data), int64(len(data)), DefaultOptions())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	if len(d.graph.Objects) != 1 {
		t.Fatalf("only the catalog should be loaded, have %d objects", len(d.graph.Objects))
	}
	if d.Version() != "1.5" {
		t.Fatalf("version %q", d.Version())
	}
	res := d.Get(context.Background(), raw.ObjectRef{Num: 2})
	if !res.OK() {
		t.Fatalf("pages: %v %v", res.Status, res.Err)
	}
	if len(d.graph.Objects) != 2 {
		t.Fatalf("pages should now be cached")
	}
	if d.graph.Dirty() {
		t.Fatalf("loading must not mark objects changed")
	}
}

func TestHeaderVersion(t *testing.T) {
	cases := map[string]string{
		"%PDF-1.4\n":         "1.4",
		"junk%PDF-2.0\r":     "2.0",
		"%PDF-1.9\n":         "1.7",
		"%PDF-x\n":           "1.4",
		"\x00\x00%PDF-1.3 ok": "1.3",
	}
	for in, want := range cases {
		v, ok := headerVersion(bytes.NewReader([]byte(in)))
		if !ok || string(v) != want {
			t.Fatalf("%q: got %q %v, want %q", in, v, ok, want)
		}
	}
	if _, ok := headerVersion(bytes.NewReader([]byte("no header"))); ok {
		t.Fatalf("missing header accepted")
	}
}
