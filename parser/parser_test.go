package parser

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/scanner"
	"github.com/wudi/pdfcodec/security"
)

func newParser(src string, cfg Config) *ObjectParser {
	return NewObjectParser(scanner.New(bytes.NewReader([]byte(src)), cfg.ScannerConfig()), cfg)
}

func TestParseObjectCollapsesReferences(t *testing.T) {
	p := newParser("[1 0 R 2 5 R 3 4 5] <</Kids [4 0 R] /Count 3>>", Config{})

	obj, err := p.ParseObject()
	require.NoError(t, err)
	arr, ok := obj.(*raw.ArrayObj)
	require.True(t, ok, "got %T", obj)
	require.Equal(t, 5, arr.Len())
	assert.Equal(t, raw.Ref(1, 0), arr.Items[0])
	assert.Equal(t, raw.Ref(2, 5), arr.Items[1])
	assert.Equal(t, raw.NumberInt(3), arr.Items[2])
	assert.Equal(t, raw.NumberInt(5), arr.Items[4])

	obj, err = p.ParseObject()
	require.NoError(t, err)
	dict := obj.(*raw.DictObj)
	kids, ok := dict.GetArray("Kids")
	require.True(t, ok)
	assert.Equal(t, raw.Ref(4, 0), kids.Items[0])
	n, _ := dict.GetInt("Count")
	assert.EqualValues(t, 3, n)

	_, err = p.ParseObject()
	assert.ErrorIs(t, err, io.EOF)
}

func TestParseObjectNoReferences(t *testing.T) {
	p := newParser("1 0 R", Config{NoReferences: true})
	obj, err := p.ParseObject()
	require.NoError(t, err)
	assert.Equal(t, raw.NumberInt(1), obj)
}

func TestParseObjectNumberWidths(t *testing.T) {
	p := newParser("-32768 -2147483648 -2147483649 -2147483648. .123 -.456", Config{})
	kinds := []raw.NumberKind{raw.Int32, raw.Int32, raw.Int64, raw.Real, raw.Real, raw.Real}
	for i, want := range kinds {
		obj, err := p.ParseObject()
		require.NoError(t, err)
		n := obj.(raw.NumberObj)
		assert.Equal(t, want, n.Kind, "literal %d", i)
	}
}

func TestParseObjectRejectsStrayKeyword(t *testing.T) {
	p := newParser("endobj", Config{})
	_, err := p.ParseObject()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyntax))
}

func TestParseObjectDictKeyMustBeName(t *testing.T) {
	p := newParser("<< 1 2 >>", Config{})
	_, err := p.ParseObject()
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestParseObjectNestingLimit(t *testing.T) {
	limits := security.DefaultLimits()
	limits.MaxNestingDepth = 3
	p := newParser("[[[[1]]]]", Config{Limits: limits})
	_, err := p.ParseObject()
	require.Error(t, err)
}

func TestParseIndirectStream(t *testing.T) {
	src := "7 0 obj\n<</Length 5>>\nstream\nhello\nendstream\nendobj\n"
	p := newParser(src, Config{Recovery: recovery.NewStrictStrategy()})

	ref, obj, err := p.ParseIndirect()
	require.NoError(t, err)
	assert.Equal(t, raw.ObjectRef{Num: 7, Gen: 0}, ref)
	st, ok := obj.(*raw.StreamObj)
	require.True(t, ok, "got %T", obj)
	assert.Equal(t, []byte("hello"), st.Data)
}

func TestParseIndirectWrongLengthScansForward(t *testing.T) {
	src := "1 0 obj\n<</Length 2>>\nstream\nhello world\nendstream\nendobj\n"
	rec := recovery.NewLenientStrategy()
	p := newParser(src, Config{Recovery: rec})

	_, obj, err := p.ParseIndirect()
	require.NoError(t, err)
	st := obj.(*raw.StreamObj)
	assert.Equal(t, "hello world", string(st.Data))
	n, _ := st.Dict.GetInt("Length")
	assert.EqualValues(t, 11, n, "Length is corrected to the scanned size")
	assert.Equal(t, 1, rec.Count(recovery.IssueStreamLength))
}

func TestParseIndirectHugeLengthScansForward(t *testing.T) {
	cases := map[string]struct {
		length string
		cfg    Config
	}{
		"overflowing":    {"9223372036854775807", Config{}},
		"over the limit": {"60000000", Config{Limits: security.DefaultLimits()}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			src := "1 0 obj\n<</Length " + tc.length + ">>\nstream\nhello\nendstream\nendobj\n"
			rec := recovery.NewLenientStrategy()
			cfg := tc.cfg
			cfg.Recovery = rec
			_, obj, err := newParser(src, cfg).ParseIndirect()
			require.NoError(t, err)
			st := obj.(*raw.StreamObj)
			assert.Equal(t, "hello", string(st.Data))
			n, _ := st.Dict.GetInt("Length")
			assert.EqualValues(t, 5, n)
			assert.Equal(t, 1, rec.Count(recovery.IssueStreamLength))
		})
	}
}

func TestParseIndirectWrongLengthStrict(t *testing.T) {
	src := "1 0 obj\n<</Length 2>>\nstream\nhello world\nendstream\nendobj\n"
	p := newParser(src, Config{Recovery: recovery.NewStrictStrategy()})
	_, _, err := p.ParseIndirect()
	require.Error(t, err)
	assert.ErrorIs(t, err, recovery.ErrAborted)
}

func TestParseIndirectMissingLength(t *testing.T) {
	src := "1 0 obj\n<</Filter /ASCIIHexDecode>>\nstream\n414243>\nendstream\nendobj\n"
	rec := recovery.NewLenientStrategy()
	p := newParser(src, Config{Recovery: rec})

	_, obj, err := p.ParseIndirect()
	require.NoError(t, err)
	st := obj.(*raw.StreamObj)
	assert.Equal(t, "414243>", string(st.Data))
	assert.Equal(t, 1, rec.Count(recovery.IssueStreamLength))
}

func TestParseIndirectIndirectLength(t *testing.T) {
	src := "1 0 obj\n<</Length 9 0 R>>\nstream\nabcdef\nendstream\nendobj\n"
	p := newParser(src, Config{Recovery: recovery.NewStrictStrategy()})
	var asked raw.ObjectRef
	p.SetLengthResolver(func(ref raw.ObjectRef) (int64, bool) {
		asked = ref
		return 6, true
	})

	_, obj, err := p.ParseIndirect()
	require.NoError(t, err)
	assert.Equal(t, raw.ObjectRef{Num: 9}, asked)
	assert.Equal(t, "abcdef", string(obj.(*raw.StreamObj).Data))
}

func TestParseIndirectUnresolvedLength(t *testing.T) {
	src := "1 0 obj\n<</Length 9 0 R>>\nstream\nabcdef\nendstream\nendobj\n"
	rec := recovery.NewLenientStrategy()
	p := newParser(src, Config{Recovery: rec})
	p.SetLengthResolver(func(raw.ObjectRef) (int64, bool) { return 0, false })

	_, obj, err := p.ParseIndirect()
	require.NoError(t, err)
	st := obj.(*raw.StreamObj)
	assert.Equal(t, "abcdef", string(st.Data))
	n, _ := st.Dict.GetInt("Length")
	assert.EqualValues(t, 6, n)
	assert.Equal(t, 1, rec.Count(recovery.IssueStreamLength))
}

func TestParseIndirectMissingEndobj(t *testing.T) {
	src := "1 0 obj\n<</A 1>>\n2 0 obj\n(x)\nendobj\n"
	rec := recovery.NewLenientStrategy()
	p := newParser(src, Config{Recovery: rec})

	ref, obj, err := p.ParseIndirect()
	require.NoError(t, err)
	assert.Equal(t, 1, ref.Num)
	assert.IsType(t, &raw.DictObj{}, obj)
	assert.Equal(t, 1, rec.Count(recovery.IssueSyntax))

	ref, obj, err = p.ParseIndirect()
	require.NoError(t, err)
	assert.Equal(t, 2, ref.Num)
	assert.Equal(t, raw.Str([]byte("x")), obj)
}

func TestParseIndirectEmptyObjectIsNull(t *testing.T) {
	p := newParser("4 0 obj endobj", Config{})
	_, obj, err := p.ParseIndirect()
	require.NoError(t, err)
	assert.Equal(t, raw.Null(), obj)
}

func TestParseIndirectBadHeader(t *testing.T) {
	for _, src := range []string{"1 obj (x) endobj", "0 0 obj null endobj", "/Name 0 obj"} {
		p := newParser(src, Config{})
		_, _, err := p.ParseIndirect()
		assert.ErrorIs(t, err, ErrSyntax, src)
	}
}

func TestParseIndirectUnclosedDictBeforeStream(t *testing.T) {
	src := "1 0 obj\n<</Length 3\nstream\nabc\nendstream\nendobj\n"
	rec := recovery.NewLenientStrategy()
	p := newParser(src, Config{Recovery: rec})

	_, obj, err := p.ParseIndirect()
	require.NoError(t, err)
	st, ok := obj.(*raw.StreamObj)
	require.True(t, ok, "got %T", obj)
	assert.Equal(t, "abc", string(st.Data))
}

func TestParseIndirectRecoveryCarriesObjectID(t *testing.T) {
	src := "12 3 obj\n<</Length 1>>\nstream\r\rabc\nendstream\nendobj\n"
	rec := recovery.NewLenientStrategy()
	p := newParser(src, Config{Recovery: rec})

	_, _, err := p.ParseIndirect()
	require.NoError(t, err)
	events := rec.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, 12, events[0].Location.ObjectNum)
	assert.Equal(t, 3, events[0].Location.ObjectGen)
}
