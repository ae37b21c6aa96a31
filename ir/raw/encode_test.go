package raw

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendNumber(t *testing.T) {
	cases := []struct {
		in   NumberObj
		want string
	}{
		{NumberInt(0), "0"},
		{NumberInt(-32768), "-32768"},
		{NumberInt(-2147483648), "-2147483648"},
		{NumberInt(-2147483649), "-2147483649"},
		{NumberFloat(-2147483648), "-2147483648.0"},
		{NumberFloat(0.123), "0.123"},
		{NumberFloat(-0.456), "-0.456"},
		{NumberFloat(1.5e-7), "0.00000015"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, string(AppendNumber(nil, tc.in)))
	}
}

func TestAppendNumberNonFinite(t *testing.T) {
	assert.Equal(t, "0.0", string(AppendNumber(nil, NumberFloat(math.NaN()))))
	for _, sign := range []int{1, -1} {
		out := string(AppendNumber(nil, NumberFloat(math.Inf(sign))))
		assert.NotContains(t, out, "Inf")
		f, err := strconv.ParseFloat(out, 64)
		require.NoError(t, err)
		assert.Equal(t, math.Copysign(math.MaxFloat64, float64(sign)), f)
	}
}

func TestNumberIntClassification(t *testing.T) {
	assert.Equal(t, Int32, NumberInt(2147483647).Kind)
	assert.Equal(t, Int64, NumberInt(2147483648).Kind)
	assert.Equal(t, Int32, NumberInt(-2147483648).Kind)
	assert.Equal(t, Int64, NumberInt(-2147483649).Kind)
}

func TestAppendNameEscapes(t *testing.T) {
	assert.Equal(t, "/Type", string(AppendName(nil, "Type")))
	assert.Equal(t, "/A#20B", string(AppendName(nil, "A B")))
	assert.Equal(t, "/a#23b#2Fc", string(AppendName(nil, "a#b/c")))
	assert.Equal(t, "/#C3#A9", string(AppendName(nil, "é")))
}

func TestAppendLiteralStringEscapes(t *testing.T) {
	got := string(AppendLiteralString(nil, []byte("a(b)c\\d\n\x01\xff")))
	assert.Equal(t, `(a\(b\)c\\d\n\001\377)`, got)
}

func TestSerializeDictSortedKeys(t *testing.T) {
	d := Dict()
	d.Set("Type", Name("Page"))
	d.Set("Count", NumberInt(3))
	d.Set("Kids", NewArray(Ref(4, 0), Ref(5, 1)))
	d.Set("Title", HexStr([]byte{0xFE, 0xFF}))
	d.Set("Open", Bool(true))
	d.Set("Nil", Null())

	got := string(Serialize(d))
	assert.Equal(t, "<</Count 3/Kids [4 0 R 5 1 R]/Nil null/Open true/Title <FEFF>/Type /Page>>", got)
}

func TestSerializeStream(t *testing.T) {
	d := Dict()
	d.Set("Length", NumberInt(5))
	got := string(Serialize(NewStream(d, []byte("hello"))))
	assert.Equal(t, "<</Length 5>>\nstream\nhello\nendstream", got)
}

func TestDeepCopyIsIndependent(t *testing.T) {
	inner := Dict()
	inner.Set("K", Str([]byte("v")))
	outer := Dict()
	outer.Set("Inner", inner)
	outer.Set("Arr", NewArray(NumberInt(1)))

	cp := DeepCopy(outer).(*DictObj)
	inner.Set("K", Str([]byte("changed")))
	arr, _ := outer.GetArray("Arr")
	arr.Append(NumberInt(2))

	ci, ok := cp.GetDict("Inner")
	require.True(t, ok)
	v, _ := ci.Get("K")
	assert.Equal(t, "v", string(v.(StringObj).Bytes))
	ca, _ := cp.GetArray("Arr")
	assert.Equal(t, 1, ca.Len())
}

func TestEqual(t *testing.T) {
	a := Dict()
	a.Set("N", NumberInt(1))
	a.Set("R", NumberFloat(1.5))
	a.Set("S", Str([]byte("x")))
	b := DeepCopy(a).(*DictObj)
	assert.True(t, Equal(a, b))

	// width differences are not structural differences
	b.Set("N", NumberObj{I: 1, Kind: Int64})
	assert.True(t, Equal(a, b))

	// literal vs hex form of the same bytes are equal
	b.Set("S", HexStr([]byte("x")))
	assert.True(t, Equal(a, b))

	b.Set("R", NumberFloat(1.25))
	assert.False(t, Equal(a, b))
}
