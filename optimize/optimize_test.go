package optimize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcodec/ir/raw"
)

func ref(n int) raw.ObjectRef { return raw.ObjectRef{Num: n} }

func TestCombineIdenticalIndirectObjects(t *testing.T) {
	doc := &raw.Document{
		Objects: map[raw.ObjectRef]raw.Object{
			ref(1): raw.NewArray(raw.NumberInt(1), raw.NumberInt(2)),
			ref(2): raw.NewArray(raw.NumberInt(1), raw.NumberInt(2)),
			ref(3): raw.NewArray(raw.NumberInt(3)),
			ref(4): raw.NewArray(raw.Ref(1, 0), raw.Ref(2, 0)),
		},
		Trailer: raw.Dict(),
	}
	doc.Trailer.Set("Root", raw.Ref(4, 0))

	rep, err := New(Config{CombineIdenticalIndirectObjects: true}).Optimize(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []raw.ObjectRef{ref(2)}, rep.Removed)
	assert.Len(t, doc.Objects, 3)

	obj4 := doc.Objects[ref(4)].(*raw.ArrayObj)
	assert.Equal(t, raw.Ref(1, 0), obj4.Items[0])
	assert.Equal(t, raw.Ref(1, 0), obj4.Items[1])
}

func TestCombineCascades(t *testing.T) {
	// merging 1 and 2 makes 3 and 4 identical
	doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{
		ref(1): raw.NewStream(raw.Dict(), []byte("abc")),
		ref(2): raw.NewStream(raw.Dict(), []byte("abc")),
		ref(3): raw.NewArray(raw.Ref(1, 0)),
		ref(4): raw.NewArray(raw.Ref(2, 0)),
		ref(5): raw.NewArray(raw.Ref(3, 0), raw.Ref(4, 0)),
	}}
	removed, err := Deduplicate(context.Background(), doc)
	require.NoError(t, err)
	assert.ElementsMatch(t, []raw.ObjectRef{ref(2), ref(4)}, removed)
	assert.Equal(t, raw.NewArray(raw.Ref(3, 0), raw.Ref(3, 0)), doc.Objects[ref(5)])
}

func TestPagesAreNeverMerged(t *testing.T) {
	page := func() *raw.DictObj {
		d := raw.Dict()
		d.Set("Type", raw.Name("Page"))
		d.Set("Parent", raw.Ref(3, 0))
		return d
	}
	doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{
		ref(1): page(),
		ref(2): page(),
	}}
	removed, err := Deduplicate(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Len(t, doc.Objects, 2)
}

func TestCombineDuplicateStreamsOnly(t *testing.T) {
	doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{
		ref(1): raw.NewStream(raw.Dict(), []byte("x")),
		ref(2): raw.NewStream(raw.Dict(), []byte("x")),
		ref(3): raw.NewArray(raw.NumberInt(7)),
		ref(4): raw.NewArray(raw.NumberInt(7)),
	}}
	rep, err := New(Config{CombineDuplicateStreams: true}).Optimize(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []raw.ObjectRef{ref(2)}, rep.Removed)
	assert.Contains(t, doc.Objects, ref(4))
}

func TestCombineDuplicateDirectObjects(t *testing.T) {
	doc := &raw.Document{Objects: map[raw.ObjectRef]raw.Object{
		ref(1): raw.NewArray(raw.NewArray(raw.NumberInt(1), raw.NumberInt(2))),
		ref(2): raw.NewArray(raw.NewArray(raw.NumberInt(1), raw.NumberInt(2))),
	}}
	rep, err := New(Config{CombineDuplicateDirectObjects: true}).Optimize(context.Background(), doc)
	require.NoError(t, err)
	require.Equal(t, []raw.ObjectRef{ref(3)}, rep.Added)
	assert.Len(t, doc.Objects, 3)

	for _, n := range []int{1, 2} {
		arr := doc.Objects[ref(n)].(*raw.ArrayObj)
		if _, ok := arr.Items[0].(raw.RefObj); !ok {
			t.Fatalf("object %d: expected reference, got %T", n, arr.Items[0])
		}
	}
	assert.True(t, raw.Equal(raw.NewArray(raw.NumberInt(1), raw.NumberInt(2)), doc.Objects[ref(3)]))
}

func TestCleanUnusedObjects(t *testing.T) {
	doc := &raw.Document{
		Objects: map[raw.ObjectRef]raw.Object{
			ref(1): raw.NewArray(raw.Ref(2, 0)),
			ref(2): raw.NumberInt(5),
			ref(3): raw.NumberInt(6),
		},
		Trailer: raw.Dict(),
	}
	doc.Trailer.Set("Root", raw.Ref(1, 0))
	rep, err := New(Config{CleanUnusedObjects: true}).Optimize(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, []raw.ObjectRef{ref(3)}, rep.Removed)
	assert.NotContains(t, doc.Objects, ref(3))
}
