package raw

import (
	"math"
	"sort"
)

// Concrete implementations for raw objects.

// NullObj is the PDF null object.
type NullObj struct{}

func (NullObj) Type() string     { return KindNull }
func (NullObj) IsIndirect() bool { return false }
func (NullObj) isObject()        {}

// BoolObj is a PDF boolean.
type BoolObj struct{ V bool }

func (b BoolObj) Type() string     { return KindBoolean }
func (b BoolObj) IsIndirect() bool { return false }
func (b BoolObj) Value() bool      { return b.V }
func (BoolObj) isObject()          {}

// NumberKind records the narrowest representation a numeric literal fits in.
type NumberKind int

const (
	Int32 NumberKind = iota
	Int64
	Real
)

func (k NumberKind) String() string {
	switch k {
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	default:
		return "real"
	}
}

// NumberObj is a PDF numeric value.
type NumberObj struct {
	I    int64
	F    float64
	Kind NumberKind
}

func (n NumberObj) Type() string     { return KindNumber }
func (n NumberObj) IsIndirect() bool { return false }
func (NumberObj) isObject()          {}
func (n NumberObj) IsInteger() bool  { return n.Kind != Real }
func (n NumberObj) Int() int64 {
	if n.Kind == Real {
		return int64(n.F)
	}
	return n.I
}
func (n NumberObj) Float() float64 {
	if n.Kind == Real {
		return n.F
	}
	return float64(n.I)
}

// StringObj is a PDF string. Hex records whether it is written as <...>.
type StringObj struct {
	Bytes []byte
	Hex   bool
}

func (s StringObj) Type() string     { return KindString }
func (s StringObj) IsIndirect() bool { return false }
func (StringObj) isObject()          {}
func (s StringObj) Value() []byte    { return s.Bytes }
func (s StringObj) IsHex() bool      { return s.Hex }

// Text decodes the string as a PDF text string.
func (s StringObj) Text() string { return DecodeText(s.Bytes) }

// NameObj is a PDF name without the leading slash.
type NameObj struct{ Val string }

func (n NameObj) Type() string     { return KindName }
func (n NameObj) IsIndirect() bool { return false }
func (NameObj) isObject()          {}
func (n NameObj) Value() string    { return n.Val }

// ArrayObj is a PDF array.
type ArrayObj struct{ Items []Object }

func (a *ArrayObj) Type() string     { return KindArray }
func (a *ArrayObj) IsIndirect() bool { return false }
func (*ArrayObj) isObject()          {}
func (a *ArrayObj) Get(i int) (Object, bool) {
	if i < 0 || i >= len(a.Items) {
		return nil, false
	}
	return a.Items[i], true
}
func (a *ArrayObj) Len() int        { return len(a.Items) }
func (a *ArrayObj) Append(o Object) { a.Items = append(a.Items, o) }

// DictObj is a PDF dictionary. Keys are unique; order is not significant.
type DictObj struct{ KV map[string]Object }

func (d *DictObj) Type() string     { return KindDict }
func (d *DictObj) IsIndirect() bool { return false }
func (*DictObj) isObject()          {}

func (d *DictObj) Get(key string) (Object, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.KV[key]
	return o, ok
}

func (d *DictObj) Set(key string, value Object) {
	if d.KV == nil {
		d.KV = make(map[string]Object)
	}
	d.KV[key] = value
}

func (d *DictObj) Delete(key string) { delete(d.KV, key) }

// Keys returns the keys in sorted order.
func (d *DictObj) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *DictObj) Len() int {
	if d == nil {
		return 0
	}
	return len(d.KV)
}

// GetName returns the value of a name entry.
func (d *DictObj) GetName(key string) (string, bool) {
	v, ok := d.Get(key)
	if !ok {
		return "", false
	}
	n, ok := v.(NameObj)
	return n.Val, ok
}

// GetInt returns the value of an integer entry.
func (d *DictObj) GetInt(key string) (int64, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(NumberObj)
	if !ok || !n.IsInteger() {
		return 0, false
	}
	return n.I, true
}

// GetRef returns the value of a reference entry.
func (d *DictObj) GetRef(key string) (ObjectRef, bool) {
	v, ok := d.Get(key)
	if !ok {
		return ObjectRef{}, false
	}
	r, ok := v.(RefObj)
	return r.R, ok
}

// GetDict returns a direct dictionary entry.
func (d *DictObj) GetDict(key string) (*DictObj, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	dd, ok := v.(*DictObj)
	return dd, ok
}

// GetArray returns a direct array entry.
func (d *DictObj) GetArray(key string) (*ArrayObj, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	a, ok := v.(*ArrayObj)
	return a, ok
}

// StreamObj is a stream: a dictionary plus its (possibly filtered) payload.
type StreamObj struct {
	Dict *DictObj
	Data []byte
}

func (s *StreamObj) Type() string         { return KindStream }
func (s *StreamObj) IsIndirect() bool     { return false }
func (*StreamObj) isObject()              {}
func (s *StreamObj) Dictionary() *DictObj { return s.Dict }
func (s *StreamObj) RawData() []byte      { return s.Data }
func (s *StreamObj) Length() int64        { return int64(len(s.Data)) }

// RefObj is an indirect reference. It does not own its referent.
type RefObj struct{ R ObjectRef }

func (r RefObj) Type() string     { return KindRef }
func (r RefObj) IsIndirect() bool { return true }
func (RefObj) isObject()          {}
func (r RefObj) Ref() ObjectRef   { return r.R }

// Helpers
func Name(v string) NameObj { return NameObj{Val: v} }

// NumberInt classifies i as a 32-bit or 64-bit integer.
func NumberInt(i int64) NumberObj {
	if i < math.MinInt32 || i > math.MaxInt32 {
		return NumberObj{I: i, Kind: Int64}
	}
	return NumberObj{I: i, Kind: Int32}
}

func NumberFloat(f float64) NumberObj    { return NumberObj{F: f, Kind: Real} }
func Bool(v bool) BoolObj                { return BoolObj{V: v} }
func Null() NullObj                      { return NullObj{} }
func Str(b []byte) StringObj             { return StringObj{Bytes: b} }
func HexStr(b []byte) StringObj          { return StringObj{Bytes: b, Hex: true} }
func NewArray(items ...Object) *ArrayObj { return &ArrayObj{Items: items} }
func Dict() *DictObj                     { return &DictObj{KV: make(map[string]Object)} }
func Ref(num, gen int) RefObj            { return RefObj{R: ObjectRef{Num: num, Gen: gen}} }

func NewStream(dict *DictObj, data []byte) *StreamObj {
	return &StreamObj{Dict: dict, Data: data}
}

// DeepCopy returns a copy of o that shares no mutable state with it.
func DeepCopy(o Object) Object {
	switch v := o.(type) {
	case *ArrayObj:
		out := &ArrayObj{Items: make([]Object, len(v.Items))}
		for i, it := range v.Items {
			out.Items[i] = DeepCopy(it)
		}
		return out
	case *DictObj:
		out := &DictObj{KV: make(map[string]Object, len(v.KV))}
		for k, it := range v.KV {
			out.KV[k] = DeepCopy(it)
		}
		return out
	case *StreamObj:
		d, _ := DeepCopy(v.Dict).(*DictObj)
		return &StreamObj{Dict: d, Data: append([]byte(nil), v.Data...)}
	case StringObj:
		return StringObj{Bytes: append([]byte(nil), v.Bytes...), Hex: v.Hex}
	default:
		return o
	}
}

// Walk calls fn for o and every value nested inside it, depth first.
func Walk(o Object, fn func(Object)) {
	fn(o)
	switch v := o.(type) {
	case *ArrayObj:
		for _, it := range v.Items {
			Walk(it, fn)
		}
	case *DictObj:
		for _, k := range v.Keys() {
			Walk(v.KV[k], fn)
		}
	case *StreamObj:
		if v.Dict != nil {
			Walk(v.Dict, fn)
		}
	}
}
