package raw

import (
	"bytes"
	"math"
)

// Equal reports whether a and b are structurally equal: same kinds, same key sets,
// same values up to numeric representation width, same reference topology.
// Literal and hex strings with identical bytes compare equal.
func Equal(a, b Object) bool {
	switch x := a.(type) {
	case nil, NullObj:
		switch b.(type) {
		case nil, NullObj:
			return true
		}
		return false
	case BoolObj:
		y, ok := b.(BoolObj)
		return ok && x.V == y.V
	case NumberObj:
		y, ok := b.(NumberObj)
		if !ok {
			return false
		}
		if x.IsInteger() && y.IsInteger() {
			return x.I == y.I
		}
		return floatEqual(x.Float(), y.Float())
	case StringObj:
		y, ok := b.(StringObj)
		return ok && bytes.Equal(x.Bytes, y.Bytes)
	case NameObj:
		y, ok := b.(NameObj)
		return ok && x.Val == y.Val
	case RefObj:
		y, ok := b.(RefObj)
		return ok && x.R == y.R
	case *ArrayObj:
		y, ok := b.(*ArrayObj)
		if !ok || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !Equal(x.Items[i], y.Items[i]) {
				return false
			}
		}
		return true
	case *DictObj:
		y, ok := b.(*DictObj)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for k, v := range x.KV {
			w, ok := y.KV[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case *StreamObj:
		y, ok := b.(*StreamObj)
		return ok && Equal(x.Dict, y.Dict) && bytes.Equal(x.Data, y.Data)
	}
	return false
}

func floatEqual(a, b float64) bool {
	if a == b {
		return true
	}
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	return diff <= 1e-9*math.Max(scale, 1)
}
