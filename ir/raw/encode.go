package raw

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// AppendObject appends the PDF syntax for o to dst. Stream payloads are written
// verbatim between stream/endstream; the caller is responsible for /Length.
func AppendObject(dst []byte, o Object) []byte {
	switch v := o.(type) {
	case nil:
		return append(dst, "null"...)
	case NullObj:
		return append(dst, "null"...)
	case BoolObj:
		if v.V {
			return append(dst, "true"...)
		}
		return append(dst, "false"...)
	case NumberObj:
		return AppendNumber(dst, v)
	case NameObj:
		return AppendName(dst, v.Val)
	case StringObj:
		if v.Hex {
			return AppendHexString(dst, v.Bytes)
		}
		return AppendLiteralString(dst, v.Bytes)
	case RefObj:
		dst = strconv.AppendInt(dst, int64(v.R.Num), 10)
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, int64(v.R.Gen), 10)
		return append(dst, " R"...)
	case *ArrayObj:
		dst = append(dst, '[')
		for i, it := range v.Items {
			if i > 0 {
				dst = append(dst, ' ')
			}
			dst = AppendObject(dst, it)
		}
		return append(dst, ']')
	case *DictObj:
		return appendDict(dst, v)
	case *StreamObj:
		d := v.Dict
		if d == nil {
			d = Dict()
		}
		dst = appendDict(dst, d)
		dst = append(dst, "\nstream\n"...)
		dst = append(dst, v.Data...)
		return append(dst, "\nendstream"...)
	default:
		return append(dst, fmt.Sprintf("%v", v)...)
	}
}

// Serialize returns the PDF syntax for o.
func Serialize(o Object) []byte { return AppendObject(nil, o) }

func appendDict(dst []byte, d *DictObj) []byte {
	dst = append(dst, "<<"...)
	for _, k := range d.Keys() {
		dst = AppendName(dst, k)
		dst = append(dst, ' ')
		dst = AppendObject(dst, d.KV[k])
	}
	return append(dst, ">>"...)
}

// AppendNumber writes integers in decimal and reals in the shortest form that
// reads back to the same float64. Integral reals keep a trailing ".0" so the
// real classification survives a round trip. Non-finite reals have no syntax:
// NaN is written as 0.0 and infinities as the largest finite real. The writer
// refuses them before it gets here.
func AppendNumber(dst []byte, n NumberObj) []byte {
	if n.Kind != Real {
		return strconv.AppendInt(dst, n.I, 10)
	}
	f := n.F
	switch {
	case math.IsNaN(f):
		f = 0
	case math.IsInf(f, 0):
		f = math.Copysign(math.MaxFloat64, f)
	}
	start := len(dst)
	dst = strconv.AppendFloat(dst, f, 'f', -1, 64)
	if bytes.IndexByte(dst[start:], '.') < 0 {
		dst = append(dst, ".0"...)
	}
	return dst
}

// AppendName writes /name, escaping delimiters, whitespace and non-regular bytes as #XX.
func AppendName(dst []byte, name string) []byte {
	dst = append(dst, '/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7E || c == '#' || IsDelimiter(c) {
			dst = append(dst, '#', hexDigits[c>>4], hexDigits[c&0x0F])
			continue
		}
		dst = append(dst, c)
	}
	return dst
}

// AppendLiteralString writes (...) escaping backslash, parentheses and control bytes.
func AppendLiteralString(dst []byte, b []byte) []byte {
	dst = append(dst, '(')
	for _, c := range b {
		switch c {
		case '\\', '(', ')':
			dst = append(dst, '\\', c)
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		case '\b':
			dst = append(dst, '\\', 'b')
		case '\f':
			dst = append(dst, '\\', 'f')
		default:
			if c < 0x20 || c > 0x7E {
				dst = append(dst, '\\', '0'+(c>>6), '0'+((c>>3)&7), '0'+(c&7))
				continue
			}
			dst = append(dst, c)
		}
	}
	return append(dst, ')')
}

// AppendHexString writes <...> in upper-case hex.
func AppendHexString(dst []byte, b []byte) []byte {
	dst = append(dst, '<')
	for _, c := range b {
		dst = append(dst, hexDigits[c>>4], hexDigits[c&0x0F])
	}
	return append(dst, '>')
}

const hexDigits = "0123456789ABCDEF"

// IsWhitespace reports whether c is PDF whitespace.
func IsWhitespace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

// IsDelimiter reports whether c is a PDF delimiter.
func IsDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
