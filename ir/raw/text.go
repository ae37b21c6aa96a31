package raw

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

var (
	utf16BE = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
)

// pdfDocDiff holds the PDFDocEncoding code points that differ from Latin-1.
var pdfDocDiff = map[byte]rune{
	0x18: '˘', 0x19: 'ˇ', 0x1A: 'ˆ', 0x1B: '˙',
	0x1C: '˝', 0x1D: '˛', 0x1E: '˚', 0x1F: '˜',
	0x80: '•', 0x81: '†', 0x82: '‡', 0x83: '…',
	0x84: '—', 0x85: '–', 0x86: 'ƒ', 0x87: '⁄',
	0x88: '‹', 0x89: '›', 0x8A: '−', 0x8B: '‰',
	0x8C: '„', 0x8D: '“', 0x8E: '”', 0x8F: '‘',
	0x90: '’', 0x91: '‚', 0x92: '™', 0x93: 'ﬁ',
	0x94: 'ﬂ', 0x95: 'Ł', 0x96: 'Œ', 0x97: 'Š',
	0x98: 'Ÿ', 0x99: 'Ž', 0x9A: 'ı', 0x9B: 'ł',
	0x9C: 'œ', 0x9D: 'š', 0x9E: 'ž', 0xA0: '€',
}

// DecodeText interprets b as a PDF text string: UTF-16BE with BOM, UTF-8 with BOM,
// or PDFDocEncoding otherwise.
func DecodeText(b []byte) string {
	switch {
	case len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF:
		out, err := utf16BE.NewDecoder().Bytes(b)
		if err == nil {
			return string(out)
		}
	case bytes.HasPrefix(b, utf8BOM):
		return string(b[len(utf8BOM):])
	}
	var sb bytes.Buffer
	for _, c := range b {
		if r, ok := pdfDocDiff[c]; ok {
			sb.WriteRune(r)
			continue
		}
		sb.WriteRune(rune(c))
	}
	return sb.String()
}

// EncodeText produces the bytes of a text string for s. Printable ASCII is kept
// as is; anything else is written as UTF-16BE with a byte order mark so that
// characters outside the basic plane survive as surrogate pairs.
func EncodeText(s string) []byte {
	if isPlainASCII(s) {
		return []byte(s)
	}
	out, err := utf16BE.NewEncoder().Bytes([]byte(s))
	if err != nil {
		// invalid UTF-8 input: keep bytes untouched
		return []byte(s)
	}
	return out
}

// TextString wraps s as a string object, choosing hex form for UTF-16 output.
func TextString(s string) StringObj {
	b := EncodeText(s)
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		return HexStr(b)
	}
	return Str(b)
}

func isPlainASCII(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x80 || (c < 0x20 && c != '\t' && c != '\n' && c != '\r') {
			return false
		}
	}
	return true
}
