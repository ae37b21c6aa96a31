package raw

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeTextASCII(t *testing.T) {
	assert.Equal(t, []byte("Hello"), EncodeText("Hello"))
	s := TextString("Hello")
	assert.False(t, s.Hex)
}

func TestEncodeTextNonBMP(t *testing.T) {
	in := "Grüße 日本 \U0001F600"
	b := EncodeText(in)
	assert.Equal(t, []byte{0xFE, 0xFF}, b[:2])
	// U+1F600 is a surrogate pair
	assert.Contains(t, string(b), string([]byte{0xD8, 0x3D, 0xDE, 0x00}))
	assert.Equal(t, in, DecodeText(b))
	assert.True(t, TextString(in).Hex)
}

func TestDecodeTextPDFDoc(t *testing.T) {
	assert.Equal(t, "a•b€", DecodeText([]byte{'a', 0x80, 'b', 0xA0}))
	assert.Equal(t, "é", DecodeText([]byte{0xE9}))
}

func TestDecodeTextUTF8BOM(t *testing.T) {
	assert.Equal(t, "héllo", DecodeText(append([]byte{0xEF, 0xBB, 0xBF}, "héllo"...)))
}
