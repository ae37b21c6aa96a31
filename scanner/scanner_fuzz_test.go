package scanner

import (
	"bytes"
	"testing"

	"github.com/wudi/pdfcodec/ir/raw"
)

func FuzzScanner(f *testing.F) {
	f.Add([]byte("<< /Type /Page >>"))
	f.Add([]byte("[ 1 2 3 ]"))
	f.Add([]byte("stream\n...data...\nendstream"))
	f.Add([]byte("(Hello World)"))
	f.Add([]byte("<AABBCC>"))
	f.Add([]byte("-.456 -2147483648. 1.2.3"))

	f.Fuzz(func(t *testing.T, data []byte) {
		r := bytes.NewReader(data)
		s := New(r, Config{
			MaxStringLength: 1024,
			MaxArrayDepth:   10,
			MaxDictDepth:    10,
			MaxStreamLength: 1024,
			WindowSize:      1024,
		})

		for i := 0; i < 10000; i++ {
			_, err := s.Next()
			if err != nil {
				break
			}
		}
	})
}

func FuzzParseNumber(f *testing.F) {
	f.Add([]byte("-2147483649"))
	f.Add([]byte("-.456"))
	f.Fuzz(func(t *testing.T, lit []byte) {
		n, _ := ParseNumber(lit)
		switch n.Kind {
		case raw.Int32, raw.Int64, raw.Real:
		default:
			t.Fatalf("unexpected kind %v", n.Kind)
		}
	})
}
