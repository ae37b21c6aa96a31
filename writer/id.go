package writer

import (
	"crypto/rand"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfcodec/ir/raw"
)

const idSize = 16

// contentID digests the body written so far.
func contentID(body []byte) []byte {
	h, _ := blake2b.New(idSize, nil)
	h.Write(body)
	return h.Sum(nil)
}

// fileID returns the /ID pair. The first element is permanent: it is taken
// from prev when present. Deterministic output uses the content digest for
// both; otherwise the second element is fresh for every revision.
func fileID(prev *raw.DictObj, body []byte, deterministic bool) *raw.ArrayObj {
	sum := contentID(body)
	first := permanentID(prev)
	if deterministic {
		if first == nil {
			first = sum
		}
		return raw.NewArray(raw.HexStr(first), raw.HexStr(sum))
	}
	if first == nil {
		first = randomID(sum)
	}
	return raw.NewArray(raw.HexStr(first), raw.HexStr(randomID(sum)))
}

func permanentID(trailer *raw.DictObj) []byte {
	if trailer == nil {
		return nil
	}
	arr, ok := trailer.GetArray("ID")
	if !ok || arr.Len() == 0 {
		return nil
	}
	if s, ok := arr.Items[0].(raw.StringObj); ok && len(s.Bytes) > 0 {
		return append([]byte(nil), s.Bytes...)
	}
	return nil
}

// randomID mixes fresh randomness into seed. A failing random source still
// yields a usable, if predictable, identifier.
func randomID(seed []byte) []byte {
	var salt [idSize]byte
	rand.Read(salt[:])
	h, _ := blake2b.New(idSize, salt[:])
	h.Write(seed)
	return h.Sum(nil)
}
