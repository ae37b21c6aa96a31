package optimize

import (
	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfcodec/ir/raw"
)

type digest [blake2b.Size256]byte

// hashObject digests the serialized form. Dictionary keys serialize sorted,
// so equal dictionaries hash equal regardless of insertion order.
func hashObject(obj raw.Object) digest {
	h, _ := blake2b.New256(nil)
	if obj == nil {
		h.Write([]byte("nil"))
	} else {
		h.Write([]byte(obj.Type()))
		h.Write([]byte{':'})
		h.Write(raw.Serialize(obj))
	}
	var d digest
	copy(d[:], h.Sum(nil))
	return d
}

// mergeable excludes objects whose identity matters even when their bytes
// match: two equal page objects are still two pages.
func mergeable(obj raw.Object) bool {
	var d *raw.DictObj
	switch t := obj.(type) {
	case *raw.DictObj:
		d = t
	case *raw.StreamObj:
		d = t.Dict
	default:
		return true
	}
	typ, _ := d.GetName("Type")
	switch typ {
	case "Page", "Pages", "Catalog", "XRef", "ObjStm", "Sig", "Encrypt":
		return false
	}
	return true
}
