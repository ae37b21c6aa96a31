package raw

import (
	"fmt"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Valid reports whether r can name an indirect object. Object 0 is the free-list head.
func (r ObjectRef) Valid() bool { return r.Num >= 1 && r.Gen >= 0 }

// Object is the closed set of PDF values. Only the types in this package implement it.
type Object interface {
	Type() string
	IsIndirect() bool
	isObject()
}

// Kind names for Object.Type.
const (
	KindNull    = "null"
	KindBoolean = "boolean"
	KindNumber  = "number"
	KindString  = "string"
	KindName    = "name"
	KindArray   = "array"
	KindDict    = "dict"
	KindStream  = "stream"
	KindRef     = "ref"
)

// Document is the eagerly parsed form of a file: every object reachable from the
// cross-reference map, keyed by identifier, plus the merged trailer.
type Document struct {
	Objects   map[ObjectRef]Object
	Trailer   *DictObj
	Version   string // e.g., "1.7"
	StartXRef int64
	Encrypted bool
	Repaired  bool
}

// Root returns the catalog reference from the trailer.
func (d *Document) Root() (ObjectRef, bool) {
	if d == nil || d.Trailer == nil {
		return ObjectRef{}, false
	}
	return d.Trailer.GetRef("Root")
}
