package document

import "github.com/wudi/pdfcodec/ir/raw"

// Status separates a lookup miss from a damaged file.
type Status int

const (
	NotFound Status = iota
	Found
	StructuralError
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case StructuralError:
		return "structural error"
	}
	return "not found"
}

// Result is the outcome of an object lookup. Object is set only when Found;
// Err only for StructuralError.
type Result struct {
	Status Status
	Object raw.Object
	Err    error
}

func (r Result) OK() bool { return r.Status == Found }

func found(obj raw.Object) Result { return Result{Status: Found, Object: obj} }

func broken(err error) Result { return Result{Status: StructuralError, Err: err} }
