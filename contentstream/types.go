package contentstream

import "github.com/wudi/pdfcodec/coords"

// Graphics state parameters, kept as the numbers their operators set.
type (
	LineCap        int
	LineJoin       int
	TextRenderMode int
)

// SegmentKind tags one path construction step.
type SegmentKind int

const (
	SegMove SegmentKind = iota
	SegLine
	SegCurve
	SegClose
)

// Segment is a path step in user space. Curves list their control points in
// Ctrl; SegClose carries no coordinates.
type Segment struct {
	Kind SegmentKind
	To   coords.Point
	Ctrl []coords.Point
}

// Path is the current path between construction and painting.
type Path []Segment

// Points returns every coordinate the path touches, control points included.
// A curve stays inside the hull of its control points.
func (p Path) Points() []coords.Point {
	out := make([]coords.Point, 0, len(p))
	for _, s := range p {
		if s.Kind == SegClose {
			continue
		}
		out = append(out, s.Ctrl...)
		out = append(out, s.To)
	}
	return out
}
