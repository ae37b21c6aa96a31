package coords

// Matrix is a PDF transformation matrix [a b c d e f].
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Multiply returns m×o, i.e. m applied first.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2], m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2], m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4], m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

// Rect is an axis-aligned box.
type Rect struct{ LLX, LLY, URX, URY float64 }

// Union grows r to cover p. A zero Rect is treated as empty when empty is true.
func (r Rect) Union(p Point, empty bool) Rect {
	if empty {
		return Rect{p.X, p.Y, p.X, p.Y}
	}
	if p.X < r.LLX {
		r.LLX = p.X
	}
	if p.Y < r.LLY {
		r.LLY = p.Y
	}
	if p.X > r.URX {
		r.URX = p.X
	}
	if p.Y > r.URY {
		r.URY = p.Y
	}
	return r
}
