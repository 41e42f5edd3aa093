package contentstream

import "math"

// Matrix is a PDF transformation matrix [a b c d e f].
type Matrix [6]float64

// Identity is the identity transformation.
var Identity = Matrix{1, 0, 0, 1, 0, 0}

// Translate returns a translation matrix.
func Translate(tx, ty float64) Matrix {
	return Matrix{1, 0, 0, 1, tx, ty}
}

// Multiply returns m × n, i.e. the transformation that applies m first and
// then n.
func (m Matrix) Multiply(n Matrix) Matrix {
	return Matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

// Apply transforms the point (x, y).
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// Scale is the mean linear scale factor of m, used to size line widths.
func (m Matrix) Scale() float64 {
	return math.Sqrt(math.Abs(m[0]*m[3] - m[1]*m[2]))
}

// Operands renders the matrix as six numeric operands.
func (m Matrix) Operands() []Operand {
	out := make([]Operand, 6)
	for i, v := range m {
		out[i] = Number(v)
	}
	return out
}

// Rect is an axis-aligned rectangle in user space with X0 <= X1 and Y0 <= Y1.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Intersects reports whether r and o overlap. Rectangles that only touch
// along an edge do not intersect.
func (r Rect) Intersects(o Rect) bool {
	return r.X0 < o.X1 && o.X0 < r.X1 && r.Y0 < o.Y1 && o.Y0 < r.Y1
}

// Expand grows r by d on every side.
func (r Rect) Expand(d float64) Rect {
	return Rect{r.X0 - d, r.Y0 - d, r.X1 + d, r.Y1 + d}
}

// bounds accumulates points into a bounding rectangle.
type bounds struct {
	rect Rect
	ok   bool
}

func (b *bounds) add(x, y float64) {
	if !b.ok {
		b.rect = Rect{x, y, x, y}
		b.ok = true
		return
	}
	b.rect.X0 = math.Min(b.rect.X0, x)
	b.rect.Y0 = math.Min(b.rect.Y0, y)
	b.rect.X1 = math.Max(b.rect.X1, x)
	b.rect.Y1 = math.Max(b.rect.Y1, y)
}

// Quad returns the bounding rectangle of the unit-space box
// [x0,x1]×[y0,y1] mapped through m.
func (m Matrix) Quad(x0, y0, x1, y1 float64) Rect {
	var b bounds
	for _, p := range [4][2]float64{{x0, y0}, {x1, y0}, {x0, y1}, {x1, y1}} {
		b.add(m.Apply(p[0], p[1]))
	}
	return b.rect
}
