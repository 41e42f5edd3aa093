package editor

import (
	"math"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/editor/contentstream"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PageGeometry is the visible area of a page: its crop box in PDF user space
// and the clockwise rotation applied when the page is displayed.
type PageGeometry struct {
	Box    contentstream.Rect
	Rotate int
}

// NewPageGeometry builds the geometry from the page's crop box, falling back
// to the media box, and its /Rotate value.
func NewPageGeometry(cropBox, mediaBox *types.Rectangle, rotate int) PageGeometry {
	box := cropBox
	if box == nil {
		box = mediaBox
	}
	g := PageGeometry{Rotate: normalizeRotation(rotate)}
	if box == nil {
		// US Letter, the PDF default media box.
		g.Box = contentstream.Rect{X0: 0, Y0: 0, X1: 612, Y1: 792}
		return g
	}
	g.Box = contentstream.Rect{
		X0: math.Min(box.LL.X, box.UR.X),
		Y0: math.Min(box.LL.Y, box.UR.Y),
		X1: math.Max(box.LL.X, box.UR.X),
		Y1: math.Max(box.LL.Y, box.UR.Y),
	}
	return g
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	return (r + 45) / 90 * 90 % 360
}

// Width is the displayed page width.
func (g PageGeometry) Width() float64 {
	if g.Rotate == 90 || g.Rotate == 270 {
		return g.Box.Y1 - g.Box.Y0
	}
	return g.Box.X1 - g.Box.X0
}

// Height is the displayed page height.
func (g PageGeometry) Height() float64 {
	if g.Rotate == 90 || g.Rotate == 270 {
		return g.Box.X1 - g.Box.X0
	}
	return g.Box.Y1 - g.Box.Y0
}

// DisplayMatrix maps display coordinates (origin at the top-left of the
// displayed page, y down) to PDF user space.
func (g PageGeometry) DisplayMatrix() contentstream.Matrix {
	b := g.Box
	switch g.Rotate {
	case 90:
		return contentstream.Matrix{0, 1, 1, 0, b.X0, b.Y0}
	case 180:
		return contentstream.Matrix{-1, 0, 0, 1, b.X1, b.Y0}
	case 270:
		return contentstream.Matrix{0, -1, -1, 0, b.X1, b.Y1}
	default:
		return contentstream.Matrix{1, 0, 0, -1, b.X0, b.Y1}
	}
}

// UserRect maps a display rectangle to user space.
func (g PageGeometry) UserRect(x, y, w, h float64) contentstream.Rect {
	return g.DisplayMatrix().Quad(x, y, x+w, y+h)
}
