// Package render produces PNG page previews with MuPDF (go-fitz).
//
// Preview pixels are only for display. The page sizes reported alongside
// them come from the editor's page geometry, in points, so that the client
// can send operations in the same coordinate system the editor uses.
package render

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/models"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/editor"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/jobstore"
)

// DefaultZoom renders previews at 144 DPI.
const DefaultZoom = 2.0

// Renderer renders every page of a document to PNG.
type Renderer struct {
	Zoom float64
}

// New creates a renderer. A non-positive zoom falls back to DefaultZoom.
func New(zoom float64) *Renderer {
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	return &Renderer{Zoom: zoom}
}

// Render writes page_0001.png, page_0002.png, ... into dir and returns the
// metadata of every page. jobID is used to build the preview paths
// relative to the media root.
func (r *Renderer) Render(pdfPath, dir, jobID string) ([]models.PageMeta, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create previews dir: %w", err)
	}

	pages, err := Pages(pdfPath, jobID)
	if err != nil {
		return nil, err
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open document for rendering: %w", err)
	}
	defer doc.Close()

	if n := doc.NumPage(); n != len(pages) {
		return nil, fmt.Errorf("renderer sees %d pages, editor sees %d", n, len(pages))
	}

	dpi := 72 * r.Zoom
	for i := range pages {
		img, err := doc.ImageDPI(i, dpi)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", i+1, err)
		}
		if err := writePNG(filepath.Join(dir, jobstore.PreviewName(i)), img); err != nil {
			return nil, fmt.Errorf("failed to write preview for page %d: %w", i+1, err)
		}
	}
	return pages, nil
}

// Pages returns the page metadata of a document without rendering it.
func Pages(pdfPath, jobID string) ([]models.PageMeta, error) {
	doc, err := editor.Open(pdfPath)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	pages := make([]models.PageMeta, doc.PageCount())
	for i := range pages {
		geom, err := doc.Geometry(i)
		if err != nil {
			return nil, err
		}
		pages[i] = models.PageMeta{
			PageIndex:  i,
			PageWidth:  geom.Width(),
			PageHeight: geom.Height(),
			PreviewRel: jobstore.PreviewRel(jobID, jobstore.PreviewName(i)),
		}
	}
	return pages, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
