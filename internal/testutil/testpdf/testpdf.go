// Package testpdf builds small, uncompressed PDF files for tests.
package testpdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Page describes one page of a generated document. Content is a raw
// content stream; the font resource /F1 is Helvetica.
type Page struct {
	Width   float64
	Height  float64
	Rotate  int
	Content string
}

// Letter returns a 612x792 page with the given content.
func Letter(content string) Page {
	return Page{Width: 612, Height: 792, Content: content}
}

// Text shows s in Helvetica with its baseline origin at user space (x, y).
func Text(x, y, size float64, s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return fmt.Sprintf("BT /F1 %g Tf %g %g Td (%s) Tj ET\n", size, x, y, r.Replace(s))
}

// Form is a form XObject. Pages list every form of the document in their
// /XObject resources; a form lists the forms that follow it.
type Form struct {
	Name string
	// Matrix is written when set.
	Matrix  []float64
	Content string
}

// Draw paints the named form XObject.
func Draw(name string) string {
	return fmt.Sprintf("/%s Do\n", name)
}

// FilledRect paints a blue rectangle in user space.
func FilledRect(x, y, w, h float64) string {
	return fmt.Sprintf("q 0 0 1 rg %g %g %g %g re f Q\n", x, y, w, h)
}

// Build returns the bytes of a PDF with the given pages.
func Build(pages ...Page) []byte {
	return BuildWithForms(nil, pages...)
}

// BuildWithForms returns the bytes of a PDF with the given forms and pages.
func BuildWithForms(forms []Form, pages ...Page) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	refs := make([]string, len(forms))
	for i, f := range forms {
		refs[i] = fmt.Sprintf("/%s %d 0 R", f.Name, 4+2*len(pages)+i)
	}
	resources := func(refs []string) string {
		if len(refs) == 0 {
			return "<< /Font << /F1 3 0 R >> >>"
		}
		return fmt.Sprintf("<< /Font << /F1 3 0 R >> /XObject << %s >> >>", strings.Join(refs, " "))
	}

	for i, p := range pages {
		page := fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources %s /Contents %d 0 R",
			p.Width, p.Height, resources(refs), 5+2*i)
		if p.Rotate != 0 {
			page += fmt.Sprintf(" /Rotate %d", p.Rotate)
		}
		obj(page + " >>")
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(p.Content), p.Content))
	}
	for i, f := range forms {
		form := "<< /Type /XObject /Subtype /Form /BBox [0 0 612 792]"
		if len(f.Matrix) == 6 {
			form += fmt.Sprintf(" /Matrix [%g %g %g %g %g %g]", f.Matrix[0], f.Matrix[1], f.Matrix[2], f.Matrix[3], f.Matrix[4], f.Matrix[5])
		}
		obj(fmt.Sprintf("%s /Resources %s /Length %d >>\nstream\n%s\nendstream", form, resources(refs[i+1:]), len(f.Content), f.Content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// Write builds a PDF into dir and returns its path.
func Write(t testing.TB, dir, name string, pages ...Page) string {
	t.Helper()
	return WriteWithForms(t, dir, name, nil, pages...)
}

// WriteWithForms is Write for documents with form XObjects.
func WriteWithForms(t testing.TB, dir, name string, forms []Form, pages ...Page) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, BuildWithForms(forms, pages...), 0o644); err != nil {
		t.Fatalf("write test pdf: %v", err)
	}
	return path
}
