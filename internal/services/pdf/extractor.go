// Package pdf inspects uploaded PDFs: magic-byte validation and plain text
// extraction for the job record.
//
// We use the ledongthuc/pdf library for text extraction.
// It's a pure Go implementation — no CGO or external dependencies required.
package pdf

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Inspection holds what we learn about a document at upload time.
type Inspection struct {
	PageCount int
	WordCount int
	Pages     []string // plain text per page, trimmed
}

// Text joins the text of all pages, one page per paragraph.
func (in *Inspection) Text() string {
	return strings.TrimSpace(strings.Join(in.Pages, "\n\n"))
}

// Inspect extracts the plain text of every page.
//
// Go Pattern: We accept a byte slice because uploads are already in memory.
// The pdf library requires io.ReaderAt for random access to the PDF structure,
// which bytes.Reader provides.
func Inspect(data []byte) (*Inspection, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	pageCount := reader.NumPage()
	result := &Inspection{
		PageCount: pageCount,
		Pages:     make([]string, pageCount),
	}

	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Image-only or unusual pages: leave empty, keep going
			continue
		}
		result.Pages[i-1] = strings.TrimSpace(text)
	}

	result.WordCount = countWords(result.Text())
	return result, nil
}

// InspectFile is Inspect for a document on disk.
func InspectFile(path string) (*Inspection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Inspect(data)
}

// countWords counts the number of words in a text string.
func countWords(text string) int {
	return len(strings.Fields(text))
}

// ValidatePDF checks if the data looks like a valid PDF by checking the magic bytes.
func ValidatePDF(data []byte) bool {
	// PDF files start with "%PDF-"
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}
