// Package imagepdf converts a batch of uploaded images into a single
// compressed A4 PDF, one image per page.
//
// Every image is re-encoded before it is placed: alpha is flattened onto
// white, oversized images are downscaled and the result is stored as a
// JPEG. pdfcpu does the page layout.
package imagepdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/raster"
)

var (
	// ErrInvalidImage is returned when an upload is not a decodable image.
	ErrInvalidImage = errors.New("invalid image")

	// ErrNoImages is returned when the batch is empty.
	ErrNoImages = errors.New("no images provided")
)

const (
	// MaxSide bounds both pixel dimensions of a re-encoded image.
	MaxSide = 2000

	// Quality is the JPEG quality used for re-encoding.
	Quality = 75

	// pageScale leaves roughly a 10 mm margin around the image on A4.
	pageScale = 0.9
)

// Image is one uploaded file.
type Image struct {
	Name string
	Data []byte
}

// Compress re-encodes a single image: RGB on white, at most MaxSide pixels
// on either side, JPEG at Quality.
func Compress(data []byte) ([]byte, error) {
	img, _, err := raster.Decode(data)
	if err != nil {
		return nil, err
	}

	flat := raster.Flatten(img)
	small := raster.Thumbnail(flat, MaxSide, MaxSide)

	var buf bytes.Buffer
	if err := raster.EncodeJPEG(&buf, small, Quality); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Convert writes a PDF containing one A4 page per image to w. The images
// keep their upload order.
func Convert(w io.Writer, images []Image) error {
	if len(images) == 0 {
		return ErrNoImages
	}

	readers := make([]io.Reader, 0, len(images))
	for i, img := range images {
		jpg, err := Compress(img.Data)
		if err != nil {
			name := img.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i+1)
			}
			return fmt.Errorf("%w: %s: %v", ErrInvalidImage, name, err)
		}
		readers = append(readers, bytes.NewReader(jpg))
	}

	if err := api.ImportImages(nil, w, readers, importConfig(), model.NewDefaultConfiguration()); err != nil {
		return fmt.Errorf("failed to build pdf: %w", err)
	}
	return nil
}

// importConfig places each image centered on an A4 page, scaled to fit
// with a margin.
func importConfig() *pdfcpu.Import {
	imp := pdfcpu.DefaultImportConfig()
	imp.PageSize = "A4"
	imp.PageDim = types.PaperSize["A4"]
	imp.Pos = types.Center
	imp.Scale = pageScale
	imp.ScaleAbs = false
	return imp
}
