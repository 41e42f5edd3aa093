// Package raster decodes uploaded images and prepares them for embedding in
// PDF documents.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"

	// Registered decoders
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupported is returned when bytes are not a decodable image.
var ErrUnsupported = errors.New("unsupported or corrupt image")

// Decode decodes PNG, JPEG, GIF, WebP, BMP or TIFF data. It returns the image
// and the detected format name.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrUnsupported)
	}
	return img, format, nil
}

// Flatten composites img onto a white background, dropping transparency.
func Flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// Thumbnail scales img down so that it fits within maxW×maxH, keeping its
// aspect ratio. Images that already fit are returned unchanged.
func Thumbnail(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return img
	}

	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// EncodeJPEG writes img as a baseline JPEG.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

// Samples holds the uncompressed 8-bit channels of an image.
type Samples struct {
	Width  int
	Height int
	RGB    []byte // Width*Height*3
	Alpha  []byte // Width*Height, nil when the image is fully opaque
}

// Split separates img into RGB and alpha sample planes. Colors are
// un-premultiplied.
func Split(img image.Image) Samples {
	b := img.Bounds()
	s := Samples{
		Width:  b.Dx(),
		Height: b.Dy(),
		RGB:    make([]byte, 0, b.Dx()*b.Dy()*3),
	}
	alpha := make([]byte, 0, b.Dx()*b.Dy())
	opaque := true

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			s.RGB = append(s.RGB, c.R, c.G, c.B)
			alpha = append(alpha, c.A)
			if c.A != 0xff {
				opaque = false
			}
		}
	}
	if !opaque {
		s.Alpha = alpha
	}
	return s
}
