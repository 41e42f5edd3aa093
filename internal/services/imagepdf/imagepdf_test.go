package imagepdf

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/editor"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompress(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		wantW int
		wantH int
	}{
		{name: "small image keeps size", w: 40, h: 30, wantW: 40, wantH: 30},
		{name: "wide image is downscaled", w: 4000, h: 1000, wantW: 2000, wantH: 500},
		{name: "tall image is downscaled", w: 1000, h: 4000, wantW: 500, wantH: 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Compress(pngBytes(t, tt.w, tt.h, color.NRGBA{R: 200, G: 10, B: 10, A: 255}))
			require.NoError(t, err)

			img, err := jpeg.Decode(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, img.Bounds().Dx())
			assert.Equal(t, tt.wantH, img.Bounds().Dy())
		})
	}

	t.Run("transparency is flattened on white", func(t *testing.T) {
		out, err := Compress(pngBytes(t, 16, 16, color.NRGBA{A: 0}))
		require.NoError(t, err)

		img, err := jpeg.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		r, g, b, _ := img.At(8, 8).RGBA()
		assert.Greater(t, r>>8, uint32(245))
		assert.Greater(t, g>>8, uint32(245))
		assert.Greater(t, b>>8, uint32(245))
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := Compress([]byte("not an image"))
		require.Error(t, err)
	})
}

func TestConvert(t *testing.T) {
	t.Run("one A4 page per image", func(t *testing.T) {
		images := []Image{
			{Name: "a.png", Data: pngBytes(t, 300, 200, color.NRGBA{R: 255, A: 255})},
			{Name: "b.png", Data: pngBytes(t, 100, 400, color.NRGBA{B: 255, A: 128})},
		}

		var out bytes.Buffer
		require.NoError(t, Convert(&out, images))

		doc, err := editor.Read(bytes.NewReader(out.Bytes()))
		require.NoError(t, err)
		defer doc.Close()

		assert.Equal(t, 2, doc.PageCount())
		for i := 0; i < 2; i++ {
			geom, err := doc.Geometry(i)
			require.NoError(t, err)
			assert.InDelta(t, 595.0, geom.Width(), 1.0)
			assert.InDelta(t, 842.0, geom.Height(), 1.0)
		}
	})

	t.Run("non-image upload", func(t *testing.T) {
		images := []Image{
			{Name: "a.png", Data: pngBytes(t, 10, 10, color.Black)},
			{Name: "notes.txt", Data: []byte("hello")},
		}
		err := Convert(&bytes.Buffer{}, images)
		require.ErrorIs(t, err, ErrInvalidImage)
		assert.Contains(t, err.Error(), "notes.txt")
	})

	t.Run("empty batch", func(t *testing.T) {
		err := Convert(&bytes.Buffer{}, nil)
		require.ErrorIs(t, err, ErrNoImages)
	})
}
