package editor

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name      string
		v, lo, hi float64
		want      float64
	}{
		{"inside", 5, 0, 10, 5},
		{"below", -3, 0, 10, 0},
		{"above", 12, 0, 10, 10},
		{"on lower edge", 0, 0, 10, 0},
		{"on upper edge", 10, 0, 10, 10},
		{"inverted bounds take lower", 5, 1, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clamp(tt.v, tt.lo, tt.hi)
			assert.Equal(t, tt.want, got)
			// Clamping is idempotent.
			assert.Equal(t, got, Clamp(got, tt.lo, tt.hi))
		})
	}
}

func TestClampStaysInPage(t *testing.T) {
	const pageW = 595.0
	for _, v := range []float64{-1e9, -1, 0, 0.5, 300, 595, 596, 1e9} {
		got := Clamp(v, 0, pageW)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, pageW)
	}
}

func TestNormalizeRect(t *testing.T) {
	tests := []struct {
		name           string
		x, y, w, h     float64
		wx, wy, ww, wh float64
	}{
		{"positive", 10, 20, 30, 40, 10, 20, 30, 40},
		{"negative width", 50, 20, -30, 40, 20, 20, 30, 40},
		{"negative height", 10, 60, 30, -40, 10, 20, 30, 40},
		{"both negative", 50, 60, -30, -40, 20, 20, 30, 40},
		{"zero", 5, 5, 0, 0, 5, 5, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, w, h := NormalizeRect(tt.x, tt.y, tt.w, tt.h)
			assert.Equal(t, []float64{tt.wx, tt.wy, tt.ww, tt.wh}, []float64{x, y, w, h})
			assert.GreaterOrEqual(t, w, 0.0)
			assert.GreaterOrEqual(t, h, 0.0)

			// Same corner set as the input rectangle.
			inX := []float64{tt.x, tt.x + tt.w}
			inY := []float64{tt.y, tt.y + tt.h}
			assert.ElementsMatch(t, inX, []float64{x, x + w})
			assert.ElementsMatch(t, inY, []float64{y, y + h})
		})
	}
}

func TestClampRect(t *testing.T) {
	tests := []struct {
		name           string
		x, y, w, h     float64
		wx, wy, ww, wh float64
	}{
		{"inside", 50, 50, 200, 120, 50, 50, 200, 120},
		{"overflows right and bottom", 500, 700, 200, 150, 500, 700, 100, 92},
		{"negative origin", -20, -10, 50, 50, 0, 0, 50, 50},
		{"tiny extent grows to one", 10, 10, 0.2, 0, 10, 10, 1, 1},
		{"negative extent flips", 300, 300, -100, -50, 200, 250, 100, 50},
		{"origin on far edge", 700, 900, 10, 10, 600, 792, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, w, h := ClampRect(tt.x, tt.y, tt.w, tt.h, 600, 792)
			assert.Equal(t, []float64{tt.wx, tt.wy, tt.ww, tt.wh}, []float64{x, y, w, h})
		})
	}
}

func TestClampFontSize(t *testing.T) {
	assert.Equal(t, 6.0, ClampFontSize(1))
	assert.Equal(t, 6.0, ClampFontSize(-20))
	assert.Equal(t, 144.0, ClampFontSize(500))
	assert.Equal(t, 18.0, ClampFontSize(18))
	assert.Equal(t, 6.0, ClampFontSize(6))
	assert.Equal(t, 144.0, ClampFontSize(144))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", TruncateText("short"))

	long := strings.Repeat("a", 6000)
	assert.Len(t, TruncateText(long), MaxTextLength)

	// Counted in characters, not bytes.
	wide := strings.Repeat("é", 5001)
	assert.Equal(t, MaxTextLength, len([]rune(TruncateText(wide))))

	exact := strings.Repeat("é", 5000)
	assert.Equal(t, exact, TruncateText(exact))
}

func TestParseHexColor(t *testing.T) {
	red := RGB{1, 0, 0}
	tests := []struct {
		in   string
		want RGB
	}{
		{"#FF0000", red},
		{"ff0000", red},
		{"FF0000", red},
		{"#ff0000", red},
		{"#000000", RGB{}},
		{"#808080", RGB{128.0 / 255, 128.0 / 255, 128.0 / 255}},
		{"", RGB{}},
		{"#fff", RGB{}},
		{"#GG0000", RGB{}},
		{"red", RGB{}},
		{"#ff00001", RGB{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseHexColor(tt.in))
		})
	}
}

func TestDecodeDataURL(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	std := base64.StdEncoding.EncodeToString(payload)

	tests := []struct {
		name    string
		in      string
		want    []byte
		wantErr bool
	}{
		{"standard", "data:image/png;base64," + std, payload, false},
		{"unpadded", "data:image/png;base64," + strings.TrimRight(std, "="), payload, false},
		{"wrapped", "data:image/png;base64," + std[:4] + "\n" + std[4:], payload, false},
		{"no comma", "data:image/png;base64", nil, true},
		{"bad alphabet", "data:image/png;base64,@@@@", nil, true},
		{"empty payload", "data:image/png;base64,", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDataURL(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPayloadDecode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsImageDataURL(t *testing.T) {
	assert.True(t, IsImageDataURL("data:image/png;base64,AAAA"))
	assert.True(t, IsImageDataURL("data:image/jpeg;base64,AAAA"))
	assert.False(t, IsImageDataURL("data:text/plain;base64,AAAA"))
	assert.False(t, IsImageDataURL("image/png"))
	assert.False(t, IsImageDataURL(""))
}
