package editor

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Limits applied by the normalizer.
const (
	MaxTextLength = 5000
	MinFontSize   = 6.0
	MaxFontSize   = 144.0
)

// RGB is a color with components in [0, 1].
type RGB struct {
	R, G, B float64
}

// Clamp returns v limited to [lo, hi] as max(lo, min(hi, v)). When hi < lo
// the lower bound wins.
func Clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

// NormalizeRect flips the origin of a rectangle with a negative extent so
// that the returned width and height are non-negative and the rectangle
// covers the same region.
func NormalizeRect(x, y, w, h float64) (float64, float64, float64, float64) {
	if w < 0 {
		x += w
		w = -w
	}
	if h < 0 {
		y += h
		h = -h
	}
	return x, y, w, h
}

// ClampRect normalizes a rectangle, moves its origin into the page and
// limits its extent to [1, page dimension - origin].
func ClampRect(x, y, w, h, pageW, pageH float64) (float64, float64, float64, float64) {
	x, y, w, h = NormalizeRect(x, y, w, h)
	x = Clamp(x, 0, pageW)
	y = Clamp(y, 0, pageH)
	w = Clamp(w, 1, pageW-x)
	h = Clamp(h, 1, pageH-y)
	return x, y, w, h
}

// ClampFontSize limits a font size to [6, 144].
func ClampFontSize(size float64) float64 {
	return Clamp(size, MinFontSize, MaxFontSize)
}

// TruncateText caps text at 5000 characters.
func TruncateText(s string) string {
	if len(s) <= MaxTextLength {
		return s
	}
	r := []rune(s)
	if len(r) <= MaxTextLength {
		return s
	}
	return string(r[:MaxTextLength])
}

// ParseHexColor parses "#RRGGBB" or "RRGGBB", case-insensitive. Anything
// else is black.
func ParseHexColor(s string) RGB {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return RGB{}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return RGB{}
	}
	return RGB{float64(b[0]) / 255, float64(b[1]) / 255, float64(b[2]) / 255}
}

// IsImageDataURL reports whether s declares an image media type.
func IsImageDataURL(s string) bool {
	return strings.HasPrefix(s, "data:image/")
}

// DecodeDataURL returns the binary payload of a base64 data URL. Everything
// up to the first comma is the header.
func DecodeDataURL(s string) ([]byte, error) {
	_, payload, found := strings.Cut(s, ",")
	if !found {
		return nil, fmt.Errorf("%w: data URL has no payload", ErrPayloadDecode)
	}
	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(payload)
		if rawErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayloadDecode, err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrPayloadDecode)
	}
	return data, nil
}
