package contentstream

import (
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Font holds the metrics the redactor needs to place glyphs: advance widths
// and the vertical extent of the glyph box. All values are in text space
// units for a font size of 1.
type Font struct {
	TwoByte bool
	Ascent  float64
	Descent float64

	widths   map[int]float64
	missing  float64
	coreName string
}

// DefaultFont is used for font resources that cannot be resolved. Glyphs are
// assumed to be half an em wide.
func DefaultFont() *Font {
	return &Font{Ascent: 0.8, Descent: -0.2, widths: map[int]float64{}, missing: 0.5}
}

// CoreFont returns metrics for one of the 14 standard fonts.
func CoreFont(name string) *Font {
	f := DefaultFont()
	if font.IsCoreFont(name) {
		f.coreName = name
	}
	return f
}

// Width returns the advance width of the character code.
func (f *Font) Width(code int) float64 {
	if w, ok := f.widths[code]; ok {
		return w
	}
	if f.coreName != "" {
		w := font.TextWidth(string(rune(code)), f.coreName, 1000) / 1000
		if w > 0 {
			f.widths[code] = w
			return w
		}
	}
	return f.missing
}

// Codes splits a shown string into character codes.
func (f *Font) Codes(b []byte) []int {
	if !f.TwoByte {
		codes := make([]int, len(b))
		for i, c := range b {
			codes[i] = int(c)
		}
		return codes
	}
	codes := make([]int, 0, (len(b)+1)/2)
	for i := 0; i < len(b); i += 2 {
		if i+1 < len(b) {
			codes = append(codes, int(b[i])<<8|int(b[i+1]))
		} else {
			codes = append(codes, int(b[i]))
		}
	}
	return codes
}

// Encode turns character codes back into string bytes.
func (f *Font) Encode(codes []int) []byte {
	if !f.TwoByte {
		out := make([]byte, len(codes))
		for i, c := range codes {
			out[i] = byte(c)
		}
		return out
	}
	out := make([]byte, 0, 2*len(codes))
	for _, c := range codes {
		out = append(out, byte(c>>8), byte(c))
	}
	return out
}

// LoadFonts resolves the /Font entries of a resource dictionary.
func LoadFonts(ctx *model.Context, resources types.Dict) map[string]*Font {
	fonts := map[string]*Font{}
	if resources == nil {
		return fonts
	}
	obj, found := resources.Find("Font")
	if !found {
		return fonts
	}
	fontDict, ok := deref(ctx, obj).(types.Dict)
	if !ok {
		return fonts
	}
	for name, ref := range fontDict {
		d, ok := deref(ctx, ref).(types.Dict)
		if !ok {
			continue
		}
		fonts[name] = loadFont(ctx, d)
	}
	return fonts
}

func loadFont(ctx *model.Context, d types.Dict) *Font {
	f := DefaultFont()
	subtype := nameValue(ctx, d["Subtype"])
	baseFont := nameValue(ctx, d["BaseFont"])

	var descriptor types.Dict
	switch subtype {
	case "Type0":
		f.TwoByte = true
		f.missing = 1.0
		descendants, _ := deref(ctx, d["DescendantFonts"]).(types.Array)
		if len(descendants) == 0 {
			break
		}
		cid, ok := deref(ctx, descendants[0]).(types.Dict)
		if !ok {
			break
		}
		if dw, ok := numberValue(ctx, cid["DW"]); ok {
			f.missing = dw / 1000
		}
		loadCIDWidths(ctx, f, cid["W"])
		descriptor, _ = deref(ctx, cid["FontDescriptor"]).(types.Dict)

	case "Type3":
		scale := 0.001
		if fm, ok := deref(ctx, d["FontMatrix"]).(types.Array); ok && len(fm) == 6 {
			if a, ok := numberValue(ctx, fm[0]); ok {
				scale = a
			}
		}
		loadSimpleWidths(ctx, f, d, scale)

	default:
		if !loadSimpleWidths(ctx, f, d, 0.001) && font.IsCoreFont(baseFont) {
			f.coreName = baseFont
		}
		descriptor, _ = deref(ctx, d["FontDescriptor"]).(types.Dict)
	}

	if descriptor != nil {
		if mw, ok := numberValue(ctx, descriptor["MissingWidth"]); ok && mw > 0 && !f.TwoByte {
			f.missing = mw / 1000
		}
		ascent, okA := numberValue(ctx, descriptor["Ascent"])
		descent, okD := numberValue(ctx, descriptor["Descent"])
		if okA && okD && ascent > descent && ascent != 0 {
			f.Ascent = ascent / 1000
			f.Descent = descent / 1000
		}
	}
	if strings.HasPrefix(baseFont, "Symbol") || strings.HasPrefix(baseFont, "ZapfDingbats") {
		f.Ascent, f.Descent = 1.0, -0.2
	}
	return f
}

func loadSimpleWidths(ctx *model.Context, f *Font, d types.Dict, scale float64) bool {
	widths, ok := deref(ctx, d["Widths"]).(types.Array)
	if !ok || len(widths) == 0 {
		return false
	}
	first := 0
	if fc, ok := numberValue(ctx, d["FirstChar"]); ok {
		first = int(fc)
	}
	for i, w := range widths {
		if v, ok := numberValue(ctx, w); ok {
			f.widths[first+i] = v * scale
		}
	}
	return true
}

// loadCIDWidths reads a CIDFont /W array, which mixes the forms
// "c [w1 w2 ...]" and "cFirst cLast w".
func loadCIDWidths(ctx *model.Context, f *Font, obj types.Object) {
	w, ok := deref(ctx, obj).(types.Array)
	if !ok {
		return
	}
	for i := 0; i < len(w); {
		start, ok := numberValue(ctx, w[i])
		if !ok || i+1 >= len(w) {
			return
		}
		if list, ok := deref(ctx, w[i+1]).(types.Array); ok {
			for j, v := range list {
				if n, ok := numberValue(ctx, v); ok {
					f.widths[int(start)+j] = n / 1000
				}
			}
			i += 2
			continue
		}
		if i+2 >= len(w) {
			return
		}
		end, ok1 := numberValue(ctx, w[i+1])
		width, ok2 := numberValue(ctx, w[i+2])
		if !ok1 || !ok2 {
			return
		}
		for c := int(start); c <= int(end) && c-int(start) < 65536; c++ {
			f.widths[c] = width / 1000
		}
		i += 3
	}
}

func deref(ctx *model.Context, obj types.Object) types.Object {
	if obj == nil {
		return nil
	}
	if ctx == nil {
		return obj
	}
	o, err := ctx.Dereference(obj)
	if err != nil {
		return nil
	}
	return o
}

func numberValue(ctx *model.Context, obj types.Object) (float64, bool) {
	switch v := deref(ctx, obj).(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	}
	return 0, false
}

func nameValue(ctx *model.Context, obj types.Object) string {
	if n, ok := deref(ctx, obj).(types.Name); ok {
		return string(n)
	}
	return ""
}
