package contentstream

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redactString(t *testing.T, content string, regions ...Rect) (string, Stats) {
	t.Helper()
	ops, err := Parse([]byte(content))
	require.NoError(t, err)
	out, stats := Redact(ops, nil, regions)
	return string(Serialize(out)), stats
}

// With unresolved fonts every glyph is 0.5 em wide and spans -0.2..0.8 em
// vertically, so "(AB)" at size 10 from (100,100) covers x 100..105 and
// 105..110, y 98..108.
const twoGlyphs = "BT /F1 10 Tf 100 100 Td (AB) Tj ET"

func TestRedactText(t *testing.T) {
	tests := []struct {
		name    string
		region  Rect
		removed int
		want    string
	}{
		{"whole run", Rect{99, 90, 111, 120}, 2, "[-1000] TJ"},
		{"second glyph", Rect{106, 90, 111, 120}, 1, "[<41> -500] TJ"},
		{"first glyph", Rect{90, 90, 104, 120}, 1, "[-500 <42>] TJ"},
		{"below baseline box", Rect{90, 0, 120, 97}, 0, "(AB) Tj"},
		{"touching edge only", Rect{110, 90, 120, 120}, 0, "(AB) Tj"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, stats := redactString(t, twoGlyphs, tt.region)
			assert.Equal(t, tt.removed, stats.GlyphsRemoved)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestRedactTextArrayKeepsKerning(t *testing.T) {
	out, stats := redactString(t, "BT /F1 10 Tf 0 0 Td [(A) -200 (B)] TJ ET", Rect{0, -5, 4, 10})
	assert.Equal(t, 1, stats.GlyphsRemoved)
	// -500 for the removed glyph merges with the -200 kerning.
	assert.Contains(t, out, "[-700 <42>] TJ")
}

func TestRedactTextRespectsMatrices(t *testing.T) {
	content := "q 1 0 0 1 200 300 cm BT /F1 10 Tf 2 0 0 2 0 0 Tm (A) Tj ET Q"
	// Glyph is scaled by Tm to 10x20 and moved by cm to (200,300).
	_, stats := redactString(t, content, Rect{0, 0, 100, 100})
	assert.Equal(t, 0, stats.GlyphsRemoved)

	_, stats = redactString(t, content, Rect{205, 305, 206, 306})
	assert.Equal(t, 1, stats.GlyphsRemoved)
}

func TestRedactQuoteOperators(t *testing.T) {
	out, stats := redactString(t, "BT /F1 10 Tf 12 TL 0 100 Td (A) ' ET", Rect{-1, 80, 6, 97})
	assert.Equal(t, 1, stats.GlyphsRemoved)
	assert.Contains(t, out, "T*\n[-500] TJ")

	out, stats = redactString(t, "BT /F1 10 Tf 12 TL 0 100 Td 1 0.5 (A) \" ET", Rect{-1, 80, 6, 97})
	assert.Equal(t, 1, stats.GlyphsRemoved)
	assert.Contains(t, out, "1 Tw\n0.5 Tc\nT*\n")
}

func TestRedactPaths(t *testing.T) {
	tests := []struct {
		name    string
		content string
		region  Rect
		removed int
		want    string
		absent  string
	}{
		{"filled rect hit", "10 10 20 20 re f", Rect{15, 15, 16, 16}, 1, "", "re"},
		{"filled rect miss", "10 10 20 20 re f", Rect{100, 100, 120, 120}, 0, "10 10 20 20 re\nf", ""},
		{"stroked line hit", "0 0 m 50 50 l S", Rect{10, 10, 20, 20}, 1, "", "l"},
		{"horizontal hairline", "0 50 m 100 50 l S", Rect{40, 49.8, 60, 49.9}, 1, "", "m"},
		{"clip kept", "0 0 50 50 re W f", Rect{10, 10, 20, 20}, 1, "0 0 50 50 re\nW\nn", "f"},
		{"end path untouched", "0 0 50 50 re W n", Rect{10, 10, 20, 20}, 0, "W\nn", ""},
		{"transformed miss", "1 0 0 1 200 200 cm 0 0 10 10 re f", Rect{0, 0, 50, 50}, 0, "re\nf", ""},
		{"transformed hit", "1 0 0 1 200 200 cm 0 0 10 10 re f", Rect{205, 205, 206, 206}, 1, "cm", "re"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, stats := redactString(t, tt.content, tt.region)
			assert.Equal(t, tt.removed, stats.PathsRemoved)
			if tt.want != "" {
				assert.Contains(t, out, tt.want)
			}
			if tt.absent != "" {
				assert.NotContains(t, out, tt.absent)
			}
		})
	}
}

func TestRedactKeepsImagesAndState(t *testing.T) {
	content := "q 100 0 0 100 0 0 cm /Im1 Do Q q BI /W 1 /H 1 /BPC 8 /CS /G ID \x00 EI Q /Sh0 sh"
	out, stats := redactString(t, content, Rect{0, 0, 200, 200})
	assert.False(t, stats.Changed())
	assert.Contains(t, out, "/Im1 Do")
	assert.Contains(t, out, "BI /W 1")
	assert.Contains(t, out, "/Sh0 sh")
	assert.Equal(t, 2, strings.Count(out, "Q\n"))
}

func TestRedactNoRegions(t *testing.T) {
	ops, err := Parse([]byte(twoGlyphs))
	require.NoError(t, err)
	out, stats := Redact(ops, nil, nil)
	assert.Equal(t, ops, out)
	assert.False(t, stats.Changed())
}

func TestRedactWithFontWidths(t *testing.T) {
	wide := &Font{Ascent: 1, Descent: 0, widths: map[int]float64{'A': 1, 'B': 0.25}, missing: 0.5}
	ops, err := Parse([]byte("BT /F1 10 Tf 0 0 Td (AB) Tj ET"))
	require.NoError(t, err)

	// A spans 0..10, B spans 10..12.5.
	out, stats := Redact(ops, map[string]*Font{"F1": wide}, []Rect{{11, 1, 12, 2}})
	assert.Equal(t, 1, stats.GlyphsRemoved)
	assert.Contains(t, string(Serialize(out)), "[<41> -250] TJ")
}

func TestFontCodes(t *testing.T) {
	simple := DefaultFont()
	assert.Equal(t, []int{'A', 'B'}, simple.Codes([]byte("AB")))

	cid := DefaultFont()
	cid.TwoByte = true
	codes := cid.Codes([]byte{0x01, 0x02, 0x00, 0x41})
	assert.Equal(t, []int{0x0102, 0x0041}, codes)
	assert.Equal(t, []byte{0x01, 0x02, 0x00, 0x41}, cid.Encode(codes))
}

func TestRedactWithInitialCTM(t *testing.T) {
	ops, err := Parse([]byte(twoGlyphs))
	require.NoError(t, err)

	// Shifted 100 units right, "A" covers x 200..205.
	out, stats, err := RedactWith(ops, nil, []Rect{{200, 95, 204, 110}}, Options{CTM: Translate(100, 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.GlyphsRemoved)
	assert.NotContains(t, string(Serialize(out)), "<41>")
}

func TestRedactWithForms(t *testing.T) {
	ops, err := Parse([]byte("q 2 0 0 2 10 10 cm /Fm1 Do Q /Im1 Do"))
	require.NoError(t, err)

	var seen []string
	var ctms []Matrix
	forms := func(name string, ctm Matrix) (string, Stats, error) {
		seen = append(seen, name)
		ctms = append(ctms, ctm)
		if name == "Fm1" {
			return "PEFm1", Stats{GlyphsRemoved: 2, PathsRemoved: 1}, nil
		}
		return "", Stats{}, nil
	}

	out, stats, err := RedactWith(ops, nil, []Rect{{0, 0, 10, 10}}, Options{Forms: forms})
	require.NoError(t, err)
	assert.Equal(t, Stats{GlyphsRemoved: 2, PathsRemoved: 1}, stats)
	assert.Equal(t, []string{"Fm1", "Im1"}, seen)
	assert.Equal(t, []Matrix{{2, 0, 0, 2, 10, 10}, Identity}, ctms)

	got := string(Serialize(out))
	assert.Contains(t, got, "/PEFm1 Do")
	assert.Contains(t, got, "/Im1 Do")
	assert.NotContains(t, got, "/Fm1 Do")
}

func TestRedactWithFormError(t *testing.T) {
	ops, err := Parse([]byte("/Fm1 Do"))
	require.NoError(t, err)

	boom := errors.New("broken form")
	_, _, err = RedactWith(ops, nil, []Rect{{0, 0, 10, 10}}, Options{
		Forms: func(string, Matrix) (string, Stats, error) { return "", Stats{}, boom },
	})
	assert.ErrorIs(t, err, boom)
}

func TestMatrixOperands(t *testing.T) {
	op := Op{Operator: "cm", Operands: Matrix{1, 0, 0, -1, 0.5, 792}.Operands()}
	assert.Equal(t, "1 0 0 -1 0.5 792 cm\n", string(Serialize([]Op{op})))
}
