package editor

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/logger"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/editor/contentstream"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/jobstore"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/testutil/testpdf"
)

func twoPageDoc(t *testing.T) string {
	t.Helper()
	return testpdf.Write(t, t.TempDir(), "original.pdf",
		testpdf.Letter(testpdf.Text(72, 720, 12, "Page one")),
		testpdf.Letter(testpdf.Text(72, 720, 12, "Page two")),
	)
}

func pngDataURL(t *testing.T, w, h int, c color.Color) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func pageOps(t *testing.T, path string, index int) []contentstream.Op {
	t.Helper()
	doc, err := Open(path)
	require.NoError(t, err)
	defer doc.Close()

	p, err := doc.page(index)
	require.NoError(t, err)
	content, err := doc.originalContent(p)
	require.NoError(t, err)
	ops, err := contentstream.Parse(content)
	require.NoError(t, err)
	return ops
}

// shownText concatenates every string shown on a page.
func shownText(ops []contentstream.Op) string {
	var sb strings.Builder
	for _, op := range ops {
		switch op.Operator {
		case "Tj", "'", "\"":
			sb.Write(op.Operands[len(op.Operands)-1].Bytes)
		case "TJ":
			for _, e := range op.Operands[0].Elems {
				if e.IsText() {
					sb.Write(e.Bytes)
				}
			}
		}
	}
	return sb.String()
}

func findOp(ops []contentstream.Op, operator string, nums ...float64) bool {
	for _, op := range ops {
		if op.Operator != operator {
			continue
		}
		got, ok := op.Numbers(len(nums))
		if !ok {
			continue
		}
		match := true
		for i := range nums {
			if math.Abs(got[i]-nums[i]) > 1e-3 {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func apply(t *testing.T, src string, ops ...Operation) (string, *Result, error) {
	t.Helper()
	dst := filepath.Join(t.TempDir(), "edited.pdf")
	res, err := NewEngine(logger.Nop()).ApplyFile(src, dst, ops)
	return dst, res, err
}

func TestAddTextScenario(t *testing.T) {
	src := twoPageDoc(t)
	dst, res, err := apply(t, src, Operation{
		Kind: KindAddText, Page: 0, X: 10, Y: 20, Text: "Hello", FontSize: 18, Color: "#ff0000",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 0, res.Skipped)

	page0 := pageOps(t, dst, 0)
	assert.Contains(t, shownText(page0), "Page one")
	assert.Contains(t, shownText(page0), "Hello")
	assert.True(t, findOp(page0, "rg", 1, 0, 0), "red fill color")
	assert.True(t, findOp(page0, "Tm", 1, 0, 0, -1, 10, 20), "anchor at (10,20)")
	assert.True(t, findOp(page0, "cm", 1, 0, 0, -1, 0, 792), "display to user space")

	page1 := pageOps(t, dst, 1)
	assert.Equal(t, "Page two", shownText(page1))
	assert.False(t, findOp(page1, "rg", 1, 0, 0))
}

func TestAddTextMultiline(t *testing.T) {
	src := twoPageDoc(t)
	dst, _, err := apply(t, src, Operation{
		Kind: KindAddText, Page: 1, X: 5, Y: 5, Text: "one\ntwo", FontSize: 10, Color: "#000000",
	})
	require.NoError(t, err)

	ops := pageOps(t, dst, 1)
	assert.Contains(t, shownText(ops), "onetwo")
	assert.True(t, findOp(ops, "Td", 0, -12), "line height is 1.2 x size")
}

func TestAddTextClampsAndSkips(t *testing.T) {
	src := twoPageDoc(t)
	dst, res, err := apply(t, src,
		Operation{Kind: KindAddText, Page: 0, X: -50, Y: 5000, Text: "Edge", FontSize: 1},
		Operation{Kind: KindAddText, Page: 0, X: 10, Y: 10, Text: "   ", FontSize: 12},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Skipped)

	ops := pageOps(t, dst, 0)
	assert.True(t, findOp(ops, "Tm", 1, 0, 0, -1, 0, 792), "anchor clamped into the page")
	found := false
	for _, op := range ops {
		if op.Operator == "Tf" && op.Operands[1].Num == MinFontSize {
			found = true
		}
	}
	assert.True(t, found, "font size clamped to 6")
}

func TestRedactScenario(t *testing.T) {
	content := testpdf.Text(110, 670, 12, "SECRET") +
		testpdf.Text(110, 500, 12, "PUBLIC") +
		testpdf.FilledRect(120, 655, 10, 10) +
		testpdf.FilledRect(400, 400, 10, 10)
	src := testpdf.Write(t, t.TempDir(), "original.pdf", testpdf.Letter(content))

	dst, res, err := apply(t, src, Operation{Kind: KindRedact, Page: 0, X: 100, Y: 100, Width: 150, Height: 40})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Removed.GlyphsRemoved)
	assert.Equal(t, 1, res.Removed.PathsRemoved)

	ops := pageOps(t, dst, 0)
	text := shownText(ops)
	assert.Contains(t, text, "PUBLIC")
	assert.NotContains(t, text, "S")
	assert.NotContains(t, text, "CR")

	assert.True(t, findOp(ops, "re", 400, 400, 10, 10), "path outside the region is kept")
	assert.False(t, findOp(ops, "re", 120, 655, 10, 10), "path inside the region is removed")
	assert.True(t, findOp(ops, "re", 100, 652, 150, 40), "white fill over the region")
	assert.True(t, findOp(ops, "rg", 1, 1, 1))
}

func TestRedactOrdering(t *testing.T) {
	src := testpdf.Write(t, t.TempDir(), "original.pdf", testpdf.Letter(testpdf.Text(110, 670, 12, "OLD")))

	dst, res, err := apply(t, src,
		Operation{Kind: KindAddText, Page: 0, X: 105, Y: 125, Text: "EARLY", FontSize: 12, Color: "#000000"},
		Operation{Kind: KindRedact, Page: 0, X: 100, Y: 100, Width: 150, Height: 40},
		Operation{Kind: KindAddText, Page: 0, X: 105, Y: 125, Text: "LATE", FontSize: 12, Color: "#000000"},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Applied)

	text := shownText(pageOps(t, dst, 0))
	assert.Contains(t, text, "LATE", "text added after the redaction survives")
	assert.NotContains(t, text, "OLD")
	assert.NotContains(t, text, "EARLY")
}

func TestRedactMultipleStagesOnPage(t *testing.T) {
	content := testpdf.Text(50, 700, 12, "AAA") + testpdf.Text(50, 400, 12, "BBB") + testpdf.Text(50, 100, 12, "CCC")
	src := testpdf.Write(t, t.TempDir(), "original.pdf", testpdf.Letter(content))

	dst, _, err := apply(t, src,
		Operation{Kind: KindRedact, Page: 0, X: 40, Y: 80, Width: 100, Height: 20},
		Operation{Kind: KindRedact, Page: 0, X: 40, Y: 680, Width: 100, Height: 20},
	)
	require.NoError(t, err)
	assert.Equal(t, "BBB", shownText(pageOps(t, dst, 0)))
}

func TestRedactRotatedPage(t *testing.T) {
	page := testpdf.Page{
		Width: 612, Height: 792, Rotate: 90,
		Content: testpdf.Text(10, 20, 10, "ROT") + testpdf.Text(300, 300, 10, "KEEP"),
	}
	src := testpdf.Write(t, t.TempDir(), "original.pdf", page)

	doc, err := Open(src)
	require.NoError(t, err)
	geom, err := doc.Geometry(0)
	require.NoError(t, err)
	doc.Close()
	assert.Equal(t, 792.0, geom.Width())
	assert.Equal(t, 612.0, geom.Height())

	// On a page rotated by 90 degrees the displayed top-left corner is the
	// user space origin.
	dst, _, err := apply(t, src, Operation{Kind: KindRedact, Page: 0, X: 0, Y: 0, Width: 50, Height: 50})
	require.NoError(t, err)
	assert.Equal(t, "KEEP", shownText(pageOps(t, dst, 0)))
}

func TestAddImageScenario(t *testing.T) {
	src := twoPageDoc(t)
	dst, res, err := apply(t, src, Operation{
		Kind: KindAddImage, Page: 0, X: 50, Y: 50, Width: 200, Height: 120,
		ImageData: pngDataURL(t, 40, 24, color.NRGBA{255, 0, 0, 255}), HasImage: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)

	ops := pageOps(t, dst, 0)
	assert.True(t, findOp(ops, "cm", 200, 0, 0, -120, 50, 170))

	var drawn bool
	for _, op := range ops {
		if op.Operator == "Do" && string(op.Operands[0].Bytes) == "PEIm1" {
			drawn = true
		}
	}
	assert.True(t, drawn)
}

func TestAddImageClampedAndCentered(t *testing.T) {
	src := twoPageDoc(t)
	dst, _, err := apply(t, src, Operation{
		Kind: KindAddImage, Page: 0, X: 500, Y: 700, Width: 200, Height: 150,
		ImageData: pngDataURL(t, 40, 24, color.NRGBA{0, 0, 255, 128}), HasImage: true,
	})
	require.NoError(t, err)

	// Clamped to 112x92; a 5:3 image fits as 112x67.2, centered vertically.
	ops := pageOps(t, dst, 0)
	assert.True(t, findOp(ops, "cm", 112, 0, 0, -67.2, 500, 779.6))
}

func TestAddImageSkips(t *testing.T) {
	src := twoPageDoc(t)
	dst, res, err := apply(t, src,
		Operation{Kind: KindAddImage, Page: 0, X: 10, Y: 10, Width: 20, Height: 20},
		Operation{Kind: KindAddImage, Page: 0, X: 10, Y: 10, Width: 20, Height: 20,
			ImageData: "data:text/plain;base64,aGVsbG8=", HasImage: true},
	)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 2, res.Skipped)
	assert.FileExists(t, dst)
}

func TestMalformedPayloadFailsBatch(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad base64", "data:image/png;base64,@@@@"},
		{"not an image", "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("plain text"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := twoPageDoc(t)
			dst, res, err := apply(t, src,
				Operation{Kind: KindAddText, Page: 0, X: 10, Y: 10, Text: "before", FontSize: 12},
				Operation{Kind: KindAddImage, Page: 0, X: 10, Y: 10, Width: 20, Height: 20, ImageData: tt.data, HasImage: true},
				Operation{Kind: KindRedact, Page: 0, X: 0, Y: 0, Width: 50, Height: 50},
			)
			assert.ErrorIs(t, err, ErrPayloadDecode)
			assert.Nil(t, res)
			assert.NoFileExists(t, dst)
		})
	}
}

func TestOutOfRangePageIsSkipped(t *testing.T) {
	src := twoPageDoc(t)
	dst, res, err := apply(t, src,
		Operation{Kind: KindAddText, Page: 2, X: 10, Y: 10, Text: "nowhere", FontSize: 12},
		Operation{Kind: KindRedact, Page: -1, X: 10, Y: 10, Width: 10, Height: 10},
		Operation{Kind: "rotate", Page: 0},
	)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 3, res.Skipped)
	require.Len(t, res.SkipReasons, 3)
	assert.Contains(t, res.SkipReasons[0], "out of range")
	assert.Contains(t, res.SkipReasons[2], "unknown operation type")

	assert.Equal(t, "Page one", shownText(pageOps(t, dst, 0)))
	assert.Equal(t, "Page two", shownText(pageOps(t, dst, 1)))
}

func TestStateTransitions(t *testing.T) {
	src := twoPageDoc(t)
	dst := filepath.Join(t.TempDir(), "edited.pdf")

	var states []State
	engine := NewEngine(logger.Nop())
	engine.Observe = func(s State) { states = append(states, s) }

	_, err := engine.ApplyFile(src, dst, []Operation{{Kind: KindRedact, Page: 0, Width: 10, Height: 10}})
	require.NoError(t, err)
	assert.Equal(t, []State{StateOpen, StateProcessing, StateFinalizing, StateSaved, StateClosed}, states)

	states = nil
	_, err = engine.ApplyFile(src, dst+".2", []Operation{{Kind: KindAddImage, ImageData: "data:image/png;base64,!", HasImage: true}})
	require.Error(t, err)
	assert.Equal(t, []State{StateOpen, StateProcessing, StateClosed}, states)
}

func TestApplyFileErrors(t *testing.T) {
	dir := t.TempDir()
	_, _, err := apply(t, filepath.Join(dir, "missing.pdf"))
	assert.ErrorIs(t, err, ErrJobNotFound)

	corrupt := filepath.Join(dir, "corrupt.pdf")
	require.NoError(t, os.WriteFile(corrupt, []byte("this is not a pdf"), 0o644))
	_, _, err = apply(t, corrupt)
	assert.ErrorIs(t, err, ErrDocumentIO)
}

func TestServiceApplyJob(t *testing.T) {
	store := jobstore.New(t.TempDir())
	locks := jobstore.NewMemoryLocker()
	svc := NewService(NewEngine(logger.Nop()), store, locks, logger.Nop())
	ctx := context.Background()

	paths, err := store.Create()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths.OriginalPDF, testpdf.Build(testpdf.Letter(testpdf.Text(72, 720, 12, "Body"))), 0o644))

	t.Run("applies and saves", func(t *testing.T) {
		res, err := svc.ApplyJob(ctx, paths.JobID, []byte(`{"ops":[{"type":"add_text","text":"Hi","x":10,"y":30}]}`))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Applied)
		assert.FileExists(t, paths.EditedPDF)
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := svc.ApplyJob(ctx, jobstore.NewJobID(), []byte(`{"ops":[]}`))
		assert.ErrorIs(t, err, ErrJobNotFound)

		_, err = svc.ApplyJob(ctx, "../etc", []byte(`{"ops":[]}`))
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("invalid body", func(t *testing.T) {
		_, err := svc.ApplyJob(ctx, paths.JobID, []byte(`{"ops":"nope"}`))
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("busy job", func(t *testing.T) {
		unlock, err := locks.Lock(ctx, paths.JobID)
		require.NoError(t, err)
		defer unlock()

		_, err = svc.ApplyJob(ctx, paths.JobID, []byte(`{"ops":[]}`))
		assert.ErrorIs(t, err, ErrJobBusy)
	})
}
