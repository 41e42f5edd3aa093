package editor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding/charmap"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/editor/contentstream"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/raster"
)

// Line height of inserted text, relative to the font size.
const lineHeight = 1.2

var errClosed = errors.New("document is closed")

// Document is an open PDF being edited. Page content is never changed in
// place: overlays and redaction fills are recorded as layers and written out
// together, after staged redactions have filtered the content that preceded
// them, by Finalize. Form XObjects drawn under a redaction are replaced by
// filtered copies.
type Document struct {
	ctx       *model.Context
	pages     map[int]*page
	helvetica *types.IndirectRef

	// Object numbers of form XObjects replaced by redacted copies.
	replacedForms []int
}

type page struct {
	nr        int
	dict      types.Dict
	geom      PageGeometry
	resources types.Dict
	owned     map[string]bool
	layers    []layer
	stages    []stage
	fonts     map[string]*contentstream.Font
}

// layer is content drawn on top of the original page content.
type layer struct {
	content []byte
	fill    bool
}

// stage is a pending redaction. It applies to the original content and to
// the first before-1 layers, i.e. everything drawn before it was staged.
type stage struct {
	rect   contentstream.Rect
	before int
}

// Open reads and validates the PDF at path.
func Open(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrJobNotFound, err)
		}
		return nil, fmt.Errorf("%w: open %s: %v", ErrDocumentIO, filepath.Base(path), err)
	}
	defer f.Close()
	return Read(f)
}

// Read loads a PDF from rs.
func Read(rs io.ReadSeeker) (*Document, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(rs, conf)
	if err != nil {
		return nil, fmt.Errorf("%w: read pdf: %v", ErrDocumentIO, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("%w: count pages: %v", ErrDocumentIO, err)
	}
	return &Document{ctx: ctx, pages: map[int]*page{}}, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	if d.ctx == nil {
		return 0
	}
	return d.ctx.PageCount
}

// Geometry returns the geometry of the zero-based page index.
func (d *Document) Geometry(index int) (PageGeometry, error) {
	p, err := d.page(index)
	if err != nil {
		return PageGeometry{}, err
	}
	return p.geom, nil
}

func (d *Document) page(index int) (*page, error) {
	if d.ctx == nil {
		return nil, errClosed
	}
	if index < 0 || index >= d.ctx.PageCount {
		return nil, fmt.Errorf("page %d out of range", index)
	}
	if p, ok := d.pages[index]; ok {
		return p, nil
	}

	dict, _, inh, err := d.ctx.PageDict(index+1, false)
	if err != nil || dict == nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrDocumentIO, index, err)
	}

	p := &page{nr: index + 1, dict: dict}
	var cropBox, mediaBox *types.Rectangle
	rotate := 0
	var inherited types.Dict
	if inh != nil {
		cropBox, mediaBox, rotate, inherited = inh.CropBox, inh.MediaBox, inh.Rotate, inh.Resources
	}
	p.geom = NewPageGeometry(cropBox, mediaBox, rotate)

	res, _ := d.deref(dict["Resources"]).(types.Dict)
	if res == nil {
		res = inherited
	}
	p.resources = copyDict(res)
	p.owned = map[string]bool{}
	p.fonts = contentstream.LoadFonts(d.ctx, p.resources)

	d.pages[index] = p
	return p, nil
}

// AddText draws text with its first baseline starting at display point
// (x, y). Lines are separated by newlines. It reports false when there is
// nothing to draw.
func (d *Document) AddText(index int, x, y float64, text string, size float64, color RGB) (bool, error) {
	p, err := d.page(index)
	if err != nil {
		return false, err
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if strings.TrimSpace(text) == "" {
		return false, nil
	}

	name, err := d.textFont(p)
	if err != nil {
		return false, err
	}

	var buf bytes.Buffer
	buf.WriteString("q\n")
	concat(&buf, p.geom.DisplayMatrix())
	buf.WriteString("BT\n")
	fmt.Fprintf(&buf, "/%s %s Tf\n", name, num(size))
	fmt.Fprintf(&buf, "%s %s %s rg\n", num(color.R), num(color.G), num(color.B))
	fmt.Fprintf(&buf, "1 0 0 -1 %s %s Tm\n", num(x), num(y))
	for i, line := range lines {
		if i > 0 {
			fmt.Fprintf(&buf, "0 %s Td\n", num(-size*lineHeight))
		}
		if line == "" {
			continue
		}
		buf.Write(contentstream.Hex(encodeWinAnsi(line)).Raw)
		buf.WriteString(" Tj\n")
	}
	buf.WriteString("ET\nQ\n")

	p.layers = append(p.layers, layer{content: buf.Bytes()})
	return true, nil
}

// AddImage draws img inside the display rectangle, keeping its aspect ratio
// and centering it.
func (d *Document) AddImage(index int, x, y, w, h float64, img image.Image) error {
	p, err := d.page(index)
	if err != nil {
		return err
	}

	ref, iw, ih, err := d.imageXObject(img)
	if err != nil {
		return err
	}
	name := uniqueName(d.subDict(p, "XObject"), "PEIm")
	d.subDict(p, "XObject")[name] = *ref

	scale := min(w/float64(iw), h/float64(ih))
	dw, dh := float64(iw)*scale, float64(ih)*scale
	dx, dy := x+(w-dw)/2, y+(h-dh)/2

	var buf bytes.Buffer
	buf.WriteString("q\n")
	concat(&buf, p.geom.DisplayMatrix())
	concat(&buf, contentstream.Matrix{dw, 0, 0, -dh, dx, dy + dh})
	fmt.Fprintf(&buf, "/%s Do\nQ\n", name)

	p.layers = append(p.layers, layer{content: buf.Bytes()})
	return nil
}

// StageRedaction marks a display rectangle for removal. Nothing is removed
// until Finalize; the white fill is layered immediately so that content
// added later is drawn on top of it.
func (d *Document) StageRedaction(index int, x, y, w, h float64) error {
	p, err := d.page(index)
	if err != nil {
		return err
	}
	r := p.geom.UserRect(x, y, w, h)
	p.stages = append(p.stages, stage{rect: r, before: len(p.layers) + 1})

	fill := fmt.Sprintf("q\n1 1 1 rg\n%s %s %s %s re\nf\nQ\n",
		num(r.X0), num(r.Y0), num(r.X1-r.X0), num(r.Y1-r.Y0))
	p.layers = append(p.layers, layer{content: []byte(fill), fill: true})
	return nil
}

// StagedRedactions returns the number of pending redactions on a page.
func (d *Document) StagedRedactions(index int) int {
	if p, ok := d.pages[index]; ok {
		return len(p.stages)
	}
	return 0
}

// Finalize commits every staged redaction and writes the new content of
// every modified page. Stages are consumed.
func (d *Document) Finalize() (contentstream.Stats, error) {
	var total contentstream.Stats
	if d.ctx == nil {
		return total, errClosed
	}

	indexes := make([]int, 0, len(d.pages))
	for i := range d.pages {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var replaced []types.Object
	for _, i := range indexes {
		p := d.pages[i]
		if len(p.layers) == 0 {
			continue
		}
		old, stats, err := d.commit(p)
		if err != nil {
			return total, err
		}
		total.GlyphsRemoved += stats.GlyphsRemoved
		total.PathsRemoved += stats.PathsRemoved
		if len(p.stages) > 0 && old != nil {
			replaced = append(replaced, old)
		}
		p.stages = nil
		p.layers = nil
	}

	if len(replaced) > 0 {
		if err := d.scrub(replaced); err != nil {
			return total, err
		}
	}
	if len(d.replacedForms) > 0 {
		forms := d.replacedForms
		d.replacedForms = nil
		if err := d.scrubForms(forms); err != nil {
			return total, err
		}
	}
	return total, nil
}

// commit rebuilds the content stream of one page. It returns the previous
// /Contents entry.
func (d *Document) commit(p *page) (types.Object, contentstream.Stats, error) {
	var total contentstream.Stats

	original, err := d.originalContent(p)
	if err != nil {
		return nil, total, err
	}

	regions := func(layerIndex int) []contentstream.Rect {
		var out []contentstream.Rect
		for _, s := range p.stages {
			if s.before > layerIndex {
				out = append(out, s.rect)
			}
		}
		return out
	}

	depth := 0
	if len(original) > 0 {
		ops, perr := contentstream.Parse(original)
		origRegions := regions(0)
		switch {
		case perr != nil && len(origRegions) > 0:
			return nil, total, fmt.Errorf("%w: page %d: content cannot be redacted: %v", ErrDocumentIO, p.nr-1, perr)
		case perr == nil:
			depth = openSaves(ops)
			if len(origRegions) > 0 {
				forms := d.pageForms(p, origRegions)
				filtered, stats, err := contentstream.RedactWith(ops, p.fonts, origRegions, contentstream.Options{Forms: forms.redact})
				if err != nil {
					return nil, total, fmt.Errorf("page %d: %w", p.nr-1, err)
				}
				forms.prune()
				if stats.Changed() {
					original = contentstream.Serialize(filtered)
					total = addStats(total, stats)
				}
			}
		}
	}

	var buf bytes.Buffer
	buf.WriteString("q\n")
	buf.Write(original)
	buf.WriteString("\n")
	buf.WriteString(strings.Repeat("Q\n", depth+1))

	for i, l := range p.layers {
		content := l.content
		if rs := regions(i + 1); !l.fill && len(rs) > 0 {
			ops, err := contentstream.Parse(content)
			if err != nil {
				return nil, total, fmt.Errorf("%w: page %d: overlay: %v", ErrDocumentIO, p.nr-1, err)
			}
			filtered, stats := contentstream.Redact(ops, p.fonts, rs)
			if stats.Changed() {
				content = contentstream.Serialize(filtered)
				total = addStats(total, stats)
			}
		}
		buf.Write(content)
	}

	sd, err := d.ctx.NewStreamDictForBuf(buf.Bytes())
	if err != nil {
		return nil, total, fmt.Errorf("%w: page %d: %v", ErrDocumentIO, p.nr-1, err)
	}
	if err := sd.Encode(); err != nil {
		return nil, total, fmt.Errorf("%w: page %d: encode content: %v", ErrDocumentIO, p.nr-1, err)
	}
	ref, err := d.ctx.IndRefForNewObject(*sd)
	if err != nil {
		return nil, total, fmt.Errorf("%w: page %d: %v", ErrDocumentIO, p.nr-1, err)
	}

	old := p.dict["Contents"]
	p.dict["Contents"] = *ref
	p.dict["Resources"] = p.resources
	return old, total, nil
}

func (d *Document) originalContent(p *page) ([]byte, error) {
	if _, ok := p.dict["Contents"]; !ok {
		return nil, nil
	}
	content, err := d.ctx.PageContent(p.dict, p.nr)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: read content: %v", ErrDocumentIO, p.nr-1, err)
	}
	return content, nil
}

// scrub empties content streams that were replaced on redacted pages so the
// removed content cannot survive in the saved file. Streams still referenced
// by any page are kept.
func (d *Document) scrub(replaced []types.Object) error {
	inUse := map[int]bool{}
	for nr := 1; nr <= d.ctx.PageCount; nr++ {
		dict, _, _, err := d.ctx.PageDict(nr, false)
		if err != nil || dict == nil {
			continue
		}
		for _, n := range d.streamRefs(dict["Contents"]) {
			inUse[n] = true
		}
	}

	for _, old := range replaced {
		for _, n := range d.streamRefs(old) {
			if inUse[n] {
				continue
			}
			if err := d.emptyStream(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// emptyStream replaces the stream object n with an empty stream.
func (d *Document) emptyStream(n int) error {
	entry, ok := d.ctx.Table[n]
	if !ok || entry == nil || entry.Free {
		return nil
	}
	if _, ok := entry.Object.(types.StreamDict); !ok {
		return nil
	}
	empty, err := d.ctx.NewStreamDictForBuf(nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentIO, err)
	}
	if err := empty.Encode(); err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentIO, err)
	}
	entry.Object = *empty
	return nil
}

// streamRefs lists the object numbers of the streams in a /Contents entry.
func (d *Document) streamRefs(obj types.Object) []int {
	switch v := obj.(type) {
	case types.IndirectRef:
		if arr, ok := d.deref(v).(types.Array); ok {
			return d.streamRefs(arr)
		}
		return []int{v.ObjectNumber.Value()}
	case *types.IndirectRef:
		if v == nil {
			return nil
		}
		return d.streamRefs(*v)
	case types.Array:
		var out []int
		for _, o := range v {
			if ir, ok := o.(types.IndirectRef); ok {
				out = append(out, ir.ObjectNumber.Value())
			}
		}
		return out
	}
	return nil
}

// Write serializes the document.
func (d *Document) Write(w io.Writer) error {
	if d.ctx == nil {
		return errClosed
	}
	if err := api.WriteContext(d.ctx, w); err != nil {
		return fmt.Errorf("%w: write pdf: %v", ErrDocumentIO, err)
	}
	return nil
}

// Save writes the document to path through a temporary file in the same
// directory, so a failed save never leaves a truncated file behind.
func (d *Document) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".edited-*.pdf")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentIO, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := d.Write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentIO, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentIO, err)
	}
	return nil
}

// Close releases the document. It is safe to call more than once.
func (d *Document) Close() error {
	d.ctx = nil
	d.pages = nil
	return nil
}

// textFont registers the standard Helvetica font on the page and returns its
// resource name.
func (d *Document) textFont(p *page) (string, error) {
	fonts := d.subDict(p, "Font")
	for name, obj := range fonts {
		if ir, ok := obj.(types.IndirectRef); ok && d.helvetica != nil && ir.ObjectNumber == d.helvetica.ObjectNumber {
			return name, nil
		}
	}

	if d.helvetica == nil {
		fd := types.Dict{}
		fd.InsertName("Type", "Font")
		fd.InsertName("Subtype", "Type1")
		fd.InsertName("BaseFont", "Helvetica")
		fd.InsertName("Encoding", "WinAnsiEncoding")
		ref, err := d.ctx.IndRefForNewObject(fd)
		if err != nil {
			return "", fmt.Errorf("%w: add font: %v", ErrDocumentIO, err)
		}
		d.helvetica = ref
	}

	name := uniqueName(fonts, "PEF")
	fonts[name] = *d.helvetica
	p.fonts[name] = contentstream.CoreFont("Helvetica")
	return name, nil
}

// imageXObject embeds img as a Flate compressed RGB image with an optional
// soft mask.
func (d *Document) imageXObject(img image.Image) (*types.IndirectRef, int, int, error) {
	s := raster.Split(img)

	sd, err := d.imageStream(s.RGB, s.Width, s.Height, "DeviceRGB")
	if err != nil {
		return nil, 0, 0, err
	}
	if s.Alpha != nil {
		mask, err := d.imageStream(s.Alpha, s.Width, s.Height, "DeviceGray")
		if err != nil {
			return nil, 0, 0, err
		}
		maskRef, err := d.ctx.IndRefForNewObject(*mask)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("%w: add image mask: %v", ErrDocumentIO, err)
		}
		sd.Insert("SMask", *maskRef)
	}

	ref, err := d.ctx.IndRefForNewObject(*sd)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: add image: %v", ErrDocumentIO, err)
	}
	return ref, s.Width, s.Height, nil
}

func (d *Document) imageStream(samples []byte, w, h int, colorSpace string) (*types.StreamDict, error) {
	sd, err := d.ctx.NewStreamDictForBuf(samples)
	if err != nil {
		return nil, fmt.Errorf("%w: image stream: %v", ErrDocumentIO, err)
	}
	sd.InsertName("Type", "XObject")
	sd.InsertName("Subtype", "Image")
	sd.InsertInt("Width", w)
	sd.InsertInt("Height", h)
	sd.InsertName("ColorSpace", colorSpace)
	sd.InsertInt("BitsPerComponent", 8)
	if err := sd.Encode(); err != nil {
		return nil, fmt.Errorf("%w: encode image: %v", ErrDocumentIO, err)
	}
	return sd, nil
}

// subDict returns the page's own copy of a resource category such as Font
// or XObject, creating it when missing.
func (d *Document) subDict(p *page, key string) types.Dict {
	if p.owned[key] {
		return p.resources[key].(types.Dict)
	}
	existing, _ := d.deref(p.resources[key]).(types.Dict)
	sub := copyDict(existing)
	p.resources[key] = sub
	p.owned[key] = true
	return sub
}

func (d *Document) deref(obj types.Object) types.Object {
	if obj == nil || d.ctx == nil {
		return obj
	}
	o, err := d.ctx.Dereference(obj)
	if err != nil {
		return nil
	}
	return o
}

func copyDict(src types.Dict) types.Dict {
	dst := types.Dict{}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func uniqueName(d types.Dict, prefix string) string {
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s%d", prefix, i)
		if _, taken := d[name]; !taken {
			return name
		}
	}
}

// openSaves counts q operators left without a matching Q.
func openSaves(ops []contentstream.Op) int {
	depth := 0
	for _, op := range ops {
		switch op.Operator {
		case "q":
			depth++
		case "Q":
			if depth > 0 {
				depth--
			}
		}
	}
	return depth
}

func addStats(a, b contentstream.Stats) contentstream.Stats {
	return contentstream.Stats{
		GlyphsRemoved: a.GlyphsRemoved + b.GlyphsRemoved,
		PathsRemoved:  a.PathsRemoved + b.PathsRemoved,
	}
}

// encodeWinAnsi encodes text for a standard font with WinAnsiEncoding.
// Characters outside the encoding become '?'.
func encodeWinAnsi(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := charmap.Windows1252.EncodeRune(r); ok {
			out = append(out, b)
		} else {
			out = append(out, '?')
		}
	}
	return out
}

// concat writes m as a cm operation.
func concat(buf *bytes.Buffer, m contentstream.Matrix) {
	buf.Write(contentstream.Serialize([]contentstream.Op{{Operator: "cm", Operands: m.Operands()}}))
}

func num(v float64) string {
	return contentstream.FormatNumber(v)
}
