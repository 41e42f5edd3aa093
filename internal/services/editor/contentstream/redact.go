package contentstream

// Stats reports what Redact removed.
type Stats struct {
	GlyphsRemoved int
	PathsRemoved  int
}

// Changed reports whether anything was removed.
func (s Stats) Changed() bool {
	return s.GlyphsRemoved > 0 || s.PathsRemoved > 0
}

type graphicsState struct {
	ctm       Matrix
	lineWidth float64

	font      *Font
	fontSize  float64
	charSpace float64
	wordSpace float64
	hScale    float64
	leading   float64
	rise      float64
}

type pathState struct {
	active bool
	start  int // index in the output where path construction began
	clip   bool
	bounds bounds
}

// FormFunc redacts the form XObject drawn by "/name Do" under ctm. It
// returns the resource name of a filtered copy, or "" when the form is not a
// form XObject or nothing inside it intersects the regions.
type FormFunc func(name string, ctm Matrix) (string, Stats, error)

// Options tunes RedactWith.
type Options struct {
	// CTM in effect when the stream starts. The zero value means identity.
	CTM Matrix
	// Forms descends into form XObjects. When nil, Do operators are kept.
	Forms FormFunc
}

type redactor struct {
	fonts   map[string]*Font
	regions []Rect
	forms   FormFunc
	err     error

	gs    graphicsState
	stack []graphicsState
	tm    Matrix
	tlm   Matrix
	path  pathState
	out   []Op
	stats Stats
}

// Redact removes text glyphs and painted vector paths whose bounds intersect
// any of regions. Regions are in the default coordinate system of the page
// and the stream must start in it. Images, inline images, shadings and form
// XObjects are kept.
//
// Removed glyphs are replaced by an equivalent TJ displacement so that the
// surviving glyphs keep their positions. A path used as a clip is kept as a
// clip and only its painting is dropped.
func Redact(ops []Op, fonts map[string]*Font, regions []Rect) ([]Op, Stats) {
	out, stats, _ := RedactWith(ops, fonts, regions, Options{})
	return out, stats
}

// RedactWith is Redact for streams that start under opts.CTM, such as the
// content of a form XObject. Each "/name Do" is passed to opts.Forms and
// redrawn from the returned copy when one is made. The first error from
// opts.Forms stops the redaction.
func RedactWith(ops []Op, fonts map[string]*Font, regions []Rect, opts Options) ([]Op, Stats, error) {
	if len(regions) == 0 {
		return ops, Stats{}, nil
	}
	ctm := opts.CTM
	if ctm == (Matrix{}) {
		ctm = Identity
	}
	r := &redactor{
		fonts:   fonts,
		regions: regions,
		forms:   opts.Forms,
		gs:      graphicsState{ctm: ctm, lineWidth: 1, font: DefaultFont(), hScale: 1},
		tm:      Identity,
		tlm:     Identity,
		out:     make([]Op, 0, len(ops)),
	}
	for _, op := range ops {
		r.apply(op)
		if r.err != nil {
			return nil, Stats{}, r.err
		}
	}
	// An unterminated path paints nothing.
	return r.out, r.stats, nil
}

func (r *redactor) apply(op Op) {
	switch op.Operator {
	case "q":
		r.stack = append(r.stack, r.gs)
	case "Q":
		if n := len(r.stack); n > 0 {
			r.gs = r.stack[n-1]
			r.stack = r.stack[:n-1]
		}
	case "cm":
		if v, ok := op.Numbers(6); ok {
			r.gs.ctm = Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}.Multiply(r.gs.ctm)
		}
	case "w":
		if v, ok := op.Numbers(1); ok {
			r.gs.lineWidth = v[0]
		}

	case "BT":
		r.tm, r.tlm = Identity, Identity
	case "Tf":
		r.setFont(op)
	case "Tc":
		r.setNumber(op, &r.gs.charSpace)
	case "Tw":
		r.setNumber(op, &r.gs.wordSpace)
	case "TL":
		r.setNumber(op, &r.gs.leading)
	case "Ts":
		r.setNumber(op, &r.gs.rise)
	case "Tz":
		if v, ok := op.Numbers(1); ok {
			r.gs.hScale = v[0] / 100
		}
	case "Td":
		if v, ok := op.Numbers(2); ok {
			r.moveLine(v[0], v[1])
		}
	case "TD":
		if v, ok := op.Numbers(2); ok {
			r.gs.leading = -v[1]
			r.moveLine(v[0], v[1])
		}
	case "Tm":
		if v, ok := op.Numbers(6); ok {
			r.tm = Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			r.tlm = r.tm
		}
	case "T*":
		r.moveLine(0, -r.gs.leading)

	case "Tj", "TJ", "'", "\"":
		r.showText(op)
		return

	case "m", "l", "c", "v", "y", "h", "re":
		r.construct(op)
		return
	case "W", "W*":
		if r.path.active {
			r.path.clip = true
		}
	case "S", "s", "f", "F", "f*", "B", "B*", "b", "b*", "n":
		r.paint(op)
		return

	case "Do":
		r.drawForm(op)
		return
	}
	r.out = append(r.out, op)
}

func (r *redactor) setFont(op Op) {
	if len(op.Operands) != 2 || op.Operands[0].Kind != KindName || op.Operands[1].Kind != KindNumber {
		return
	}
	if f, ok := r.fonts[string(op.Operands[0].Bytes)]; ok && f != nil {
		r.gs.font = f
	} else {
		r.gs.font = DefaultFont()
	}
	r.gs.fontSize = op.Operands[1].Num
}

func (r *redactor) setNumber(op Op, dst *float64) {
	if v, ok := op.Numbers(1); ok {
		*dst = v[0]
	}
}

func (r *redactor) moveLine(tx, ty float64) {
	r.tlm = Translate(tx, ty).Multiply(r.tlm)
	r.tm = r.tlm
}

func (r *redactor) hits(rect Rect) bool {
	for _, region := range r.regions {
		if rect.Intersects(region) {
			return true
		}
	}
	return false
}

// drawForm hands a Do operator to the form callback and redirects it to the
// filtered copy when one was made.
func (r *redactor) drawForm(op Op) {
	if r.forms == nil || len(op.Operands) != 1 || op.Operands[0].Kind != KindName {
		r.out = append(r.out, op)
		return
	}
	name, stats, err := r.forms(string(op.Operands[0].Bytes), r.gs.ctm)
	if err != nil {
		r.err = err
		return
	}
	if name == "" {
		r.out = append(r.out, op)
		return
	}
	r.stats.GlyphsRemoved += stats.GlyphsRemoved
	r.stats.PathsRemoved += stats.PathsRemoved
	r.out = append(r.out, Op{Operator: "Do", Operands: []Operand{Name(name)}})
}

// construct records a path construction operator and grows the path bounds.
func (r *redactor) construct(op Op) {
	if !r.path.active {
		r.path = pathState{active: true, start: len(r.out)}
	}
	var pts []float64
	switch op.Operator {
	case "m", "l":
		pts, _ = op.Numbers(2)
	case "c":
		pts, _ = op.Numbers(6)
	case "v", "y":
		pts, _ = op.Numbers(4)
	case "re":
		if v, ok := op.Numbers(4); ok {
			pts = []float64{v[0], v[1], v[0] + v[2], v[1], v[0], v[1] + v[3], v[0] + v[2], v[1] + v[3]}
		}
	}
	for i := 0; i+1 < len(pts); i += 2 {
		r.path.bounds.add(r.gs.ctm.Apply(pts[i], pts[i+1]))
	}
	r.out = append(r.out, op)
}

// paint decides the fate of the current path at its painting operator.
func (r *redactor) paint(op Op) {
	if !r.path.active {
		r.out = append(r.out, op)
		return
	}
	path := r.path
	r.path = pathState{}

	if op.Operator == "n" || !path.bounds.ok {
		r.out = append(r.out, op)
		return
	}
	box := path.bounds.rect
	switch op.Operator {
	case "S", "s", "B", "B*", "b", "b*":
		half := r.gs.lineWidth * r.gs.ctm.Scale() / 2
		if half < 0.5 {
			half = 0.5
		}
		box = box.Expand(half)
	}
	if !r.hits(box) {
		r.out = append(r.out, op)
		return
	}

	r.stats.PathsRemoved++
	if path.clip {
		r.out = append(r.out, Op{Operator: "n"})
		return
	}
	r.out = r.out[:path.start]
}

// showText handles Tj, TJ, ' and ". Operations that lose no glyph are kept
// as they are; otherwise the operation is rewritten as a TJ array.
func (r *redactor) showText(op Op) {
	var elems []Operand
	var prefix []Op

	switch op.Operator {
	case "Tj":
		if len(op.Operands) != 1 || !op.Operands[0].IsText() {
			r.out = append(r.out, op)
			return
		}
		elems = op.Operands[:1]
	case "TJ":
		if len(op.Operands) != 1 || op.Operands[0].Kind != KindArray {
			r.out = append(r.out, op)
			return
		}
		elems = op.Operands[0].Elems
	case "'":
		if len(op.Operands) != 1 || !op.Operands[0].IsText() {
			r.out = append(r.out, op)
			return
		}
		r.moveLine(0, -r.gs.leading)
		prefix = []Op{{Operator: "T*"}}
		elems = op.Operands[:1]
	case "\"":
		if len(op.Operands) != 3 || op.Operands[0].Kind != KindNumber || op.Operands[1].Kind != KindNumber || !op.Operands[2].IsText() {
			r.out = append(r.out, op)
			return
		}
		r.gs.wordSpace = op.Operands[0].Num
		r.gs.charSpace = op.Operands[1].Num
		r.moveLine(0, -r.gs.leading)
		prefix = []Op{
			{Operator: "Tw", Operands: []Operand{op.Operands[0]}},
			{Operator: "Tc", Operands: []Operand{op.Operands[1]}},
			{Operator: "T*"},
		}
		elems = op.Operands[2:3]
	}

	pieces, removed := r.layout(elems)
	if removed == 0 {
		r.out = append(r.out, op)
		return
	}
	r.stats.GlyphsRemoved += removed
	r.out = append(r.out, prefix...)
	r.out = append(r.out, Op{Operator: "TJ", Operands: []Operand{Array(pieces...)}})
}

// layout walks the glyphs of a text-showing operation, advancing the text
// matrix. It returns the TJ elements that reproduce the kept glyphs and the
// number of glyphs removed.
func (r *redactor) layout(elems []Operand) ([]Operand, int) {
	gs := r.gs
	f := gs.font
	fs := gs.fontSize

	var pieces []Operand
	var kept []int
	pendingAdjust := 0.0
	hasAdjust := false
	removed := 0

	flushText := func() {
		if len(kept) > 0 {
			pieces = append(pieces, Hex(f.Encode(kept)))
			kept = nil
		}
	}
	addAdjust := func(n float64) {
		if len(kept) > 0 {
			flushText()
		}
		if hasAdjust {
			pendingAdjust += n
		} else {
			pendingAdjust, hasAdjust = n, true
		}
	}
	flushAdjust := func() {
		if hasAdjust {
			pieces = append(pieces, Number(pendingAdjust))
			pendingAdjust, hasAdjust = 0, false
		}
	}

	for _, e := range elems {
		if e.Kind == KindNumber {
			r.tm = Translate(-e.Num/1000*fs*gs.hScale, 0).Multiply(r.tm)
			addAdjust(e.Num)
			continue
		}
		if !e.IsText() {
			continue
		}
		for _, code := range f.Codes(e.Bytes) {
			w := f.Width(code)
			advance := w*fs + gs.charSpace
			if !f.TwoByte && code == ' ' {
				advance += gs.wordSpace
			}
			advance *= gs.hScale

			trm := Matrix{fs * gs.hScale, 0, 0, fs, 0, gs.rise}.Multiply(r.tm).Multiply(gs.ctm)
			box := trm.Quad(0, f.Descent, w, f.Ascent)

			if fs != 0 && gs.hScale != 0 && r.hits(box) {
				removed++
				addAdjust(-advance / gs.hScale * 1000 / fs)
			} else {
				flushAdjust()
				kept = append(kept, code)
			}
			r.tm = Translate(advance, 0).Multiply(r.tm)
		}
	}
	flushText()
	flushAdjust()
	return pieces, removed
}
