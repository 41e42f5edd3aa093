package editor

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/editor/contentstream"
)

// Nesting limit for form XObjects. Deeper forms, including forms that draw
// themselves, are left unchanged.
const maxFormDepth = 8

// formScope redacts the form XObjects drawn by one content stream. A form
// whose content intersects the regions is replaced by a filtered copy
// registered in the stream's XObject resources under a new name.
type formScope struct {
	d         *Document
	regions   []contentstream.Rect
	resources types.Dict
	xobjects  func() types.Dict // writable XObject dictionary
	depth     int

	kept     map[string]bool // drawn unchanged at least once
	replaced map[string]bool // redrawn from a copy at least once
}

func (d *Document) newFormScope(resources types.Dict, xobjects func() types.Dict, regions []contentstream.Rect, depth int) *formScope {
	return &formScope{
		d:         d,
		regions:   regions,
		resources: resources,
		xobjects:  xobjects,
		depth:     depth,
		kept:      map[string]bool{},
		replaced:  map[string]bool{},
	}
}

// pageForms is the scope of a page's own content stream.
func (d *Document) pageForms(p *page, regions []contentstream.Rect) *formScope {
	return d.newFormScope(p.resources, func() types.Dict { return d.subDict(p, "XObject") }, regions, 0)
}

// redact is a contentstream.FormFunc.
func (s *formScope) redact(name string, ctm contentstream.Matrix) (string, contentstream.Stats, error) {
	var none contentstream.Stats

	xobjects, _ := s.d.deref(s.resources["XObject"]).(types.Dict)
	obj, ok := xobjects[name]
	if !ok || s.depth >= maxFormDepth {
		s.kept[name] = true
		return "", none, nil
	}
	form, ok := s.d.deref(obj).(types.StreamDict)
	if !ok || !isForm(s.d.deref(form.Dict["Subtype"])) {
		s.kept[name] = true
		return "", none, nil
	}

	if err := form.Decode(); err != nil {
		return "", none, fmt.Errorf("%w: form %s: %v", ErrDocumentIO, name, err)
	}
	ops, err := contentstream.Parse(form.Content)
	if err != nil {
		return "", none, fmt.Errorf("%w: form %s cannot be redacted: %v", ErrDocumentIO, name, err)
	}

	// Forms without resources use those of the stream drawing them.
	res, _ := s.d.deref(form.Dict["Resources"]).(types.Dict)
	if res == nil {
		res = s.resources
	}
	own := copyDict(res)
	var ownX types.Dict
	child := s.d.newFormScope(res, func() types.Dict {
		if ownX == nil {
			existing, _ := s.d.deref(res["XObject"]).(types.Dict)
			ownX = copyDict(existing)
			own["XObject"] = ownX
		}
		return ownX
	}, s.regions, s.depth+1)

	filtered, stats, err := contentstream.RedactWith(ops, contentstream.LoadFonts(s.d.ctx, res), s.regions, contentstream.Options{
		CTM:   s.d.formMatrix(form.Dict).Multiply(ctm),
		Forms: child.redact,
	})
	if err != nil {
		return "", none, err
	}
	if !stats.Changed() {
		s.kept[name] = true
		return "", none, nil
	}
	child.prune()

	ref, err := s.d.formCopy(form.Dict, own, contentstream.Serialize(filtered))
	if err != nil {
		return "", none, err
	}
	dst := s.xobjects()
	copyName := uniqueName(dst, "PEFm")
	dst[copyName] = *ref

	s.replaced[name] = true
	if ir, ok := obj.(types.IndirectRef); ok {
		s.d.replacedForms = append(s.d.replacedForms, ir.ObjectNumber.Value())
	}
	return copyName, stats, nil
}

// prune drops resource entries of forms that are no longer drawn.
func (s *formScope) prune() {
	for name := range s.replaced {
		if !s.kept[name] {
			delete(s.xobjects(), name)
		}
	}
}

// formCopy writes a form XObject with the attributes of src and new content.
func (d *Document) formCopy(src, resources types.Dict, content []byte) (*types.IndirectRef, error) {
	sd, err := d.ctx.NewStreamDictForBuf(content)
	if err != nil {
		return nil, fmt.Errorf("%w: form copy: %v", ErrDocumentIO, err)
	}
	for k, v := range src {
		switch k {
		case "Length", "Filter", "DecodeParms":
			continue
		}
		sd.Dict[k] = v
	}
	sd.Dict["Resources"] = resources
	if err := sd.Encode(); err != nil {
		return nil, fmt.Errorf("%w: encode form: %v", ErrDocumentIO, err)
	}
	ref, err := d.ctx.IndRefForNewObject(*sd)
	if err != nil {
		return nil, fmt.Errorf("%w: add form: %v", ErrDocumentIO, err)
	}
	return ref, nil
}

// formMatrix returns the /Matrix of a form, identity when absent or malformed.
func (d *Document) formMatrix(form types.Dict) contentstream.Matrix {
	arr, ok := d.deref(form["Matrix"]).(types.Array)
	if !ok || len(arr) != 6 {
		return contentstream.Identity
	}
	var m contentstream.Matrix
	for i, o := range arr {
		switch v := d.deref(o).(type) {
		case types.Integer:
			m[i] = float64(v)
		case types.Float:
			m[i] = float64(v)
		default:
			return contentstream.Identity
		}
	}
	return m
}

func isForm(subtype types.Object) bool {
	n, ok := subtype.(types.Name)
	return ok && n == "Form"
}

// scrubForms empties replaced forms that no page draws anymore, so the
// redacted content cannot be recovered from the saved file.
func (d *Document) scrubForms(replaced []int) error {
	inUse := map[int]bool{}
	for nr := 1; nr <= d.ctx.PageCount; nr++ {
		dict, _, inh, err := d.ctx.PageDict(nr, false)
		if err != nil || dict == nil {
			continue
		}
		res, _ := d.deref(dict["Resources"]).(types.Dict)
		if res == nil && inh != nil {
			res = inh.Resources
		}
		d.markForms(res, inUse, 0)

		annots, _ := d.deref(dict["Annots"]).(types.Array)
		for _, a := range annots {
			annot, _ := d.deref(a).(types.Dict)
			ap, _ := d.deref(annot["AP"]).(types.Dict)
			for _, appearance := range ap {
				d.markAppearance(appearance, inUse)
			}
		}
	}

	for _, n := range replaced {
		if inUse[n] {
			continue
		}
		if err := d.emptyStream(n); err != nil {
			return err
		}
	}
	return nil
}

// markForms records every XObject reachable from a resource dictionary.
func (d *Document) markForms(res types.Dict, inUse map[int]bool, depth int) {
	if res == nil || depth > maxFormDepth {
		return
	}
	xobjects, _ := d.deref(res["XObject"]).(types.Dict)
	for _, obj := range xobjects {
		ir, ok := obj.(types.IndirectRef)
		if !ok || inUse[ir.ObjectNumber.Value()] {
			continue
		}
		inUse[ir.ObjectNumber.Value()] = true
		if sd, ok := d.deref(ir).(types.StreamDict); ok {
			inner, _ := d.deref(sd.Dict["Resources"]).(types.Dict)
			d.markForms(inner, inUse, depth+1)
		}
	}
}

// markAppearance handles an /AP entry, either a stream or a dictionary of
// appearance states.
func (d *Document) markAppearance(obj types.Object, inUse map[int]bool) {
	switch v := d.deref(obj).(type) {
	case types.StreamDict:
		res, _ := d.deref(v.Dict["Resources"]).(types.Dict)
		d.markForms(res, inUse, 0)
	case types.Dict:
		for _, state := range v {
			if sd, ok := d.deref(state).(types.StreamDict); ok {
				res, _ := d.deref(sd.Dict["Resources"]).(types.Dict)
				d.markForms(res, inUse, 0)
			}
		}
	}
}
