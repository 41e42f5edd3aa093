package editor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Operation kinds understood by the engine. Any other kind is a no-op.
const (
	KindAddText  = "add_text"
	KindAddImage = "add_image"
	KindRedact   = "redact"
)

// Default field values for operations that omit them.
const (
	DefaultFontSize    = 16.0
	DefaultColor       = "#000000"
	DefaultImageWidth  = 200.0
	DefaultImageHeight = 150.0
	DefaultRedactSize  = 10.0
)

// Operation is one declarative edit. Coordinates are in page units with the
// origin at the top-left corner of the page as displayed, y growing down.
type Operation struct {
	Kind   string
	Page   int
	X      float64
	Y      float64
	Width  float64
	Height float64

	// add_text
	Text     string
	FontSize float64
	Color    string

	// add_image. HasImage is false when dataUrl is missing or not a string.
	ImageData string
	HasImage  bool
}

// Batch is the body of an apply request.
type Batch struct {
	Ops []Operation
}

type rawBatch struct {
	Ops json.RawMessage `json:"ops"`
}

type rawOperation struct {
	Type    json.RawMessage `json:"type"`
	Page    json.RawMessage `json:"page"`
	X       json.RawMessage `json:"x"`
	Y       json.RawMessage `json:"y"`
	W       json.RawMessage `json:"w"`
	H       json.RawMessage `json:"h"`
	Text    json.RawMessage `json:"text"`
	Size    json.RawMessage `json:"size"`
	Color   json.RawMessage `json:"color"`
	DataURL json.RawMessage `json:"dataUrl"`
}

// ParseBatch decodes an apply request body of the form {"ops": [...]}.
// A missing "ops" key is an empty batch. Structural problems, including
// numeric fields that are not numbers, wrap ErrInvalidRequest.
func ParseBatch(body []byte) (*Batch, error) {
	var raw rawBatch
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrInvalidRequest, err)
	}
	if isNull(raw.Ops) {
		return &Batch{}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw.Ops, &items); err != nil {
		return nil, fmt.Errorf("%w: ops must be a list", ErrInvalidRequest)
	}

	batch := &Batch{Ops: make([]Operation, 0, len(items))}
	for i, item := range items {
		op, err := parseOperation(item)
		if err != nil {
			return nil, fmt.Errorf("%w: ops[%d]: %v", ErrInvalidRequest, i, err)
		}
		batch.Ops = append(batch.Ops, op)
	}
	return batch, nil
}

func parseOperation(data json.RawMessage) (Operation, error) {
	var raw rawOperation
	if err := json.Unmarshal(data, &raw); err != nil {
		return Operation{}, fmt.Errorf("operation must be an object")
	}

	var op Operation
	op.Kind, _ = jsonString(raw.Type)

	defW, defH := 0.0, 0.0
	switch op.Kind {
	case KindAddImage:
		defW, defH = DefaultImageWidth, DefaultImageHeight
	case KindRedact:
		defW, defH = DefaultRedactSize, DefaultRedactSize
	}

	page, err := flexNumber(raw.Page, 0, "page")
	if err != nil {
		return op, err
	}
	op.Page = int(math.Trunc(page))

	fields := []struct {
		raw  json.RawMessage
		def  float64
		name string
		dst  *float64
	}{
		{raw.X, 0, "x", &op.X},
		{raw.Y, 0, "y", &op.Y},
		{raw.W, defW, "w", &op.Width},
		{raw.H, defH, "h", &op.Height},
		{raw.Size, DefaultFontSize, "size", &op.FontSize},
	}
	for _, f := range fields {
		v, err := flexNumber(f.raw, f.def, f.name)
		if err != nil {
			return op, err
		}
		*f.dst = v
	}

	op.Text = textValue(raw.Text, "")
	op.Color = textValue(raw.Color, DefaultColor)
	op.ImageData, op.HasImage = jsonString(raw.DataURL)
	return op, nil
}

// flexNumber accepts a JSON number or a string holding a number. Missing
// and null values take def.
func flexNumber(data json.RawMessage, def float64, name string) (float64, error) {
	if isNull(data) {
		return def, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("%s: %v", name, err)
	}
	switch t := v.(type) {
	case json.Number:
		n = t
	case string:
		n = json.Number(strings.TrimSpace(t))
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%s must be a number", name)
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	return f, nil
}

// textValue renders a JSON scalar as text. Strings are used verbatim and
// numbers keep their literal form; anything else yields def.
func textValue(data json.RawMessage, def string) string {
	if isNull(data) {
		return def
	}
	if s, ok := jsonString(data); ok {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String()
	}
	return def
}

func jsonString(data json.RawMessage) (string, bool) {
	if isNull(data) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", false
	}
	return s, true
}

func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
