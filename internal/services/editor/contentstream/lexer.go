// Package contentstream tokenizes PDF page content streams into operations,
// writes them back out, and removes painted content that falls inside
// redaction regions.
//
// Operands keep their exact source bytes (Raw) so that untouched operations
// are written back byte for byte. Only operations that the redactor rewrites
// are re-encoded.
package contentstream

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformed is returned when a content stream cannot be tokenized.
var ErrMalformed = errors.New("malformed content stream")

// Kind identifies the type of an operand.
type Kind int

const (
	KindNumber Kind = iota
	KindName
	KindString
	KindHexString
	KindArray
	KindDict
	KindBool
	KindNull
	KindKeyword
)

// Operand is one argument of a content stream operator.
type Operand struct {
	Kind  Kind
	Raw   []byte    // exact bytes as they appear in the stream
	Num   float64   // KindNumber
	Bytes []byte    // decoded bytes for strings and hex strings, decoded text for names
	Elems []Operand // KindArray elements, KindDict keys and values interleaved
}

// IsText reports whether the operand is a string that can be shown by a text operator.
func (o Operand) IsText() bool {
	return o.Kind == KindString || o.Kind == KindHexString
}

// Op is one content stream operation: its operands followed by the operator.
type Op struct {
	Operator string
	Operands []Operand
	Inline   []byte // full "BI ... ID ... EI" sequence for inline images
}

// Numbers returns the numeric operands of the operation. ok is false when
// the operation does not carry exactly n numeric operands.
func (op Op) Numbers(n int) ([]float64, bool) {
	if len(op.Operands) != n {
		return nil, false
	}
	out := make([]float64, n)
	for i, o := range op.Operands {
		if o.Kind != KindNumber {
			return nil, false
		}
		out[i] = o.Num
	}
	return out, true
}

type lexer struct {
	data []byte
	pos  int
}

// Parse tokenizes a content stream into operations.
func Parse(data []byte) ([]Op, error) {
	lx := &lexer{data: data}
	var ops []Op
	var operands []Operand

	for {
		lx.skipSpace()
		if lx.pos >= len(lx.data) {
			break
		}
		start := lx.pos
		operand, keyword, err := lx.next()
		if err != nil {
			return nil, err
		}
		if keyword == "" {
			operands = append(operands, operand)
			continue
		}

		if keyword == "BI" {
			inline, err := lx.inlineImage(start)
			if err != nil {
				return nil, err
			}
			ops = append(ops, Op{Operator: "BI", Inline: inline})
			operands = nil
			continue
		}

		ops = append(ops, Op{Operator: keyword, Operands: operands})
		operands = nil
	}

	// Dangling operands without an operator carry no meaning; drop them.
	return ops, nil
}

// next reads one object. It returns either an operand or, for bare
// keywords that are not true/false/null, the operator name.
func (lx *lexer) next() (Operand, string, error) {
	start := lx.pos
	c := lx.data[lx.pos]

	switch c {
	case '(':
		decoded, err := lx.literal()
		if err != nil {
			return Operand{}, "", err
		}
		return Operand{Kind: KindString, Raw: lx.data[start:lx.pos], Bytes: decoded}, "", nil

	case '<':
		if lx.pos+1 < len(lx.data) && lx.data[lx.pos+1] == '<' {
			elems, err := lx.dict()
			if err != nil {
				return Operand{}, "", err
			}
			return Operand{Kind: KindDict, Raw: lx.data[start:lx.pos], Elems: elems}, "", nil
		}
		decoded, err := lx.hex()
		if err != nil {
			return Operand{}, "", err
		}
		return Operand{Kind: KindHexString, Raw: lx.data[start:lx.pos], Bytes: decoded}, "", nil

	case '[':
		elems, err := lx.array()
		if err != nil {
			return Operand{}, "", err
		}
		return Operand{Kind: KindArray, Raw: lx.data[start:lx.pos], Elems: elems}, "", nil

	case '/':
		lx.pos++
		tok := lx.regular()
		return Operand{Kind: KindName, Raw: lx.data[start:lx.pos], Bytes: decodeName(tok)}, "", nil

	case ']', ')', '>', '{', '}':
		return Operand{}, "", fmt.Errorf("%w: unexpected %q at offset %d", ErrMalformed, c, lx.pos)
	}

	tok := lx.regular()
	if len(tok) == 0 {
		return Operand{}, "", fmt.Errorf("%w: unexpected byte 0x%02x at offset %d", ErrMalformed, c, lx.pos)
	}
	raw := lx.data[start:lx.pos]

	if isNumberStart(tok[0]) {
		if v, err := strconv.ParseFloat(string(tok), 64); err == nil {
			return Operand{Kind: KindNumber, Raw: raw, Num: v}, "", nil
		}
	}

	switch string(tok) {
	case "true", "false":
		return Operand{Kind: KindBool, Raw: raw}, "", nil
	case "null":
		return Operand{Kind: KindNull, Raw: raw}, "", nil
	}
	return Operand{}, string(tok), nil
}

func (lx *lexer) array() ([]Operand, error) {
	lx.pos++ // [
	var elems []Operand
	for {
		lx.skipSpace()
		if lx.pos >= len(lx.data) {
			return nil, fmt.Errorf("%w: unterminated array", ErrMalformed)
		}
		if lx.data[lx.pos] == ']' {
			lx.pos++
			return elems, nil
		}
		start := lx.pos
		operand, keyword, err := lx.next()
		if err != nil {
			return nil, err
		}
		if keyword != "" {
			operand = Operand{Kind: KindKeyword, Raw: lx.data[start:lx.pos]}
		}
		elems = append(elems, operand)
	}
}

func (lx *lexer) dict() ([]Operand, error) {
	lx.pos += 2 // <<
	var elems []Operand
	for {
		lx.skipSpace()
		if lx.pos >= len(lx.data) {
			return nil, fmt.Errorf("%w: unterminated dictionary", ErrMalformed)
		}
		if lx.data[lx.pos] == '>' {
			if lx.pos+1 < len(lx.data) && lx.data[lx.pos+1] == '>' {
				lx.pos += 2
				return elems, nil
			}
			return nil, fmt.Errorf("%w: stray '>' in dictionary", ErrMalformed)
		}
		start := lx.pos
		operand, keyword, err := lx.next()
		if err != nil {
			return nil, err
		}
		if keyword != "" {
			operand = Operand{Kind: KindKeyword, Raw: lx.data[start:lx.pos]}
		}
		elems = append(elems, operand)
	}
}

// literal reads a balanced (...) string and returns its decoded bytes.
func (lx *lexer) literal() ([]byte, error) {
	lx.pos++ // (
	depth := 1
	var out []byte
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		lx.pos++
		switch c {
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out, nil
			}
			out = append(out, c)
		case '\\':
			if lx.pos >= len(lx.data) {
				return nil, fmt.Errorf("%w: unterminated string", ErrMalformed)
			}
			e := lx.data[lx.pos]
			lx.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				// line continuation, optionally \r\n
				if lx.pos < len(lx.data) && lx.data[lx.pos] == '\n' {
					lx.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && lx.pos < len(lx.data); i++ {
						d := lx.data[lx.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v*8 + int(d-'0')
						lx.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
	}
	return nil, fmt.Errorf("%w: unterminated string", ErrMalformed)
}

func (lx *lexer) hex() ([]byte, error) {
	lx.pos++ // <
	var out []byte
	var hi byte
	half := false
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		lx.pos++
		if c == '>' {
			if half {
				out = append(out, hi<<4)
			}
			return out, nil
		}
		v, ok := hexValue(c)
		if !ok {
			continue
		}
		if half {
			out = append(out, hi<<4|v)
			half = false
		} else {
			hi = v
			half = true
		}
	}
	return nil, fmt.Errorf("%w: unterminated hex string", ErrMalformed)
}

// inlineImage consumes the dictionary and binary data of an inline image.
// start is the offset of the BI keyword.
func (lx *lexer) inlineImage(start int) ([]byte, error) {
	for {
		lx.skipSpace()
		if lx.pos >= len(lx.data) {
			return nil, fmt.Errorf("%w: inline image without ID", ErrMalformed)
		}
		_, keyword, err := lx.next()
		if err != nil {
			return nil, err
		}
		if keyword == "ID" {
			break
		}
	}
	// A single white-space byte separates ID from the image data.
	lx.pos++
	for i := lx.pos; i+1 < len(lx.data); i++ {
		if lx.data[i] != 'E' || lx.data[i+1] != 'I' {
			continue
		}
		if i > 0 && !isSpace(lx.data[i-1]) {
			continue
		}
		if i+2 < len(lx.data) && !isSpace(lx.data[i+2]) && !isDelimiter(lx.data[i+2]) {
			continue
		}
		lx.pos = i + 2
		return lx.data[start:lx.pos], nil
	}
	return nil, fmt.Errorf("%w: inline image without EI", ErrMalformed)
}

// regular reads a run of regular (non-space, non-delimiter) bytes.
func (lx *lexer) regular() []byte {
	start := lx.pos
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		if isSpace(c) || isDelimiter(c) {
			break
		}
		lx.pos++
	}
	return lx.data[start:lx.pos]
}

func (lx *lexer) skipSpace() {
	for lx.pos < len(lx.data) {
		c := lx.data[lx.pos]
		if c == '%' {
			for lx.pos < len(lx.data) && lx.data[lx.pos] != '\n' && lx.data[lx.pos] != '\r' {
				lx.pos++
			}
			continue
		}
		if !isSpace(c) {
			return
		}
		lx.pos++
	}
}

func decodeName(tok []byte) []byte {
	out := make([]byte, 0, len(tok))
	for i := 0; i < len(tok); i++ {
		if tok[i] == '#' && i+2 < len(tok) {
			h, ok1 := hexValue(tok[i+1])
			l, ok2 := hexValue(tok[i+2])
			if ok1 && ok2 {
				out = append(out, h<<4|l)
				i += 2
				continue
			}
		}
		out = append(out, tok[i])
	}
	return out
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func isNumberStart(c byte) bool {
	return (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == 0
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
