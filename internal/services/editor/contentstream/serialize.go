package contentstream

import (
	"bytes"
	"math"
	"strconv"
	"strings"
)

// Serialize writes operations back into content stream syntax, one
// operation per line.
func Serialize(ops []Op) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		if op.Inline != nil {
			buf.Write(op.Inline)
			buf.WriteByte('\n')
			continue
		}
		for _, o := range op.Operands {
			buf.Write(o.Raw)
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Number builds a numeric operand.
func Number(v float64) Operand {
	return Operand{Kind: KindNumber, Raw: []byte(FormatNumber(v)), Num: v}
}

// Hex builds a hex string operand from raw bytes.
func Hex(b []byte) Operand {
	const digits = "0123456789ABCDEF"
	raw := make([]byte, 0, 2*len(b)+2)
	raw = append(raw, '<')
	for _, c := range b {
		raw = append(raw, digits[c>>4], digits[c&0x0f])
	}
	raw = append(raw, '>')
	return Operand{Kind: KindHexString, Raw: raw, Bytes: append([]byte(nil), b...)}
}

// Name builds a name operand. The name must not need escaping.
func Name(s string) Operand {
	return Operand{Kind: KindName, Raw: []byte("/" + s), Bytes: []byte(s)}
}

// Array builds an array operand.
func Array(elems ...Operand) Operand {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range elems {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.Write(e.Raw)
	}
	buf.WriteByte(']')
	return Operand{Kind: KindArray, Raw: buf.Bytes(), Elems: elems}
}

// FormatNumber renders v the way PDF writers usually do: integers without a
// fraction, everything else with at most five decimals.
func FormatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	s := strconv.FormatFloat(v, 'f', 5, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}
