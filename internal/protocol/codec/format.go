package codec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/danmuck/typechan/internal/protocol"
	"github.com/danmuck/typechan/internal/protocol/schema"
)

var directiveRE = regexp.MustCompile(`%(?:%|([-+ #0]*)(\d+)?(?:\.(\d*))?(hh|h|ll|l|j|z|t|L)?([diuoxXfFeEgGaAscp*]))`)

// Format is a compiled printf/scanf pattern.
type Format struct {
	pattern    string
	directives []directive
	fields     []*schema.Descriptor
}

type directive struct {
	start, end int
	flags      string
	width      string
	prec       string
	length     string
	verb       byte
	imag       bool
}

func (d directive) float() bool {
	return strings.IndexByte("fFeEgGaA", d.verb) >= 0
}

// CompileFormat parses every conversion in pattern into a field
// descriptor. A float directive immediately followed by a '+'-flagged
// float directive and a literal 'j' compiles to one complex field.
func CompileFormat(pattern string) (*Format, error) {
	f := &Format{pattern: pattern}
	for _, m := range directiveRE.FindAllStringSubmatchIndex(pattern, -1) {
		if pattern[m[0]:m[1]] == "%%" {
			continue
		}
		dir := directive{start: m[0], end: m[1], verb: pattern[m[10]]}
		if m[2] >= 0 {
			dir.flags = pattern[m[2]:m[3]]
		}
		if m[4] >= 0 {
			dir.width = pattern[m[4]:m[5]]
		}
		if m[6] >= 0 {
			dir.prec = "." + pattern[m[6]:m[7]]
		}
		if m[8] >= 0 {
			dir.length = pattern[m[8]:m[9]]
		}
		switch dir.verb {
		case 'p', '*':
			return nil, &protocol.SchemaError{Path: pattern, Reason: fmt.Sprintf("unsupported conversion %q", pattern[m[0]:m[1]])}
		}
		f.directives = append(f.directives, dir)
	}

	for i := 0; i < len(f.directives); i++ {
		dir := f.directives[i]
		if dir.float() && i+1 < len(f.directives) {
			next := f.directives[i+1]
			if next.float() && next.start == dir.end && strings.Contains(next.flags, "+") &&
				next.end < len(pattern) && pattern[next.end] == 'j' {
				f.directives[i+1].imag = true
				f.fields = append(f.fields, schema.Scalar(schema.TypeComplex, 2*floatPrecision(dir)))
				i++
				continue
			}
		}
		d, err := fieldFor(dir)
		if err != nil {
			return nil, &protocol.SchemaError{Path: pattern, Reason: err.Error()}
		}
		f.fields = append(f.fields, d)
	}
	return f, nil
}

func intPrecision(length string) int {
	switch length {
	case "hh":
		return 8
	case "h":
		return 16
	case "l", "ll", "j", "z", "t":
		return 64
	default:
		return 32
	}
}

// floatPrecision is 64 for every float directive; Go has no long double.
func floatPrecision(directive) int {
	return 64
}

func fieldFor(dir directive) (*schema.Descriptor, error) {
	switch dir.verb {
	case 'd', 'i':
		return schema.Scalar(schema.TypeInt, intPrecision(dir.length)), nil
	case 'u', 'o', 'x', 'X':
		return schema.Scalar(schema.TypeUint, intPrecision(dir.length)), nil
	case 's':
		return schema.Scalar(schema.TypeBytes, 0), nil
	case 'c':
		return schema.Scalar(schema.TypeBytes, 8), nil
	}
	if dir.float() {
		return schema.Scalar(schema.TypeFloat, floatPrecision(dir)), nil
	}
	return nil, fmt.Errorf("unsupported conversion %%%c", dir.verb)
}

// Pattern returns the source pattern.
func (f *Format) Pattern() string { return f.pattern }

// Fields returns the ordered field descriptors.
func (f *Format) Fields() []*schema.Descriptor {
	out := make([]*schema.Descriptor, len(f.fields))
	copy(out, f.fields)
	return out
}

// NumFields is the number of values one message carries.
func (f *Format) NumFields() int { return len(f.fields) }

// Check fails with *protocol.FormatMismatchError unless n values match.
func (f *Format) Check(n int, where string) error {
	return CheckArity(f.fields, n, where)
}

// CheckArity fails with *protocol.FormatMismatchError when n differs from
// the number of fields.
func CheckArity(fields []*schema.Descriptor, n int, where string) error {
	if n != len(fields) {
		return &protocol.FormatMismatchError{Expected: len(fields), Got: n, Where: where}
	}
	return nil
}

// GoPattern renders the pattern for fmt.Sprintf. Length modifiers are
// dropped, %i and %u become %d, %c becomes %s and %a becomes %x.
func (f *Format) GoPattern() string {
	return f.render(false)
}

// ReceivePattern renders the pattern for fmt.Sscanf. Float directives
// lose their flags, width and precision, which scanning cannot honor;
// other directives keep only their width.
func (f *Format) ReceivePattern() string {
	return f.render(true)
}

func (f *Format) render(receive bool) string {
	var b strings.Builder
	last := 0
	for _, dir := range f.directives {
		b.WriteString(f.pattern[last:dir.start])
		last = dir.end
		b.WriteByte('%')
		verb := goVerb(dir.verb, receive)
		switch {
		case receive && dir.float():
		case receive:
			b.WriteString(dir.width)
		default:
			b.WriteString(dir.flags)
			b.WriteString(dir.width)
			b.WriteString(dir.prec)
		}
		b.WriteByte(verb)
	}
	b.WriteString(f.pattern[last:])
	return b.String()
}

func goVerb(verb byte, receive bool) byte {
	switch verb {
	case 'i', 'u':
		return 'd'
	case 'a':
		return 'x'
	case 'A':
		return 'X'
	case 'c':
		if receive {
			return 'c'
		}
		return 's'
	default:
		return verb
	}
}
