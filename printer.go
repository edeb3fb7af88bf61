// printer.go
//
// Human-readable rendering of values, structures, shapes, and dispatch
// sets. Used by diagnostics, Describe, and the morphsh shell. Output is
// plain text; the shell adds its own color.
package morph

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// MaxInlineWidth is the width threshold below which structures render on
// a single line.
var MaxInlineWidth = 80

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	rs := []rune(s)
	if !(unicode.IsLetter(rs[0]) || rs[0] == '_') {
		return false
	}
	for _, r := range rs[1:] {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return false
		}
	}
	return true
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FormatValue renders a value. Tags render as their raw id (`tag:7`); use
// an Engine's FormatValue for path-aware rendering. Lazy values render
// without being forced.
func FormatValue(v Value) string {
	return formatValue(v, nil)
}

// FormatValue renders a value with tag ids resolved to dotted paths.
func (e *Engine) FormatValue(v Value) string {
	return formatValue(v, e.Tags)
}

func formatValue(v Value, h *Hierarchy) string {
	var body string
	switch v.Kind {
	case KindNil:
		body = "nil"
	case KindNumber:
		body = formatNumber(v.Num())
	case KindText:
		body = quoteString(v.Str())
	case KindBool:
		body = fmt.Sprintf("%v", v.Data.(bool))
	case KindTag:
		if h != nil {
			body = "." + h.Path(v.TagID())
		} else {
			body = "tag:" + strconv.Itoa(int(v.TagID()))
		}
	case KindStruct:
		body = formatStructure(v.StructVal(), h)
	case KindLazy:
		body = "<lazy>"
	default:
		body = "<unknown>"
	}
	if v.Unit != "" {
		body += " " + v.Unit
	}
	return body
}

// FormatStructure renders a structure as {a=1, "x y"=2, 3}.
func FormatStructure(s *Structure) string { return formatStructure(s, nil) }

func (e *Engine) FormatStructure(s *Structure) string { return formatStructure(s, e.Tags) }

func formatStructure(s *Structure, h *Hierarchy) string {
	parts := make([]string, 0, s.Len())
	for _, f := range s.Fields() {
		val := formatValue(f.Value, h)
		switch f.Key.Kind {
		case KeyName:
			parts = append(parts, f.Key.Name+"="+val)
		case KeyString:
			parts = append(parts, quoteString(f.Key.Name)+"="+val)
		case KeyTag:
			if h != nil {
				parts = append(parts, "."+h.Path(f.Key.Tag)+"="+val)
			} else {
				parts = append(parts, f.Key.String()+"="+val)
			}
		default:
			parts = append(parts, val)
		}
	}
	inline := "{" + strings.Join(parts, ", ") + "}"
	if len(inline) <= MaxInlineWidth {
		return inline
	}
	return "{\n  " + strings.Join(parts, ",\n  ") + "\n}"
}

// FormatShape renders a shape signature like
// `point3d = {x: num, y: num, z: num}` with defaults, guards, units, and
// cardinality annotations.
func (e *Engine) FormatShape(shape *ShapeDef) string {
	var parts []string
	for i := range shape.Fields {
		fs := &shape.Fields[i]
		var b strings.Builder
		if fs.Name != "" {
			if isIdent(fs.Name) {
				b.WriteString(fs.Name)
			} else {
				b.WriteString(quoteString(fs.Name))
			}
			b.WriteString(": ")
		}
		b.WriteString(fs.Type.describe(e.Tags))
		for _, g := range fs.Guards {
			b.WriteString(" [" + g.Name)
			for _, a := range g.Args {
				b.WriteString(" " + formatValue(a, e.Tags))
			}
			b.WriteString("]")
		}
		if fs.Unit != "" {
			b.WriteString(" <" + fs.Unit + ">")
		}
		if fs.Card != nil {
			if fs.Card.Min == fs.Card.Max {
				fmt.Fprintf(&b, "{%d}", fs.Card.Min)
			} else {
				fmt.Fprintf(&b, "{%d..%d}", fs.Card.Min, fs.Card.Max)
			}
		}
		if fs.Default != nil {
			b.WriteString(" = " + formatValue(fs.Default(), e.Tags))
		}
		parts = append(parts, b.String())
	}
	body := "{" + strings.Join(parts, ", ") + "}"
	if shape.Extra == Reject {
		body += "!"
	}
	return shape.Name + " = " + body
}

// FormatDispatchSet renders a set as one candidate per line.
func (e *Engine) FormatDispatchSet(set *DispatchSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", set.Name)
	for _, c := range set.Candidates() {
		fmt.Fprintf(&b, "  %-8s %s\n", c.Strength, e.FormatShape(c.Shape))
	}
	return strings.TrimRight(b.String(), "\n")
}
