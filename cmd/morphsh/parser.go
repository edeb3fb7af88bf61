// parser.go — tiny recursive-descent reader for morphsh input.
//
// Grammar (informal):
//
//	value     := number [unit] | string | true | false | nil
//	           | '.' path | structure
//	structure := '{' [field (',' field)*] '}'
//	field     := ident '=' value | string '=' value
//	           | '.' path '=' value | value
//	shape     := '{' [spec (',' spec)*] '}' ['!']
//	spec      := [ident ':'] type ['[' guard (',' guard)* ']']
//	             ['<' ident '>'] ['*' int] ['=' value]
//	type      := atom ('|' atom)*
//	atom      := num | text | bool | any | nil | '.' path | ident
package main

import (
	"fmt"
	"strconv"
	"strings"

	morph "github.com/morphlang/morph"
)

type parser struct {
	s    string
	i    int
	tags *morph.Hierarchy
}

func newParser(src string) *parser { return &parser{s: src} }

func (p *parser) ws() {
	for p.i < len(p.s) && (p.s[p.i] == ' ' || p.s[p.i] == '\t') {
		p.i++
	}
}

func (p *parser) eof() bool {
	p.ws()
	return p.i >= len(p.s)
}

func (p *parser) peek() byte {
	p.ws()
	if p.i >= len(p.s) {
		return 0
	}
	return p.s[p.i]
}

func (p *parser) accept(c byte) bool {
	if p.peek() == c {
		p.i++
		return true
	}
	return false
}

func (p *parser) expect(c byte) error {
	if !p.accept(c) {
		return fmt.Errorf("expected %q at offset %d", string(c), p.i)
	}
	return nil
}

func isIdentByte(c byte, first bool) bool {
	if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' {
		return true
	}
	return !first && (c >= '0' && c <= '9')
}

func (p *parser) ident() string {
	p.ws()
	start := p.i
	for p.i < len(p.s) && isIdentByte(p.s[p.i], p.i == start) {
		p.i++
	}
	return p.s[start:p.i]
}

func (p *parser) tagPath() ([]string, error) {
	var path []string
	for {
		name := p.ident()
		if name == "" {
			return nil, fmt.Errorf("expected tag name at offset %d", p.i)
		}
		path = append(path, name)
		if p.i < len(p.s) && p.s[p.i] == '.' {
			p.i++
			continue
		}
		return path, nil
	}
}

func (p *parser) lookupTag(path []string) (morph.TagID, error) {
	if p.tags == nil {
		return morph.NoTag, fmt.Errorf("no tag hierarchy in scope")
	}
	id, ok := p.tags.Find(path...)
	if !ok {
		return morph.NoTag, fmt.Errorf("unknown tag .%s", strings.Join(path, "."))
	}
	return id, nil
}

func (p *parser) string() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	start := p.i - 1
	for p.i < len(p.s) {
		switch p.s[p.i] {
		case '\\':
			p.i += 2
		case '"':
			p.i++
			out, err := strconv.Unquote(p.s[start:p.i])
			if err != nil {
				return "", fmt.Errorf("bad string literal: %v", err)
			}
			return out, nil
		default:
			p.i++
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *parser) number() (float64, error) {
	p.ws()
	start := p.i
	for p.i < len(p.s) && strings.IndexByte("0123456789+-.eE", p.s[p.i]) >= 0 {
		p.i++
	}
	f, err := strconv.ParseFloat(p.s[start:p.i], 64)
	if err != nil {
		return 0, fmt.Errorf("bad number at offset %d", start)
	}
	return f, nil
}

// -----------------------------------------------------------------------------
// values and structures
// -----------------------------------------------------------------------------

func (p *parser) parseValue() (morph.Value, error) {
	switch c := p.peek(); {
	case c == '"':
		s, err := p.string()
		if err != nil {
			return morph.Nil, err
		}
		return morph.Text(s), nil
	case c == '{':
		st, err := p.parseStructure()
		if err != nil {
			return morph.Nil, err
		}
		return morph.Struct(st), nil
	case c == '.':
		p.i++
		path, err := p.tagPath()
		if err != nil {
			return morph.Nil, err
		}
		id, err := p.lookupTag(path)
		if err != nil {
			return morph.Nil, err
		}
		return morph.Tag(id), nil
	case c >= '0' && c <= '9' || c == '-':
		f, err := p.number()
		if err != nil {
			return morph.Nil, err
		}
		v := morph.Number(f)
		// trailing ident is a unit annotation: 5 cm
		save := p.i
		if unit := p.ident(); unit != "" {
			v = v.WithUnit(unit)
		} else {
			p.i = save
		}
		return v, nil
	default:
		switch word := p.ident(); word {
		case "true":
			return morph.Bool(true), nil
		case "false":
			return morph.Bool(false), nil
		case "nil":
			return morph.Nil, nil
		case "":
			return morph.Nil, fmt.Errorf("expected a value at offset %d", p.i)
		default:
			return morph.Nil, fmt.Errorf("unexpected %q", word)
		}
	}
}

func (p *parser) parseStructure() (*morph.Structure, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	var fields []morph.Field
	for {
		if p.accept('}') {
			return morph.NewStructure(fields...), nil
		}
		f, err := p.parseField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
		if p.accept(',') {
			continue
		}
		if p.accept('}') {
			return morph.NewStructure(fields...), nil
		}
		return nil, fmt.Errorf("expected ',' or '}' at offset %d", p.i)
	}
}

func (p *parser) parseField() (morph.Field, error) {
	switch c := p.peek(); {
	case c == '"':
		save := p.i
		s, err := p.string()
		if err != nil {
			return morph.Field{}, err
		}
		if p.accept('=') {
			v, err := p.parseValue()
			if err != nil {
				return morph.Field{}, err
			}
			return morph.Field{Key: morph.StringKey(s), Value: v}, nil
		}
		p.i = save
	case c == '.':
		save := p.i
		p.i++
		path, err := p.tagPath()
		if err != nil {
			return morph.Field{}, err
		}
		if p.accept('=') {
			id, err := p.lookupTag(path)
			if err != nil {
				return morph.Field{}, err
			}
			v, err := p.parseValue()
			if err != nil {
				return morph.Field{}, err
			}
			return morph.Field{Key: morph.TagKey(id), Value: v}, nil
		}
		p.i = save
	case isIdentByte(c, true):
		save := p.i
		name := p.ident()
		if name != "true" && name != "false" && name != "nil" && p.accept('=') {
			v, err := p.parseValue()
			if err != nil {
				return morph.Field{}, err
			}
			return morph.Named(name, v), nil
		}
		p.i = save
	}
	v, err := p.parseValue()
	if err != nil {
		return morph.Field{}, err
	}
	return morph.Anon(v), nil
}

// -----------------------------------------------------------------------------
// shapes
// -----------------------------------------------------------------------------

func (p *parser) parseShape(name string) (*morph.ShapeDef, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	shape := &morph.ShapeDef{Name: name}
	for {
		if p.accept('}') {
			break
		}
		spec, err := p.parseSpec()
		if err != nil {
			return nil, err
		}
		shape.Fields = append(shape.Fields, spec)
		if p.accept(',') {
			continue
		}
		if p.accept('}') {
			break
		}
		return nil, fmt.Errorf("expected ',' or '}' at offset %d", p.i)
	}
	if p.accept('!') {
		shape.Extra = morph.Reject
	}
	if !p.eof() {
		return nil, fmt.Errorf("trailing input at offset %d", p.i)
	}
	return shape, nil
}

func (p *parser) parseSpec() (morph.FieldSpec, error) {
	var spec morph.FieldSpec

	save := p.i
	if name := p.ident(); name != "" && p.accept(':') {
		spec.Name = name
	} else {
		p.i = save
	}

	t, err := p.parseType()
	if err != nil {
		return spec, err
	}
	spec.Type = t

	if p.accept('[') {
		for {
			g, err := p.parseGuard()
			if err != nil {
				return spec, err
			}
			spec.Guards = append(spec.Guards, g)
			if p.accept(',') {
				continue
			}
			if err := p.expect(']'); err != nil {
				return spec, err
			}
			break
		}
	}
	if p.accept('<') {
		spec.Unit = p.ident()
		if err := p.expect('>'); err != nil {
			return spec, err
		}
	}
	if p.accept('*') {
		n, err := p.number()
		if err != nil {
			return spec, err
		}
		spec.Card = morph.Exactly(int(n))
	}
	if p.accept('=') {
		v, err := p.parseValue()
		if err != nil {
			return spec, err
		}
		spec.Default = func() morph.Value { return v }
	}
	return spec, nil
}

func (p *parser) parseType() (morph.TypeRef, error) {
	atom, err := p.parseTypeAtom()
	if err != nil {
		return morph.Any(), err
	}
	alts := []morph.TypeRef{atom}
	for p.accept('|') {
		next, err := p.parseTypeAtom()
		if err != nil {
			return morph.Any(), err
		}
		alts = append(alts, next)
	}
	if len(alts) == 1 {
		return alts[0], nil
	}
	return morph.Union(alts...), nil
}

func (p *parser) parseTypeAtom() (morph.TypeRef, error) {
	if p.peek() == '.' {
		p.i++
		path, err := p.tagPath()
		if err != nil {
			return morph.Any(), err
		}
		id, err := p.lookupTag(path)
		if err != nil {
			return morph.Any(), err
		}
		return morph.TagT(id), nil
	}
	switch word := p.ident(); word {
	case "num":
		return morph.NumT(), nil
	case "text":
		return morph.TextT(), nil
	case "bool":
		return morph.BoolT(), nil
	case "nil":
		return morph.NilT(), nil
	case "any":
		return morph.Any(), nil
	case "":
		return morph.Any(), fmt.Errorf("expected a type at offset %d", p.i)
	default:
		return morph.ShapeT(word), nil
	}
}

func (p *parser) parseGuard() (morph.GuardDef, error) {
	name := p.ident()
	switch name {
	case "min", "max", "minLen", "maxLen":
		if err := p.expect('='); err != nil {
			return morph.GuardDef{}, err
		}
		f, err := p.number()
		if err != nil {
			return morph.GuardDef{}, err
		}
		switch name {
		case "min":
			return morph.Min(f), nil
		case "max":
			return morph.Max(f), nil
		case "minLen":
			return morph.MinLen(int(f)), nil
		default:
			return morph.MaxLen(int(f)), nil
		}
	case "matches":
		if err := p.expect('='); err != nil {
			return morph.GuardDef{}, err
		}
		pat, err := p.string()
		if err != nil {
			return morph.GuardDef{}, err
		}
		return morph.Matches(pat), nil
	case "nonNil":
		return morph.NonNil(), nil
	case "":
		return morph.GuardDef{}, fmt.Errorf("expected a guard at offset %d", p.i)
	default:
		return morph.GuardDef{}, fmt.Errorf("unknown guard %q", name)
	}
}
