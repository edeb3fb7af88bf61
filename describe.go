// describe.go
//
// Shape introspection for documentation tooling: a structured ShapeDoc
// view (fields, defaults, guards) and a JSON Schema export. Shape
// references become local `$ref`s materialized under `$defs`, with a
// cycle guard so self-referential shapes emit a finite document.
// Constraints JSON Schema cannot express natively travel as `x-` keys.
package morph

import "encoding/json"

// FieldDoc documents one field spec.
type FieldDoc struct {
	Name     string   `json:"name,omitempty"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Default  string   `json:"default,omitempty"`
	Guards   []string `json:"guards,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Min      int      `json:"min,omitempty"`
	Max      int      `json:"max,omitempty"`
}

// ShapeDoc is the introspection view of a shape.
type ShapeDoc struct {
	Name    string     `json:"name"`
	Extra   string     `json:"extra"`
	BuildID string     `json:"buildId,omitempty"`
	Fields  []FieldDoc `json:"fields"`
}

// Describe returns the introspection view of a shape: every field with
// its type, requiredness, rendered default, guard names, unit, and
// cardinality, plus the registry build fingerprint.
func (e *Engine) Describe(shape *ShapeDef) *ShapeDoc {
	doc := &ShapeDoc{
		Name:    shape.Name,
		Extra:   "passThrough",
		BuildID: e.Shapes.BuildID().String(),
	}
	if shape.Extra == Reject {
		doc.Extra = "reject"
	}
	for i := range shape.Fields {
		fs := &shape.Fields[i]
		fd := FieldDoc{
			Name:     fs.Name,
			Type:     fs.Type.describe(e.Tags),
			Required: fs.Default == nil,
			Unit:     fs.Unit,
		}
		if fs.Default != nil {
			fd.Default = formatValue(fs.Default(), e.Tags)
		}
		for _, g := range fs.Guards {
			fd.Guards = append(fd.Guards, g.Name)
		}
		if fs.Card != nil {
			fd.Min, fd.Max = fs.Card.Min, fs.Card.Max
		}
		doc.Fields = append(doc.Fields, fd)
	}
	return doc
}

// DescribeJSON is Describe marshalled with indentation.
func (e *Engine) DescribeJSON(shape *ShapeDef) (string, error) {
	out, err := json.MarshalIndent(e.Describe(shape), "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// -----------------------------
// JSON Schema export
// -----------------------------

// ShapeSchema converts a shape into a JSON Schema object. Referenced
// shapes are emitted as {"$ref":"#/$defs/Name"} and materialized under
// "$defs"; recursion is cycle-guarded.
func (e *Engine) ShapeSchema(shape *ShapeDef) map[string]any {
	defs := map[string]any{}
	root := e.shapeToSchema(shape, defs, map[string]bool{})
	if len(defs) > 0 {
		root["$defs"] = defs
	}
	return root
}

func (e *Engine) shapeToSchema(shape *ShapeDef, defs map[string]any, visiting map[string]bool) map[string]any {
	props := map[string]any{}
	var req []any
	for i := range shape.Fields {
		fs := &shape.Fields[i]
		key := fs.label(i)
		ps := e.typeToSchema(fs.Type, defs, visiting)
		if fs.Card != nil {
			ps = map[string]any{
				"type":     "array",
				"items":    ps,
				"minItems": fs.Card.Min,
				"maxItems": fs.Card.Max,
			}
		}
		if fs.Unit != "" {
			ps["x-unit"] = fs.Unit
		}
		if len(fs.Guards) > 0 {
			var gs []any
			for _, g := range fs.Guards {
				gs = append(gs, g.Name)
			}
			ps["x-guards"] = gs
		}
		if fs.Default != nil {
			ps["default"] = formatValue(fs.Default(), e.Tags)
		} else {
			req = append(req, key)
		}
		props[key] = ps
	}
	out := map[string]any{"type": "object", "properties": props}
	if len(req) > 0 {
		out["required"] = req
	}
	if shape.Extra == Reject {
		out["additionalProperties"] = false
	}
	return out
}

func (e *Engine) typeToSchema(t TypeRef, defs map[string]any, visiting map[string]bool) map[string]any {
	switch t.kind {
	case typePrim:
		switch t.prim {
		case KindNumber:
			return map[string]any{"type": "number"}
		case KindText:
			return map[string]any{"type": "string"}
		case KindBool:
			return map[string]any{"type": "boolean"}
		case KindNil:
			return map[string]any{"type": "null"}
		}
		return map[string]any{}
	case typeShape:
		if visiting[t.shape] {
			return map[string]any{"$ref": "#/$defs/" + t.shape}
		}
		if _, ok := defs[t.shape]; !ok {
			if nested, err := e.Shapes.Lookup(t.shape); err == nil {
				visiting[t.shape] = true
				defs[t.shape] = e.shapeToSchema(nested, defs, visiting)
				delete(visiting, t.shape)
			}
		}
		return map[string]any{"$ref": "#/$defs/" + t.shape}
	case typeTag:
		sch := map[string]any{"type": "string"}
		if e.Tags != nil {
			sch["x-tag-family"] = e.Tags.Path(t.tag)
		}
		return sch
	case typeUnion:
		var anyOf []any
		for _, a := range t.alts {
			anyOf = append(anyOf, e.typeToSchema(a, defs, visiting))
		}
		return map[string]any{"anyOf": anyOf}
	default: // any
		return map[string]any{}
	}
}
