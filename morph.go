// morph.go
//
// The morph engine.
//
// Morphing validates and converts a structure to conform to a shape. The
// phase order is a binding invariant of the whole system, not an
// implementation detail:
//
//	1. named matching      — specs with names bind same-named input fields
//	2. tag-typed matching  — tag-family specs bind by value tag, not name
//	3. positional matching — remaining specs consume unnamed fields in order
//	4. defaults            — unbound specs evaluate their default, or fail
//	5. guards              — ordered constraints on every bound value
//	6. units               — reconcile value units with spec requirements
//	7. extra-field policy  — pass leftovers through, or reject them
//
// Phases 1–3 live in the matching core (`match`), which the specificity
// scorer reuses in dry-run mode. Sharing the core is what guarantees the
// candidate the scorer picks and the structure Morph produces never
// diverge on field layout.
//
// Morph is pure: it never mutates the input, a registry, or the hierarchy;
// every output is newly constructed. Lazy values are forced only when a
// phase must inspect them (type check on a non-any spec, guards, units);
// a lazy field bound to an unconstrained spec, and every passed-through
// extra field, stays lazy.
package morph

import "fmt"

// Engine bundles the frozen registries morphing needs. Construct one after
// module build; it is immutable and safe for concurrent use.
type Engine struct {
	Shapes *Registry
	Tags   *Hierarchy
	Units  *UnitTable
}

// NewEngine wires a frozen registry, hierarchy, and unit table. The
// hierarchy and unit table may be nil when shapes use neither tags nor
// units. Unfrozen inputs are refused: freezing is what makes sharing safe.
func NewEngine(shapes *Registry, tags *Hierarchy, units *UnitTable) (*Engine, error) {
	if shapes == nil || !shapes.Frozen() {
		return nil, fmt.Errorf("engine requires a frozen shape registry")
	}
	if tags != nil && !tags.Frozen() {
		return nil, fmt.Errorf("engine requires a frozen tag hierarchy")
	}
	if units == nil {
		units = Standard()
	}
	units.Freeze()
	return &Engine{Shapes: shapes, Tags: tags, Units: units}, nil
}

// -----------------------------
// Matching core (phases 1–3)
// -----------------------------

// binding records what one field spec consumed. Card specs may hold
// several values; default bindings hold none until commit.
type binding struct {
	bound       bool
	fromDefault bool
	values      []Value
	tagDepth    uint32 // non-zero only for phase-2 matches
}

// matchPlan is the outcome of phases 1–3 plus the default-availability
// check: everything scoring needs, and everything commit starts from.
type matchPlan struct {
	bindings   []binding
	leftovers  []Field // unconsumed input, in input order
	named      int
	positional int
	tagDepth   uint32
	defaults   int
}

// match runs phases 1–3 against the shape, never committing anything:
// no defaults are materialized, no guards or unit conversions run, and
// lazy values conform to anything. A nil plan comes with the morph
// failure that committing would have hit; scoring maps it to NoMatch.
func (e *Engine) match(input *Structure, shape *ShapeDef) (*matchPlan, error) {
	plan := &matchPlan{bindings: make([]binding, len(shape.Fields))}
	pool := input.Fields()
	taken := make([]bool, len(pool))

	// Phase 1: named matching.
	for si := range shape.Fields {
		spec := &shape.Fields[si]
		if spec.Name == "" {
			continue
		}
		for pi, f := range pool {
			if taken[pi] {
				continue
			}
			k := f.Key
			if (k.Kind != KeyName && k.Kind != KeyString) || k.Name != spec.Name {
				continue
			}
			if err := e.conforms(f.Value, spec, shape, si); err != nil {
				return nil, err
			}
			plan.bindings[si] = binding{bound: true, values: []Value{f.Value}}
			taken[pi] = true
			plan.named++
			break
		}
	}

	// Phase 2: tag-typed matching. Specs whose type is a tag family scan
	// the remaining pool for a tag value matched by type, not name.
	for si := range shape.Fields {
		spec := &shape.Fields[si]
		if plan.bindings[si].bound {
			continue
		}
		family, ok := spec.Type.IsTag()
		if !ok || e.Tags == nil {
			continue
		}
		for pi, f := range pool {
			if taken[pi] {
				continue
			}
			v := f.Value
			if v.Kind == KindLazy {
				continue // lazy values never force for tag scanning
			}
			if v.Kind != KindTag || !e.Tags.MatchesType(v.TagID(), family) {
				continue
			}
			depth := e.Tags.Depth(v.TagID())
			plan.bindings[si] = binding{bound: true, values: []Value{v}, tagDepth: depth}
			plan.tagDepth += depth
			taken[pi] = true
			break
		}
	}

	// Phase 3: positional matching. Remaining specs, in declaration order,
	// consume remaining unnamed fields left to right. A cardinality spec
	// consumes a run of up to Max, requiring Min.
	next := 0
	advance := func() int {
		for next < len(pool) {
			if !taken[next] && pool[next].Key.Kind == KeyPos {
				return next
			}
			next++
		}
		return -1
	}
	for si := range shape.Fields {
		spec := &shape.Fields[si]
		if plan.bindings[si].bound {
			continue
		}
		if spec.Card != nil {
			var vals []Value
			for len(vals) < spec.Card.Max {
				pi := advance()
				if pi < 0 {
					break
				}
				if err := e.conforms(pool[pi].Value, spec, shape, si); err != nil {
					return nil, err
				}
				vals = append(vals, pool[pi].Value)
				taken[pi] = true
			}
			if len(vals) == 0 {
				continue // unbound; defaults decide
			}
			if len(vals) < spec.Card.Min {
				return nil, &MissingFieldError{Shape: shape.Name, Field: spec.label(si)}
			}
			plan.bindings[si] = binding{bound: true, values: vals}
			plan.positional += len(vals)
			continue
		}
		pi := advance()
		if pi < 0 {
			continue
		}
		if err := e.conforms(pool[pi].Value, spec, shape, si); err != nil {
			return nil, err
		}
		plan.bindings[si] = binding{bound: true, values: []Value{pool[pi].Value}}
		taken[pi] = true
		plan.positional++
	}

	// Phase 4, counting half: every unbound spec needs a default.
	for si := range shape.Fields {
		if plan.bindings[si].bound {
			continue
		}
		spec := &shape.Fields[si]
		if spec.Default == nil {
			return nil, &MissingFieldError{Shape: shape.Name, Field: spec.label(si)}
		}
		plan.bindings[si] = binding{fromDefault: true}
		plan.defaults++
	}

	// Leftovers, and the Reject policy. Checking Reject here keeps the
	// scorer from electing a candidate whose morph must fail on layout.
	for pi, f := range pool {
		if !taken[pi] {
			if shape.Extra == Reject {
				return nil, &UnexpectedFieldError{Shape: shape.Name, Key: f.Key}
			}
			plan.leftovers = append(plan.leftovers, f)
		}
	}
	return plan, nil
}

// conforms checks a candidate value against a spec's declared type. Lazy
// values conform to anything at match time; the committing morph forces
// them later if the spec actually constrains them. A mismatch is reported
// as a constraint violation on the pseudo-guard "type".
func (e *Engine) conforms(v Value, spec *FieldSpec, shape *ShapeDef, si int) error {
	if v.Kind == KindLazy {
		return nil
	}
	if e.typeAccepts(v, spec.Type) {
		return nil
	}
	return &ConstraintViolationError{
		Shape:   shape.Name,
		Field:   spec.label(si),
		Guard:   "type",
		Message: fmt.Sprintf("%s does not satisfy %s", v.Kind, spec.Type.describe(e.Tags)),
	}
}

func (e *Engine) typeAccepts(v Value, t TypeRef) bool {
	switch t.kind {
	case typeAny:
		return true
	case typePrim:
		return v.Kind == t.prim
	case typeTag:
		return v.Kind == KindTag && e.Tags != nil && e.Tags.MatchesType(v.TagID(), t.tag)
	case typeShape:
		if v.Kind != KindStruct {
			return false
		}
		nested, err := e.Shapes.Lookup(t.shape)
		if err != nil {
			return false
		}
		_, merr := e.match(v.StructVal(), nested)
		return merr == nil
	case typeUnion:
		for _, a := range t.alts {
			if e.typeAccepts(v, a) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// -----------------------------
// Commit (phases 4–7)
// -----------------------------

// Morph validates and converts input to conform to shape. On success the
// result's fields follow the shape's declaration order, with unconsumed
// input appended unchanged under PassThrough. On failure the input is
// untouched and the returned error is one of the morph failure types.
func (e *Engine) Morph(input *Structure, shape *ShapeDef) (*Structure, error) {
	plan, err := e.match(input, shape)
	if err != nil {
		return nil, err
	}

	var out []Field
	for si := range shape.Fields {
		spec := &shape.Fields[si]
		b := plan.bindings[si]

		values := b.values
		if b.fromDefault {
			// Defaults are pure expressions evaluated in the shape's
			// defining scope (the closure's captured environment).
			values = []Value{spec.Default()}
		}

		for _, v := range values {
			v, err = e.commitValue(v, spec, shape, si, b.fromDefault)
			if err != nil {
				return nil, err
			}
			if spec.Name != "" {
				out = append(out, Named(spec.Name, v))
			} else {
				out = append(out, Anon(v))
			}
		}
	}
	out = append(out, plan.leftovers...)
	return NewStructure(out...), nil
}

// commitValue finishes one bound value: forces it if the spec constrains
// it, re-validates defaults and forced lazies, morphs nested shapes, runs
// guards, and reconciles units.
func (e *Engine) commitValue(v Value, spec *FieldSpec, shape *ShapeDef, si int, fromDefault bool) (Value, error) {
	needsForce := spec.Type.kind != typeAny || len(spec.Guards) > 0 || spec.Unit != ""
	wasLazy := v.Kind == KindLazy
	if wasLazy && needsForce {
		v = Force(v)
	}
	if wasLazy && !needsForce {
		return v, nil // unconstrained: preserve laziness
	}
	if wasLazy || fromDefault {
		// Match-time conformance never saw this value.
		if err := e.conforms(v, spec, shape, si); err != nil {
			return Nil, err
		}
	}

	// Nested morph for shape-typed fields (first accepting union
	// alternative wins, tried left to right).
	if v.Kind == KindStruct {
		if nested, ok := e.acceptingShape(v, spec.Type); ok {
			morphed, err := e.Morph(v.StructVal(), nested)
			if err != nil {
				return Nil, err
			}
			v = Struct(morphed)
		}
	}

	// Phase 5: guards, in declaration order, first failure aborts.
	for _, g := range spec.Guards {
		if gerr := g.run(v); gerr != nil {
			return Nil, &ConstraintViolationError{
				Shape:   shape.Name,
				Field:   spec.label(si),
				Guard:   g.Name,
				Message: gerr.Error(),
				Cause:   gerr,
			}
		}
	}

	// Phase 6: unit reconciliation. Only values that carry a unit are
	// reconciled; the spec's requirement may be a family (membership
	// check) or a concrete unit (conversion).
	if spec.Unit != "" && v.Unit != "" {
		if e.Units.IsFamily(spec.Unit) {
			fam, ok := e.Units.FamilyOf(v.Unit)
			if !ok || fam != spec.Unit {
				return Nil, &IncompatibleUnitError{
					Shape: shape.Name, Field: spec.label(si),
					From: v.Unit, To: spec.Unit,
				}
			}
		} else {
			conv, cerr := e.Units.Convert(v, spec.Unit)
			if cerr != nil {
				return Nil, &IncompatibleUnitError{
					Shape: shape.Name, Field: spec.label(si),
					From: v.Unit, To: spec.Unit, Cause: cerr,
				}
			}
			v = conv
		}
	}
	return v, nil
}

// acceptingShape resolves the shape a struct value should morph to: the
// spec's shape type, or the first union alternative that accepts it.
func (e *Engine) acceptingShape(v Value, t TypeRef) (*ShapeDef, bool) {
	switch t.kind {
	case typeShape:
		nested, err := e.Shapes.Lookup(t.shape)
		return nested, err == nil
	case typeUnion:
		for _, a := range t.alts {
			if e.typeAccepts(v, a) {
				return e.acceptingShape(v, a)
			}
		}
	}
	return nil, false
}

// MorphNamed is Morph with a registry lookup.
func (e *Engine) MorphNamed(input *Structure, shapeName string) (*Structure, error) {
	shape, err := e.Shapes.Lookup(shapeName)
	if err != nil {
		return nil, err
	}
	return e.Morph(input, shape)
}
