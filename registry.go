// registry.go
//
// Shape definitions and the shape registry.
//
// A shape is a structural schema: an ordered list of field specs (name,
// type, default, guards, unit, cardinality) plus an extra-field policy.
// Shapes are registered by name during module build; Freeze validates
// every shape reference, stamps the registry with a build fingerprint,
// and seals it. A frozen registry is read-only process-wide state, safe
// for unlocked concurrent use by any number of evaluators.
//
// Field types are TypeRefs: a primitive kind, a reference to another
// registered shape (morphing recurses), a tag family, or an ordered union
// of alternatives tried left to right.
package morph

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// -----------------------------
// Type references
// -----------------------------

type typeKind int

const (
	typeAny typeKind = iota
	typePrim
	typeShape
	typeTag
	typeUnion
)

// TypeRef names the type a field spec expects. Build them with the
// constructors below; the zero TypeRef is Any.
type TypeRef struct {
	kind  typeKind
	prim  ValueKind
	shape string
	tag   TagID
	alts  []TypeRef
}

// Any matches every value.
func Any() TypeRef { return TypeRef{kind: typeAny} }

// NumT/TextT/BoolT/NilT match the corresponding scalar kinds.
func NumT() TypeRef  { return TypeRef{kind: typePrim, prim: KindNumber} }
func TextT() TypeRef { return TypeRef{kind: typePrim, prim: KindText} }
func BoolT() TypeRef { return TypeRef{kind: typePrim, prim: KindBool} }
func NilT() TypeRef  { return TypeRef{kind: typePrim, prim: KindNil} }

// ShapeT references a registered shape by name; the bound value must be a
// structure that morphs to that shape.
func ShapeT(name string) TypeRef { return TypeRef{kind: typeShape, shape: name} }

// TagT matches tag values per the hierarchy rule (family → strict
// descendants, leaf → itself). Fields with tag types participate in the
// tag-typed matching phase.
func TagT(id TagID) TypeRef { return TypeRef{kind: typeTag, tag: id} }

// Union tries alternatives left to right until one accepts the value.
func Union(alts ...TypeRef) TypeRef { return TypeRef{kind: typeUnion, alts: alts} }

// IsTag reports whether the type is a tag type and returns its family.
func (t TypeRef) IsTag() (TagID, bool) {
	if t.kind == typeTag {
		return t.tag, true
	}
	return NoTag, false
}

// describe renders the type for docs and diagnostics.
func (t TypeRef) describe(h *Hierarchy) string {
	switch t.kind {
	case typeAny:
		return "any"
	case typePrim:
		return t.prim.String()
	case typeShape:
		return t.shape
	case typeTag:
		if h != nil {
			return "tag " + h.Path(t.tag)
		}
		return fmt.Sprintf("tag %d", t.tag)
	case typeUnion:
		var parts []string
		for _, a := range t.alts {
			parts = append(parts, a.describe(h))
		}
		return strings.Join(parts, " | ")
	default:
		return "?"
	}
}

// -----------------------------
// Field specs and shapes
// -----------------------------

// Cardinality lets one positional spec consume a run of consecutive
// unnamed fields: at least Min, at most Max.
type Cardinality struct {
	Min int
	Max int
}

// Exactly is the common fixed-count cardinality.
func Exactly(n int) *Cardinality { return &Cardinality{Min: n, Max: n} }

// FieldSpec describes one expected field of a shape.
//
//   - Name    — optional; named specs bind in the named phase.
//   - Type    — expected type (zero value: any).
//   - Default — optional pure expression, evaluated only when no input
//     field bound. Closures capture the shape's defining scope.
//   - Guards  — ordered constraints, run after binding.
//   - Unit    — optional required unit or unit family.
//   - Card    — optional cardinality for positional runs.
type FieldSpec struct {
	Name    string
	Type    TypeRef
	Default func() Value
	Guards  []GuardDef
	Unit    string
	Card    *Cardinality
}

// label names the spec in diagnostics: its name, else its declaration slot.
func (fs *FieldSpec) label(idx int) string {
	if fs.Name != "" {
		return fs.Name
	}
	return "#" + fmt.Sprint(idx)
}

// ExtraPolicy decides the fate of unconsumed input fields.
type ExtraPolicy int

const (
	PassThrough ExtraPolicy = iota // append leftovers unchanged
	Reject                         // fail with UnexpectedField
)

// ShapeDef is an immutable shape definition. Do not modify Fields after
// registration.
type ShapeDef struct {
	Name   string
	Fields []FieldSpec
	Extra  ExtraPolicy
}

// -----------------------------
// Registry
// -----------------------------

// Registry stores shape definitions by name. Build single-threaded,
// Freeze, then share.
type Registry struct {
	shapes map[string]*ShapeDef
	order  []string
	frozen bool
	build  uuid.UUID
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{shapes: map[string]*ShapeDef{}}
}

// Register adds a shape. Duplicate names fail; registration after Freeze
// fails.
func (r *Registry) Register(shape *ShapeDef) error {
	if r.frozen {
		return fmt.Errorf("shape registry is frozen")
	}
	if shape.Name == "" {
		return fmt.Errorf("shape must be named")
	}
	if _, ok := r.shapes[shape.Name]; ok {
		return &DuplicateDefinitionError{Kind: "shape", Name: shape.Name}
	}
	r.shapes[shape.Name] = shape
	r.order = append(r.order, shape.Name)
	return nil
}

// Lookup resolves a shape name.
func (r *Registry) Lookup(name string) (*ShapeDef, error) {
	if s, ok := r.shapes[name]; ok {
		return s, nil
	}
	return nil, &ReferenceMissingError{Kind: "shape", Name: name}
}

// Names lists registered shapes in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Frozen reports whether finalization has run.
func (r *Registry) Frozen() bool { return r.frozen }

// BuildID returns the fingerprint assigned at Freeze (zero before).
func (r *Registry) BuildID() uuid.UUID { return r.build }

// Freeze validates every shape reference reachable from registered shapes
// (including union alternatives) and seals the registry. Dangling
// references are a build-time failure, reported before any morph runs.
func (r *Registry) Freeze() error {
	if r.frozen {
		return nil
	}
	for _, name := range r.order {
		shape := r.shapes[name]
		for i := range shape.Fields {
			if err := r.checkType(shape.Fields[i].Type); err != nil {
				return fmt.Errorf("shape %s, field %s: %w",
					name, shape.Fields[i].label(i), err)
			}
		}
	}
	r.frozen = true
	r.build = uuid.New()
	return nil
}

func (r *Registry) checkType(t TypeRef) error {
	switch t.kind {
	case typeShape:
		if _, ok := r.shapes[t.shape]; !ok {
			return &ReferenceMissingError{Kind: "shape", Name: t.shape}
		}
	case typeUnion:
		for _, a := range t.alts {
			if err := r.checkType(a); err != nil {
				return err
			}
		}
	}
	return nil
}
