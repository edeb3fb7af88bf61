// dispatch.go
//
// Multi-dispatch resolution.
//
// A dispatch set is a named collection of (shape, strength, implementation)
// candidates — the overloads of one logical operation. Resolve scores every
// candidate against the input with the specificity scorer and selects the
// unique maximum. No candidate matching at all is NoMatchingImplementation;
// two candidates tied on every merit term (named count, strength, tag
// depth, positional count) is AmbiguousDispatch, reported rather than
// silently broken by declaration order.
//
// Resolution results are cached per set, keyed by the resolving engine plus
// a structural signature of the input: field keys, value kinds, tag ids, and
// nested structure signatures — everything scoring can observe, and nothing
// it cannot (no scalar payloads). Scores depend on the engine's registries,
// so the engine is part of the key; a set may be shared across engines.
// Scoring is pure and deterministic, so the cache is merely insert-tolerant:
// concurrent inserts race harmlessly and a lost write only costs a
// recomputation.
package morph

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Implementation is the opaque callable a candidate carries. The resolver
// never invokes it; Call does, with the morphed structure.
type Implementation func(args *Structure) (Value, error)

// Candidate is one overload of a dispatch set.
type Candidate struct {
	Shape    *ShapeDef
	Strength Strength
	Impl     Implementation
}

// DispatchSet is an ordered candidate list plus its score cache. Build it
// during module load, then share; Add is not safe to race with Resolve.
type DispatchSet struct {
	Name       string
	candidates []Candidate
	cache      sync.Map // cacheKey → resolution
}

// cacheKey pairs the resolving engine with the input's structural
// signature: the same input can score differently under engines with
// different registries or hierarchies.
type cacheKey struct {
	eng *Engine
	sig string
}

type resolution struct {
	idx int
	err error
}

// NewDispatchSet returns an empty set for the given operation name.
func NewDispatchSet(name string) *DispatchSet {
	return &DispatchSet{Name: name}
}

// Add appends a candidate. A shape may back at most one candidate of a
// set; registering it twice is a duplicate definition.
func (d *DispatchSet) Add(shape *ShapeDef, strength Strength, impl Implementation) error {
	for _, c := range d.candidates {
		if c.Shape.Name == shape.Name {
			return &DuplicateDefinitionError{Kind: "dispatch candidate", Name: shape.Name}
		}
	}
	d.candidates = append(d.candidates, Candidate{Shape: shape, Strength: strength, Impl: impl})
	return nil
}

// Candidates returns the candidate list in declaration order.
func (d *DispatchSet) Candidates() []Candidate {
	out := make([]Candidate, len(d.candidates))
	copy(out, d.candidates)
	return out
}

// Resolve selects the best-matching candidate for the input. The returned
// pointer aliases the set's candidate storage and must not be mutated.
func (e *Engine) Resolve(input *Structure, set *DispatchSet) (*Candidate, error) {
	key := cacheKey{eng: e, sig: Signature(input)}
	if cached, ok := set.cache.Load(key); ok {
		res := cached.(resolution)
		if res.err != nil {
			return nil, res.err
		}
		return &set.candidates[res.idx], nil
	}

	res := e.resolveUncached(input, set)
	set.cache.Store(key, res)
	if res.err != nil {
		return nil, res.err
	}
	return &set.candidates[res.idx], nil
}

func (e *Engine) resolveUncached(input *Structure, set *DispatchSet) resolution {
	type scored struct {
		idx   int
		score Score
	}
	var matches []scored
	for i, c := range set.candidates {
		s, ok := e.Score(input, c.Shape, c.Strength)
		if !ok {
			continue
		}
		s.DeclIndex = -i
		matches = append(matches, scored{idx: i, score: s})
	}
	if len(matches) == 0 {
		return resolution{err: &NoMatchingImplementationError{
			Name:       set.Name,
			Considered: len(set.candidates),
		}}
	}

	best := matches[0]
	for _, m := range matches[1:] {
		if m.score.Compare(best.score) > 0 {
			best = m
		}
	}

	// A tie on every merit term is ambiguous even though the declaration
	// index makes Compare total; declaration order only sequences
	// iteration, it does not arbitrate between equally specific shapes.
	var tied []string
	for _, m := range matches {
		if m.score.EqualSpecificity(best.score) {
			tied = append(tied, set.candidates[m.idx].Shape.Name)
		}
	}
	if len(tied) > 1 {
		return resolution{err: &AmbiguousDispatchError{
			Name:       set.Name,
			Candidates: tied,
			Score:      best.score,
		}}
	}
	return resolution{idx: best.idx}
}

// Call resolves, morphs the input to the winning shape, and invokes the
// winner's implementation with the morphed structure.
func (e *Engine) Call(input *Structure, set *DispatchSet) (Value, error) {
	c, err := e.Resolve(input, set)
	if err != nil {
		return Nil, err
	}
	morphed, err := e.Morph(input, c.Shape)
	if err != nil {
		return Nil, err
	}
	if c.Impl == nil {
		return Struct(morphed), nil
	}
	return c.Impl(morphed)
}

// -----------------------------
// Structural signatures
// -----------------------------

// Signature renders everything scoring can observe about a structure into
// a compact cache key: field keys (named keys sorted, so equal structures
// that differ only in named-field order share a key), value kinds, tag
// ids, and nested structure signatures. Scalar payloads are deliberately
// absent — scoring never reads them. Lazy values sign as opaque.
func Signature(s *Structure) string {
	var b strings.Builder
	signStruct(s, &b)
	return b.String()
}

func signStruct(s *Structure, b *strings.Builder) {
	type namedField struct {
		name string
		v    Value
	}
	var named []namedField
	var rest []Field
	for _, f := range s.Fields() {
		if f.Key.Kind == KeyName {
			named = append(named, namedField{f.Key.Name, f.Value})
		} else {
			rest = append(rest, f)
		}
	}
	sort.SliceStable(named, func(i, j int) bool { return named[i].name < named[j].name })

	b.WriteByte('{')
	for _, nf := range named {
		b.WriteString(nf.name)
		b.WriteByte('=')
		signValue(nf.v, b)
		b.WriteByte(';')
	}
	for _, f := range rest {
		b.WriteString(f.Key.String())
		b.WriteByte('=')
		signValue(f.Value, b)
		b.WriteByte(';')
	}
	b.WriteByte('}')
}

func signValue(v Value, b *strings.Builder) {
	switch v.Kind {
	case KindNil:
		b.WriteByte('0')
	case KindNumber:
		b.WriteByte('n')
	case KindText:
		b.WriteByte('t')
	case KindBool:
		b.WriteByte('b')
	case KindTag:
		b.WriteByte('g')
		b.WriteString(strconv.Itoa(int(v.TagID())))
	case KindStruct:
		signStruct(v.StructVal(), b)
	case KindLazy:
		b.WriteByte('~')
	}
}
