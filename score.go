// score.go
//
// Specificity scoring.
//
// A score ranks how specifically an input structure matches a candidate
// shape. It is a lexicographically ordered tuple, highest wins:
//
//	(named matches, strength bonus, tag depth sum, positional matches,
//	 negated declaration index)
//
// Named matches dominate everything: a shape matching a field by name
// always outscores an otherwise-equal shape matching the same field
// positionally. Strength is an explicit Weak/Normal/Strong marker that
// breaks ties among otherwise-equal shapes — it can never promote a less
// specific shape over a more specific one because it sits behind the
// named count. Tag depth rewards deeper (more specific) tag values. The
// declaration index, negated, makes earlier-declared candidates win any
// residual tie deterministically.
//
// Scoring runs the same matching core as the committing morph (phases
// 1–3 plus default counting), so a shape that scores is a shape that
// morphs to the same field layout.
package morph

import "fmt"

// Strength is the explicit conflict-resolution marker a candidate is
// registered with. It participates in scoring only as the strength bonus.
type Strength int

const (
	Weak   Strength = -1
	Normal Strength = 0
	Strong Strength = 1
)

func (s Strength) String() string {
	switch s {
	case Weak:
		return "weak"
	case Strong:
		return "strong"
	default:
		return "normal"
	}
}

// Score is the comparable specificity tuple. DeclIndex is filled by the
// dispatch resolver (the scorer itself has no candidate list to index
// into) and carried negated so that bigger is always better.
type Score struct {
	Named      int
	Strength   int
	TagDepth   int
	Positional int
	DeclIndex  int // negated declaration index
}

// Compare returns -1, 0, or +1 ordering s against o lexicographically.
func (s Score) Compare(o Score) int {
	cmp := func(a, b int) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	if c := cmp(s.Named, o.Named); c != 0 {
		return c
	}
	if c := cmp(s.Strength, o.Strength); c != 0 {
		return c
	}
	if c := cmp(s.TagDepth, o.TagDepth); c != 0 {
		return c
	}
	if c := cmp(s.Positional, o.Positional); c != 0 {
		return c
	}
	return cmp(s.DeclIndex, o.DeclIndex)
}

// EqualSpecificity ignores the declaration index: two candidates tied on
// every merit term are genuinely ambiguous, and declaration order must
// not paper over that at dispatch time.
func (s Score) EqualSpecificity(o Score) bool {
	return s.Named == o.Named &&
		s.Strength == o.Strength &&
		s.TagDepth == o.TagDepth &&
		s.Positional == o.Positional
}

func (s Score) String() string {
	return fmt.Sprintf("(named=%d strength=%d depth=%d pos=%d decl=%d)",
		s.Named, s.Strength, s.TagDepth, s.Positional, s.DeclIndex)
}

// Score runs the non-committing matcher against one candidate shape. The
// boolean is false for NoMatch: a required field with no binding and no
// default, a type conflict on a bound field, or a leftover field under a
// Reject policy. No guard runs, no unit converts, and no default is
// evaluated beyond counting its availability.
func (e *Engine) Score(input *Structure, shape *ShapeDef, strength Strength) (Score, bool) {
	plan, err := e.match(input, shape)
	if err != nil {
		return Score{}, false
	}
	return Score{
		Named:      plan.named,
		Strength:   int(strength),
		TagDepth:   int(plan.tagDepth),
		Positional: plan.positional,
	}, true
}
