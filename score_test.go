package morph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Score_CompareIsLexicographic(t *testing.T) {
	base := Score{Named: 1, Strength: 0, TagDepth: 0, Positional: 0}

	assert.Equal(t, 1, Score{Named: 2}.Compare(base), "named dominates")
	assert.Equal(t, -1, Score{Named: 1, Strength: -1}.Compare(base))
	assert.Equal(t, 1, Score{Named: 1, TagDepth: 3}.Compare(base))
	assert.Equal(t, 0, base.Compare(base))

	// A strong candidate never outranks more named matches.
	strongButVague := Score{Named: 1, Strength: 1, TagDepth: 9, Positional: 9}
	assert.Equal(t, -1, strongButVague.Compare(Score{Named: 2}))

	// The declaration index only decides full residual ties.
	a := Score{Named: 1, DeclIndex: 0}
	b := Score{Named: 1, DeclIndex: -1}
	assert.Equal(t, 1, a.Compare(b))
	assert.True(t, a.EqualSpecificity(b), "decl index is not a merit term")
}

func Test_Score_NamedMatchesCount(t *testing.T) {
	e := buildEngine(t, nil, point2dShape(), point3dShape())

	in := NewStructure(Named("x", Number(1)), Named("y", Number(2)), Named("z", Number(3)))

	s2, ok := e.Score(in, mustShape(t, e, "point2d"), Normal)
	require.True(t, ok)
	assert.Equal(t, 2, s2.Named)

	s3, ok := e.Score(in, mustShape(t, e, "point3d"), Normal)
	require.True(t, ok)
	assert.Equal(t, 3, s3.Named)
	assert.Equal(t, 1, s3.Compare(s2))
}

func Test_Score_NoMatchForMissingRequired(t *testing.T) {
	e := buildEngine(t, nil, point2dShape(), point3dShape())

	in := NewStructure(Named("x", Number(1)), Named("y", Number(2)))
	_, ok := e.Score(in, mustShape(t, e, "point3d"), Normal)
	assert.False(t, ok, "z has no binding and no default")

	_, ok = e.Score(in, mustShape(t, e, "point2d"), Normal)
	assert.True(t, ok)
}

func Test_Score_NoMatchOnTypeConflict(t *testing.T) {
	e := buildEngine(t, nil, point2dShape())
	in := NewStructure(Named("x", Text("no")), Named("y", Number(2)))
	_, ok := e.Score(in, mustShape(t, e, "point2d"), Normal)
	assert.False(t, ok)
}

func Test_Score_NoMatchOnRejectedExtras(t *testing.T) {
	strict := point2dShape()
	strict.Name = "strict2d"
	strict.Extra = Reject
	e := buildEngine(t, nil, strict)

	in := NewStructure(Named("x", Number(1)), Named("y", Number(2)), Named("w", Number(3)))
	_, ok := e.Score(in, mustShape(t, e, "strict2d"), Normal)
	assert.False(t, ok, "scoring must not elect a shape whose morph rejects the layout")
}

func Test_Score_TagDepthRewardsSpecificity(t *testing.T) {
	h := NewHierarchy()
	color := mustTag(t, h, nil, "color")
	red := mustTag(t, h, nil, "color", "red")
	crimson := mustTag(t, h, nil, "color", "red", "crimson")

	shape := &ShapeDef{
		Name:   "paint",
		Fields: []FieldSpec{{Name: "c", Type: TagT(color)}},
	}
	e := buildEngine(t, h, shape)

	shallow, ok := e.Score(NewStructure(Anon(Tag(red))), shape, Normal)
	require.True(t, ok)
	deep, ok := e.Score(NewStructure(Anon(Tag(crimson))), shape, Normal)
	require.True(t, ok)

	assert.Equal(t, 1, shallow.TagDepth)
	assert.Equal(t, 2, deep.TagDepth)
	assert.Equal(t, 1, deep.Compare(shallow))
}

func Test_Score_StrengthIsCarried(t *testing.T) {
	e := buildEngine(t, nil, point2dShape())
	in := NewStructure(Named("x", Number(1)), Named("y", Number(2)))

	weak, ok := e.Score(in, mustShape(t, e, "point2d"), Weak)
	require.True(t, ok)
	strong, ok := e.Score(in, mustShape(t, e, "point2d"), Strong)
	require.True(t, ok)

	assert.Equal(t, -1, weak.Strength)
	assert.Equal(t, 1, strong.Strength)
	assert.Equal(t, 1, strong.Compare(weak))
}

func Test_Score_LazyValuesAreWildcards(t *testing.T) {
	e := buildEngine(t, nil, point2dShape())

	calls := 0
	in := NewStructure(
		Named("x", Lazy(func() Value {
			calls++
			return Number(1)
		})),
		Named("y", Number(2)),
	)
	s, ok := e.Score(in, mustShape(t, e, "point2d"), Normal)
	require.True(t, ok)
	assert.Equal(t, 2, s.Named)
	assert.Equal(t, 0, calls, "scoring never forces lazy values")
}

func Test_Score_DefaultsAreNotEvaluated(t *testing.T) {
	calls := 0
	shape := &ShapeDef{
		Name: "counted",
		Fields: []FieldSpec{{
			Name: "n",
			Type: NumT(),
			Default: func() Value {
				calls++
				return Number(0)
			},
		}},
	}
	e := buildEngine(t, nil, shape)

	_, ok := e.Score(NewStructure(), shape, Normal)
	require.True(t, ok, "a default satisfies the requiredness check")
	assert.Equal(t, 0, calls)
}

func Test_Score_String(t *testing.T) {
	s := Score{Named: 2, Strength: 1, TagDepth: 3, Positional: 1, DeclIndex: -2}
	assert.Equal(t, "(named=2 strength=1 depth=3 pos=1 decl=-2)", s.String())
}

func mustShape(t *testing.T, e *Engine, name string) *ShapeDef {
	t.Helper()
	s, err := e.Shapes.Lookup(name)
	require.NoError(t, err)
	return s
}
