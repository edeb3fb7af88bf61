package morph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildEngine registers the shapes, freezes everything, and wires an engine
// with the standard unit table.
func buildEngine(t *testing.T, tags *Hierarchy, shapes ...*ShapeDef) *Engine {
	t.Helper()
	reg := NewRegistry()
	for _, s := range shapes {
		require.NoError(t, reg.Register(s))
	}
	require.NoError(t, reg.Freeze())
	if tags != nil {
		require.NoError(t, tags.Freeze())
	}
	eng, err := NewEngine(reg, tags, nil)
	require.NoError(t, err)
	return eng
}

func point2dShape() *ShapeDef {
	return &ShapeDef{
		Name:   "point2d",
		Fields: []FieldSpec{{Name: "x", Type: NumT()}, {Name: "y", Type: NumT()}},
	}
}

func point3dShape() *ShapeDef {
	return &ShapeDef{
		Name: "point3d",
		Fields: []FieldSpec{
			{Name: "x", Type: NumT()},
			{Name: "y", Type: NumT()},
			{Name: "z", Type: NumT()},
		},
	}
}

func userShape() *ShapeDef {
	return &ShapeDef{
		Name: "user",
		Fields: []FieldSpec{
			{Name: "name", Type: TextT(), Guards: []GuardDef{MinLen(1)}},
			{Name: "age", Type: NumT(), Default: func() Value { return Number(0) }},
		},
	}
}

func rgbShape() *ShapeDef {
	return &ShapeDef{
		Name: "rgb",
		Fields: []FieldSpec{{
			Type:   NumT(),
			Guards: []GuardDef{Min(0), Max(255)},
			Card:   Exactly(3),
		}},
	}
}

func Test_Morph_NamedBindingAndDefault(t *testing.T) {
	e := buildEngine(t, nil, userShape())

	out, err := e.MorphNamed(NewStructure(Named("name", Text("Ada"))), "user")
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	// Output follows shape declaration order, default materialized.
	assert.Equal(t, "name", out.Field(0).Key.Name)
	assert.Equal(t, "Ada", out.Field(0).Value.Str())
	assert.Equal(t, "age", out.Field(1).Key.Name)
	assert.Equal(t, 0.0, out.Field(1).Value.Num())
}

func Test_Morph_PositionalFillsRemainingSpecs(t *testing.T) {
	e := buildEngine(t, nil, point2dShape())

	out, err := e.MorphNamed(NewStructure(Anon(Number(3)), Anon(Number(4))), "point2d")
	require.NoError(t, err)
	x, ok := out.Named("x")
	require.True(t, ok)
	assert.Equal(t, 3.0, x.Num())
	y, ok := out.Named("y")
	require.True(t, ok)
	assert.Equal(t, 4.0, y.Num())
}

func Test_Morph_NamedBeatsPosition(t *testing.T) {
	e := buildEngine(t, nil, point2dShape())

	// y is named, so the single anonymous field lands on x.
	out, err := e.MorphNamed(NewStructure(Named("y", Number(9)), Anon(Number(1))), "point2d")
	require.NoError(t, err)
	x, _ := out.Named("x")
	y, _ := out.Named("y")
	assert.Equal(t, 1.0, x.Num())
	assert.Equal(t, 9.0, y.Num())
}

func Test_Morph_MissingRequiredField(t *testing.T) {
	e := buildEngine(t, nil, userShape())

	_, err := e.MorphNamed(NewStructure(), "user")
	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "name", missing.Field)
	assert.Equal(t, "user", missing.Shape)
	assert.Equal(t, PhaseDefaults, missing.MorphPhase())
}

func Test_Morph_TypeMismatchIsConstraintViolation(t *testing.T) {
	e := buildEngine(t, nil, point2dShape())

	_, err := e.MorphNamed(NewStructure(Named("x", Text("no")), Named("y", Number(1))), "point2d")
	var cv *ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "type", cv.Guard)
	assert.Equal(t, "x", cv.Field)
}

func Test_Morph_GuardViolationReportsFirstFailure(t *testing.T) {
	shape := &ShapeDef{
		Name: "color",
		Fields: []FieldSpec{
			{Name: "r", Type: NumT(), Guards: []GuardDef{Min(0), Max(255)}},
			{Name: "g", Type: NumT(), Guards: []GuardDef{Min(0), Max(255)}},
			{Name: "b", Type: NumT(), Guards: []GuardDef{Min(0), Max(255)}},
		},
	}
	e := buildEngine(t, nil, shape)

	_, err := e.MorphNamed(NewStructure(
		Named("r", Number(300)),
		Named("g", Number(500)),
		Named("b", Number(1)),
	), "color")
	var cv *ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "r", cv.Field, "specs commit in declaration order")
	assert.Equal(t, "max", cv.Guard)
	assert.Equal(t, PhaseGuards, cv.MorphPhase())
}

func Test_Morph_Idempotent(t *testing.T) {
	e := buildEngine(t, nil, userShape(), rgbShape())

	once, err := e.MorphNamed(NewStructure(Named("name", Text("Ada"))), "user")
	require.NoError(t, err)
	twice, err := e.MorphNamed(once, "user")
	require.NoError(t, err)
	assert.True(t, Equal(Struct(once), Struct(twice)))

	once, err = e.MorphNamed(NewStructure(Anon(Number(1)), Anon(Number(2)), Anon(Number(3))), "rgb")
	require.NoError(t, err)
	twice, err = e.MorphNamed(once, "rgb")
	require.NoError(t, err)
	assert.True(t, Equal(Struct(once), Struct(twice)))
}

func Test_Morph_ExtraFieldsPassThrough(t *testing.T) {
	e := buildEngine(t, nil, point2dShape())

	out, err := e.MorphNamed(NewStructure(
		Named("x", Number(1)),
		Named("y", Number(2)),
		Named("note", Text("keep me")),
	), "point2d")
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
	note, ok := out.Named("note")
	require.True(t, ok)
	assert.Equal(t, "keep me", note.Str())
}

func Test_Morph_ExtraFieldsRejected(t *testing.T) {
	shape := point2dShape()
	shape.Extra = Reject
	e := buildEngine(t, nil, shape)

	_, err := e.MorphNamed(NewStructure(
		Named("x", Number(1)),
		Named("y", Number(2)),
		Named("note", Text("drop me")),
	), "point2d")
	var unexpected *UnexpectedFieldError
	require.ErrorAs(t, err, &unexpected)
	assert.Equal(t, "note", unexpected.Key.Name)
	assert.Equal(t, PhaseExtras, unexpected.MorphPhase())
}

func Test_Morph_TagTypedPhaseBindsByType(t *testing.T) {
	h := NewHierarchy()
	color := mustTag(t, h, nil, "color")
	red := mustTag(t, h, nil, "color", "red")

	shape := &ShapeDef{
		Name:   "paint",
		Fields: []FieldSpec{{Name: "c", Type: TagT(color)}},
	}
	e := buildEngine(t, h, shape)

	// The tag value is anonymous; the family type claims it anyway.
	out, err := e.MorphNamed(NewStructure(Anon(Tag(red))), "paint")
	require.NoError(t, err)
	c, ok := out.Named("c")
	require.True(t, ok)
	assert.Equal(t, red, c.TagID())
}

func Test_Morph_LeafTagTypeMatchesOnlyItself(t *testing.T) {
	h := NewHierarchy()
	red := mustTag(t, h, nil, "color", "red")
	green := mustTag(t, h, nil, "color", "green")

	shape := &ShapeDef{
		Name:   "stop",
		Fields: []FieldSpec{{Name: "c", Type: TagT(red)}},
	}
	e := buildEngine(t, h, shape)

	_, err := e.MorphNamed(NewStructure(Anon(Tag(green))), "stop")
	require.Error(t, err)

	out, err := e.MorphNamed(NewStructure(Anon(Tag(red))), "stop")
	require.NoError(t, err)
	c, _ := out.Named("c")
	assert.Equal(t, red, c.TagID())
}

func Test_Morph_UnitConversionToSpecUnit(t *testing.T) {
	shape := &ShapeDef{
		Name:   "box",
		Fields: []FieldSpec{{Name: "w", Type: NumT(), Unit: "m"}},
	}
	e := buildEngine(t, nil, shape)

	out, err := e.MorphNamed(NewStructure(Named("w", Number(250).WithUnit("cm"))), "box")
	require.NoError(t, err)
	w, _ := out.Named("w")
	assert.Equal(t, 2.5, w.Num())
	assert.Equal(t, "m", w.Unit)
}

func Test_Morph_UnitFamilyRequiresMembership(t *testing.T) {
	shape := &ShapeDef{
		Name:   "span",
		Fields: []FieldSpec{{Name: "d", Type: NumT(), Unit: "length"}},
	}
	e := buildEngine(t, nil, shape)

	// A member unit passes unchanged.
	out, err := e.MorphNamed(NewStructure(Named("d", Number(4).WithUnit("cm"))), "span")
	require.NoError(t, err)
	d, _ := out.Named("d")
	assert.Equal(t, 4.0, d.Num())
	assert.Equal(t, "cm", d.Unit)

	// A foreign family fails.
	_, err = e.MorphNamed(NewStructure(Named("d", Number(4).WithUnit("kg"))), "span")
	var incompat *IncompatibleUnitError
	require.ErrorAs(t, err, &incompat)
	assert.Equal(t, "kg", incompat.From)
	assert.Equal(t, "length", incompat.To)
	assert.Equal(t, PhaseUnits, incompat.MorphPhase())
}

func Test_Morph_UnitlessValuesSkipReconciliation(t *testing.T) {
	shape := &ShapeDef{
		Name:   "box",
		Fields: []FieldSpec{{Name: "w", Type: NumT(), Unit: "m"}},
	}
	e := buildEngine(t, nil, shape)

	out, err := e.MorphNamed(NewStructure(Named("w", Number(7))), "box")
	require.NoError(t, err)
	w, _ := out.Named("w")
	assert.Equal(t, 7.0, w.Num())
	assert.Equal(t, "", w.Unit)
}

func Test_Morph_PreservesUnconstrainedLazy(t *testing.T) {
	shape := &ShapeDef{
		Name:   "bag",
		Fields: []FieldSpec{{Name: "p"}}, // zero TypeRef is any
	}
	e := buildEngine(t, nil, shape)

	calls := 0
	in := NewStructure(Named("p", Lazy(func() Value {
		calls++
		return Number(1)
	})))
	out, err := e.MorphNamed(in, "bag")
	require.NoError(t, err)
	p, _ := out.Named("p")
	assert.False(t, IsForced(p))
	assert.Equal(t, 0, calls, "unconstrained lazy fields stay lazy")
}

func Test_Morph_ForcesConstrainedLazy(t *testing.T) {
	shape := &ShapeDef{
		Name:   "bag",
		Fields: []FieldSpec{{Name: "p", Type: NumT()}},
	}
	e := buildEngine(t, nil, shape)

	calls := 0
	in := NewStructure(Named("p", Lazy(func() Value {
		calls++
		return Number(1)
	})))
	out, err := e.MorphNamed(in, "bag")
	require.NoError(t, err)
	p, _ := out.Named("p")
	assert.True(t, IsForced(p))
	assert.Equal(t, 1, calls)

	// A forced lazy that fails the type check is a morph failure, not a
	// match failure.
	bad := NewStructure(Named("p", Lazy(func() Value { return Text("no") })))
	_, err = e.MorphNamed(bad, "bag")
	var cv *ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "type", cv.Guard)
}

func Test_Morph_LazyExtrasStayLazy(t *testing.T) {
	e := buildEngine(t, nil, point2dShape())

	calls := 0
	in := NewStructure(
		Named("x", Number(1)),
		Named("y", Number(2)),
		Named("later", Lazy(func() Value {
			calls++
			return Number(3)
		})),
	)
	out, err := e.MorphNamed(in, "point2d")
	require.NoError(t, err)
	later, ok := out.Named("later")
	require.True(t, ok)
	assert.False(t, IsForced(later))
	assert.Equal(t, 0, calls)
}

func Test_Morph_NestedShapesRecurse(t *testing.T) {
	line := &ShapeDef{
		Name: "line",
		Fields: []FieldSpec{
			{Name: "a", Type: ShapeT("point2d")},
			{Name: "b", Type: ShapeT("point2d")},
		},
	}
	e := buildEngine(t, nil, point2dShape(), line)

	in := NewStructure(
		Named("a", Struct(NewStructure(Anon(Number(1)), Anon(Number(2))))),
		Named("b", Struct(NewStructure(Named("y", Number(4)), Named("x", Number(3))))),
	)
	out, err := e.MorphNamed(in, "line")
	require.NoError(t, err)

	a, _ := out.Named("a")
	ax, ok := a.StructVal().Named("x")
	require.True(t, ok, "nested structures morph to the referenced shape")
	assert.Equal(t, 1.0, ax.Num())

	b, _ := out.Named("b")
	bx, _ := b.StructVal().Named("x")
	assert.Equal(t, 3.0, bx.Num())
}

func Test_Morph_UnionTriesAlternativesLeftToRight(t *testing.T) {
	holder := &ShapeDef{
		Name:   "holder",
		Fields: []FieldSpec{{Name: "v", Type: Union(ShapeT("point2d"), NumT())}},
	}
	e := buildEngine(t, nil, point2dShape(), holder)

	out, err := e.MorphNamed(NewStructure(Named("v", Number(5))), "holder")
	require.NoError(t, err)
	v, _ := out.Named("v")
	assert.Equal(t, 5.0, v.Num())

	out, err = e.MorphNamed(NewStructure(
		Named("v", Struct(NewStructure(Anon(Number(1)), Anon(Number(2))))),
	), "holder")
	require.NoError(t, err)
	v, _ = out.Named("v")
	vx, ok := v.StructVal().Named("x")
	require.True(t, ok)
	assert.Equal(t, 1.0, vx.Num())

	_, err = e.MorphNamed(NewStructure(Named("v", Bool(true))), "holder")
	require.Error(t, err)
}

func Test_Morph_CardinalityConsumesRuns(t *testing.T) {
	e := buildEngine(t, nil, rgbShape())

	out, err := e.MorphNamed(NewStructure(
		Anon(Number(10)), Anon(Number(20)), Anon(Number(30)),
	), "rgb")
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
	v, _ := out.At(1)
	assert.Equal(t, 20.0, v.Num())

	_, err = e.MorphNamed(NewStructure(Anon(Number(10)), Anon(Number(20))), "rgb")
	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)

	_, err = e.MorphNamed(NewStructure(
		Anon(Number(10)), Anon(Number(20)), Anon(Number(300)),
	), "rgb")
	var cv *ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "max", cv.Guard)
}

func Test_Morph_DefaultsAreValidated(t *testing.T) {
	shape := &ShapeDef{
		Name: "broken",
		Fields: []FieldSpec{{
			Name:    "age",
			Type:    NumT(),
			Default: func() Value { return Text("not a number") },
		}},
	}
	e := buildEngine(t, nil, shape)

	_, err := e.MorphNamed(NewStructure(), "broken")
	var cv *ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "type", cv.Guard)
}

func Test_Morph_DefaultsEvaluateOnlyWhenUnbound(t *testing.T) {
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

	_, err := e.MorphNamed(NewStructure(Named("n", Number(5))), "counted")
	require.NoError(t, err)
	assert.Equal(t, 0, calls)

	_, err = e.MorphNamed(NewStructure(), "counted")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func Test_Morph_InputIsNeverMutated(t *testing.T) {
	e := buildEngine(t, nil, userShape())

	in := NewStructure(Named("name", Text("Ada")))
	before := in.Fields()
	_, err := e.MorphNamed(in, "user")
	require.NoError(t, err)
	assert.Equal(t, before, in.Fields())
	assert.Equal(t, 1, in.Len())
}

func Test_Morph_UnknownShapeName(t *testing.T) {
	e := buildEngine(t, nil, userShape())
	_, err := e.MorphNamed(NewStructure(), "ghost")
	var missing *ReferenceMissingError
	require.ErrorAs(t, err, &missing)
}

func Test_Engine_RequiresFrozenInputs(t *testing.T) {
	reg := NewRegistry()
	_, err := NewEngine(reg, nil, nil)
	assert.Error(t, err, "unfrozen registry refused")

	require.NoError(t, reg.Freeze())
	h := NewHierarchy()
	_, err = NewEngine(reg, h, nil)
	assert.Error(t, err, "unfrozen hierarchy refused")

	require.NoError(t, h.Freeze())
	e, err := NewEngine(reg, h, nil)
	require.NoError(t, err)
	assert.NotNil(t, e.Units, "nil unit table defaults to Standard")
}
