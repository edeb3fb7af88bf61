package morph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTag(t *testing.T, h *Hierarchy, lit *Value, path ...string) TagID {
	t.Helper()
	id, err := h.Insert(path, lit)
	require.NoError(t, err)
	return id
}

func lit(v Value) *Value { return &v }

func Test_Hierarchy_InsertAndFind(t *testing.T) {
	h := NewHierarchy()
	red := mustTag(t, h, lit(Text("red")), "color", "red")
	green := mustTag(t, h, nil, "color", "green")

	color, ok := h.Find("color")
	require.True(t, ok)
	gotRed, ok := h.Find("color", "red")
	require.True(t, ok)
	assert.Equal(t, red, gotRed)
	assert.NotEqual(t, red, green)

	_, ok = h.Find("color", "mauve")
	assert.False(t, ok)

	assert.Equal(t, "color.red", h.Path(red))
	assert.Equal(t, "red", h.Name(red))
	assert.Equal(t, uint32(0), h.Depth(color))
	assert.Equal(t, uint32(1), h.Depth(red))

	v, ok := h.ValueOf(red)
	require.True(t, ok)
	assert.Equal(t, "red", v.Str())
	_, ok = h.ValueOf(green)
	assert.False(t, ok)
}

func Test_Hierarchy_InsertReusesExistingNodes(t *testing.T) {
	h := NewHierarchy()
	red1 := mustTag(t, h, nil, "color", "red")
	red2 := mustTag(t, h, nil, "color", "red")
	assert.Equal(t, red1, red2)

	// Re-attaching a conflicting literal is an error.
	_, err := h.Insert([]string{"color", "red"}, lit(Text("red")))
	require.NoError(t, err)
	_, err = h.Insert([]string{"color", "red"}, lit(Text("other")))
	assert.Error(t, err)
}

func Test_Hierarchy_FamilyMatchesDescendantsOnly(t *testing.T) {
	h := NewHierarchy()
	color := mustTag(t, h, nil, "color")
	red := mustTag(t, h, nil, "color", "red")
	crimson := mustTag(t, h, nil, "color", "red", "crimson")
	shape := mustTag(t, h, nil, "shape")

	// Family as type: strict descendants only, never itself.
	assert.True(t, h.MatchesType(red, color))
	assert.True(t, h.MatchesType(crimson, color))
	assert.False(t, h.MatchesType(color, color))
	assert.False(t, h.MatchesType(shape, color))

	// Leaf as type: only itself.
	assert.True(t, h.MatchesType(crimson, crimson))
	assert.False(t, h.MatchesType(red, crimson))
}

func Test_Hierarchy_AliasReachesSecondParent(t *testing.T) {
	h := NewHierarchy()
	warm := mustTag(t, h, nil, "warm")
	red := mustTag(t, h, nil, "color", "red")
	require.NoError(t, h.Alias(red, warm))

	assert.True(t, h.IsDescendant(red, warm))
	// Primary parent still drives path and depth.
	assert.Equal(t, "color.red", h.Path(red))
	assert.Equal(t, uint32(1), h.Depth(red))
}

func Test_Hierarchy_AliasRejectsNameCollision(t *testing.T) {
	h := NewHierarchy()
	colorRed := mustTag(t, h, nil, "color", "red")
	shadeRed := mustTag(t, h, nil, "shade", "red")
	color, ok := h.Find("color")
	require.True(t, ok)

	err := h.Alias(shadeRed, color)
	var dup *DuplicateDefinitionError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "color.red", dup.Name)

	// The original child is untouched by the failed alias.
	got, ok := h.Find("color", "red")
	require.True(t, ok)
	assert.Equal(t, colorRed, got)
	assert.Equal(t, []TagID{colorRed}, h.Children(color))
}

func Test_Hierarchy_FreezeRejectsCycles(t *testing.T) {
	h := NewHierarchy()
	a := mustTag(t, h, nil, "a")
	b := mustTag(t, h, nil, "a", "b")
	require.NoError(t, h.Alias(a, b))

	err := h.Freeze()
	require.Error(t, err)
	var cyc *HierarchyCycleError
	require.ErrorAs(t, err, &cyc)
	assert.False(t, h.Frozen())
}

func Test_Hierarchy_FreezeSealsAndStamps(t *testing.T) {
	h := NewHierarchy()
	color := mustTag(t, h, nil, "color")
	require.NoError(t, h.Freeze())
	require.NoError(t, h.Freeze(), "freeze is idempotent")
	assert.True(t, h.Frozen())
	assert.NotZero(t, h.BuildID())

	_, err := h.Insert([]string{"more"}, nil)
	assert.Error(t, err)
	_, err = h.Extend(color, "red")
	assert.Error(t, err)
}

func Test_Hierarchy_ExtendIsTheCrossModuleHook(t *testing.T) {
	h := NewHierarchy()
	color := mustTag(t, h, nil, "color")

	red, err := h.Extend(color, "red")
	require.NoError(t, err)
	again, err := h.Extend(color, "red")
	require.NoError(t, err)
	assert.Equal(t, red, again)

	pink, err := h.ExtendValue(color, "pink", Text("pink"))
	require.NoError(t, err)
	v, ok := h.ValueOf(pink)
	require.True(t, ok)
	assert.Equal(t, "pink", v.Str())
}

func Test_Hierarchy_RootsAndChildrenKeepDeclarationOrder(t *testing.T) {
	h := NewHierarchy()
	color := mustTag(t, h, nil, "color")
	mustTag(t, h, nil, "color", "red")
	mustTag(t, h, nil, "color", "green")
	mustTag(t, h, nil, "shape")

	var rootNames []string
	for _, r := range h.Roots() {
		rootNames = append(rootNames, h.Name(r))
	}
	assert.Equal(t, []string{"color", "shape"}, rootNames)

	var kids []string
	for _, c := range h.Children(color) {
		kids = append(kids, h.Name(c))
	}
	assert.Equal(t, []string{"red", "green"}, kids)
}

func Test_Hierarchy_CastValuePicksEarliestLiteral(t *testing.T) {
	h := NewHierarchy()
	red := mustTag(t, h, lit(Text("red")), "color", "red")
	mustTag(t, h, lit(Text("red")), "paint", "red") // later literal, same value

	id, ok := h.CastValue(Text("red"))
	require.True(t, ok)
	assert.Equal(t, red, id)

	_, ok = h.CastValue(Text("ochre"))
	assert.False(t, ok)

	// Lazy inputs are forced before comparison.
	id, ok = h.CastValue(Lazy(func() Value { return Text("red") }))
	require.True(t, ok)
	assert.Equal(t, red, id)
}
