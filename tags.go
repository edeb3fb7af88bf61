// tags.go
//
// Append-only tag hierarchy.
//
// Tags are named, hierarchical identity values usable both as data (a tag
// reference Value) and as types (a field spec whose type is a tag family).
// The hierarchy is a forest of nodes with stable integer ids: modules extend
// it by inserting children under looked-up parent ids, never by mutating or
// removing existing nodes. A node may carry an optional literal value, which
// makes value→tag casting possible, and may be aliased under additional
// parents in priority order.
//
// The matching rule mirrors unit-family semantics: a tag with children used
// as a type matches any strict descendant but never itself; a leaf tag as a
// type matches only itself.
//
// Cycles cannot be expressed by Insert/Extend alone but Alias could create
// one, so finalization (Freeze) walks every ancestor chain and rejects the
// hierarchy if any id appears in its own chain. After Freeze the hierarchy
// is read-only and safe for unlocked concurrent use.
package morph

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TagID is a stable identifier within one Hierarchy. Ids are assigned in
// declaration order, which Ambiguous casts and dispatch tie-breaks rely on.
type TagID int32

// NoTag is the zero TagID; it never names a node.
const NoTag TagID = 0

// TagNode is one node of the forest. Parents are kept in priority order:
// Parents[0] is the primary parent used for depth computation, the rest are
// aliases added later.
type TagNode struct {
	ID         TagID
	Name       string
	Literal    *Value
	Parents    []TagID // empty for forest roots
	children   map[string]TagID
	childOrder []TagID
}

// Hierarchy is the append-only tag forest. Build it single-threaded, call
// Freeze, then share freely.
type Hierarchy struct {
	nodes     []*TagNode // index 0 unused so that NoTag stays invalid
	roots     map[string]TagID
	rootOrder []TagID
	frozen    bool
	build     uuid.UUID
}

// NewHierarchy returns an empty, unfrozen hierarchy.
func NewHierarchy() *Hierarchy {
	return &Hierarchy{
		nodes: []*TagNode{nil},
		roots: map[string]TagID{},
	}
}

// BuildID returns the fingerprint assigned at Freeze (zero before).
func (h *Hierarchy) BuildID() uuid.UUID { return h.build }

// Frozen reports whether finalization has run.
func (h *Hierarchy) Frozen() bool { return h.frozen }

// -----------------------------
// Construction
// -----------------------------

// Insert creates the chain of tags named by path, reusing nodes that already
// exist, and returns the id of the last element. The optional literal is
// attached to that last element (replacing none: re-inserting an existing
// tag with a different literal is an error).
func (h *Hierarchy) Insert(path []string, literal *Value) (TagID, error) {
	if h.frozen {
		return NoTag, fmt.Errorf("tag hierarchy is frozen")
	}
	if len(path) == 0 {
		return NoTag, fmt.Errorf("empty tag path")
	}
	parent := NoTag
	var id TagID
	for i, name := range path {
		if name == "" {
			return NoTag, fmt.Errorf("empty tag name in path %q", strings.Join(path, "."))
		}
		if parent == NoTag {
			existing, ok := h.roots[name]
			if ok {
				id = existing
			} else {
				id = h.newNode(name, NoTag)
				h.roots[name] = id
				h.rootOrder = append(h.rootOrder, id)
			}
		} else {
			p := h.nodes[parent]
			existing, ok := p.children[name]
			if ok {
				id = existing
			} else {
				id = h.newNode(name, parent)
				p.children[name] = id
				p.childOrder = append(p.childOrder, id)
			}
		}
		if i == len(path)-1 && literal != nil {
			node := h.nodes[id]
			if node.Literal != nil && !Equal(*node.Literal, *literal) {
				return NoTag, fmt.Errorf("tag %s already carries a different literal", h.Path(id))
			}
			lit := *literal
			node.Literal = &lit
		}
		parent = id
	}
	return id, nil
}

// Extend inserts child under an existing parent id. This is the cross-module
// extension point: the extending module looks the parent up by path and adds
// its own children.
func (h *Hierarchy) Extend(parent TagID, child string) (TagID, error) {
	if h.frozen {
		return NoTag, fmt.Errorf("tag hierarchy is frozen")
	}
	p, err := h.node(parent)
	if err != nil {
		return NoTag, err
	}
	if id, ok := p.children[child]; ok {
		return id, nil
	}
	id := h.newNode(child, parent)
	p.children[child] = id
	p.childOrder = append(p.childOrder, id)
	return id, nil
}

// ExtendValue is Extend plus a literal on the new child.
func (h *Hierarchy) ExtendValue(parent TagID, child string, literal Value) (TagID, error) {
	id, err := h.Extend(parent, child)
	if err != nil {
		return NoTag, err
	}
	h.nodes[id].Literal = &literal
	return id, nil
}

// Alias records an additional parent for id, after its existing parents in
// priority order. Depth and paths keep following the primary parent; only
// descendant queries see the alias. The new parent must not already have a
// child with the aliased node's name: overwriting would shadow the original
// in path lookup.
func (h *Hierarchy) Alias(id, parent TagID) error {
	if h.frozen {
		return fmt.Errorf("tag hierarchy is frozen")
	}
	n, err := h.node(id)
	if err != nil {
		return err
	}
	p, err := h.node(parent)
	if err != nil {
		return err
	}
	for _, existing := range n.Parents {
		if existing == parent {
			return nil
		}
	}
	if existing, ok := p.children[n.Name]; ok && existing != id {
		return &DuplicateDefinitionError{Kind: "tag", Name: h.Path(parent) + "." + n.Name}
	}
	n.Parents = append(n.Parents, parent)
	p.children[n.Name] = id
	p.childOrder = append(p.childOrder, id)
	return nil
}

func (h *Hierarchy) newNode(name string, parent TagID) TagID {
	id := TagID(len(h.nodes))
	n := &TagNode{ID: id, Name: name, children: map[string]TagID{}}
	if parent != NoTag {
		n.Parents = []TagID{parent}
	}
	h.nodes = append(h.nodes, n)
	return id
}

func (h *Hierarchy) node(id TagID) (*TagNode, error) {
	if id <= NoTag || int(id) >= len(h.nodes) {
		return nil, fmt.Errorf("unknown tag id %d", id)
	}
	return h.nodes[id], nil
}

// -----------------------------
// Finalization
// -----------------------------

// Freeze validates the forest and seals it. The single fatal build-time
// condition native to this layer is a cycle: an id reachable from its own
// ancestor chain. Freeze is idempotent.
func (h *Hierarchy) Freeze() error {
	if h.frozen {
		return nil
	}
	for id := TagID(1); int(id) < len(h.nodes); id++ {
		if err := h.checkAcyclic(id, id, map[TagID]bool{}); err != nil {
			return err
		}
	}
	h.frozen = true
	h.build = uuid.New()
	return nil
}

func (h *Hierarchy) checkAcyclic(start, cur TagID, seen map[TagID]bool) error {
	if seen[cur] {
		return nil
	}
	seen[cur] = true
	for _, p := range h.nodes[cur].Parents {
		if p == start {
			return &HierarchyCycleError{Tag: h.nodes[start].Name}
		}
		if err := h.checkAcyclic(start, p, seen); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------
// Queries
// -----------------------------

// Find resolves a path to a tag id.
func (h *Hierarchy) Find(path ...string) (TagID, bool) {
	table := h.roots
	var id TagID
	for _, name := range path {
		next, ok := table[name]
		if !ok {
			return NoTag, false
		}
		id = next
		table = h.nodes[id].children
	}
	return id, id != NoTag
}

// Name returns the local name of id ("" for unknown ids).
func (h *Hierarchy) Name(id TagID) string {
	n, err := h.node(id)
	if err != nil {
		return ""
	}
	return n.Name
}

// Path renders the dotted path from the primary-parent root down to id.
func (h *Hierarchy) Path(id TagID) string {
	var parts []string
	for id != NoTag {
		n, err := h.node(id)
		if err != nil {
			return ""
		}
		parts = append(parts, n.Name)
		if len(n.Parents) == 0 {
			break
		}
		id = n.Parents[0]
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// Depth returns the distance from id to its primary-parent root (roots have
// depth 0). Deeper tags are more specific, which the scorer rewards.
func (h *Hierarchy) Depth(id TagID) uint32 {
	var d uint32
	for {
		n, err := h.node(id)
		if err != nil || len(n.Parents) == 0 {
			return d
		}
		d++
		id = n.Parents[0]
	}
}

// ValueOf returns the literal attached to id, if any.
func (h *Hierarchy) ValueOf(id TagID) (Value, bool) {
	n, err := h.node(id)
	if err != nil || n.Literal == nil {
		return Nil, false
	}
	return *n.Literal, true
}

// HasChildren reports whether id is a family (non-leaf).
func (h *Hierarchy) HasChildren(id TagID) bool {
	n, err := h.node(id)
	return err == nil && len(n.children) > 0
}

// IsDescendant reports whether child sits strictly below ancestor through
// any parent link (aliases included). A tag is never its own descendant.
func (h *Hierarchy) IsDescendant(child, ancestor TagID) bool {
	if child == ancestor {
		return false
	}
	return h.reaches(child, ancestor, map[TagID]bool{})
}

func (h *Hierarchy) reaches(from, to TagID, seen map[TagID]bool) bool {
	if seen[from] {
		return false
	}
	seen[from] = true
	n, err := h.node(from)
	if err != nil {
		return false
	}
	for _, p := range n.Parents {
		if p == to || h.reaches(p, to, seen) {
			return true
		}
	}
	return false
}

// MatchesType implements the tag-as-type rule: a family (a tag with
// children) matches strict descendants only; a leaf matches only itself.
func (h *Hierarchy) MatchesType(value, typ TagID) bool {
	if h.HasChildren(typ) {
		return h.IsDescendant(value, typ)
	}
	return value == typ
}

// Roots returns the forest's root ids in declaration order.
func (h *Hierarchy) Roots() []TagID {
	out := make([]TagID, len(h.rootOrder))
	copy(out, h.rootOrder)
	return out
}

// Children returns the direct children of id in declaration order
// (alias links included).
func (h *Hierarchy) Children(id TagID) []TagID {
	n, err := h.node(id)
	if err != nil {
		return nil
	}
	out := make([]TagID, len(n.childOrder))
	copy(out, n.childOrder)
	return out
}

// CastValue finds the first tag, in declaration (id) order, whose literal
// deeply equals v. When several tags share a literal the earliest wins; the
// source material reads both ways here and this library sides with the
// dispatch tie-break rule.
func (h *Hierarchy) CastValue(v Value) (TagID, bool) {
	v = Force(v)
	for id := TagID(1); int(id) < len(h.nodes); id++ {
		if lit := h.nodes[id].Literal; lit != nil && Equal(*lit, v) {
			return id, true
		}
	}
	return NoTag, false
}
