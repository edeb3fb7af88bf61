// value.go
//
// Runtime value model for the morph engine.
//
// Values form a closed tagged union: number, text, boolean, tag reference,
// structure, and nil, plus a lazy thunk wrapper so deferred fields can flow
// through morphing without being forced. A Structure is an immutable ordered
// sequence of Fields; each Field pairs a Key (named, positional, tag, or
// string) with a Value. Unnamed fields receive a dense, order-derived
// positional key when the structure is built.
//
// Everything in this file is immutable by convention: constructors copy what
// they are given, and no method mutates its receiver. Equality is deep and
// ignores unit annotations, matching how tag literals are compared when a
// value is cast to a tag.
package morph

import (
	"strconv"
	"sync"
)

// -----------------------------
// Value
// -----------------------------

// ValueKind enumerates the cases of the Value union. The kind determines
// which payload field of Value is meaningful.
type ValueKind int

const (
	KindNil    ValueKind = iota // no payload
	KindNumber                  // float64
	KindText                    // string
	KindBool                    // bool
	KindTag                     // TagID
	KindStruct                  // *Structure
	KindLazy                    // *Thunk
)

func (k ValueKind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindNumber:
		return "num"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindTag:
		return "tag"
	case KindStruct:
		return "struct"
	case KindLazy:
		return "lazy"
	default:
		return "unknown"
	}
}

// Value is the universal carrier consumed and produced by morphing.
//
// Fields:
//   - Kind — discriminant selecting the active case.
//   - Data — payload appropriate for Kind (float64, string, bool, TagID,
//     *Structure, *Thunk; nil for KindNil).
//   - Unit — optional unit annotation (e.g. "cm"). Units are persistent
//     semantic annotations: they survive copies and never affect equality.
type Value struct {
	Kind ValueKind
	Data any
	Unit string
}

// Nil is the singleton nil Value.
var Nil = Value{Kind: KindNil}

// Constructors. None of these attach a unit; use WithUnit for that.
func Number(f float64) Value     { return Value{Kind: KindNumber, Data: f} }
func Text(s string) Value        { return Value{Kind: KindText, Data: s} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Data: b} }
func Tag(id TagID) Value         { return Value{Kind: KindTag, Data: id} }
func Struct(s *Structure) Value  { return Value{Kind: KindStruct, Data: s} }
func Lazy(fn func() Value) Value { return Value{Kind: KindLazy, Data: &Thunk{fn: fn}} }

// WithUnit returns a copy of v annotated with the given unit name.
func (v Value) WithUnit(unit string) Value {
	v.Unit = unit
	return v
}

// Num returns the numeric payload (valid only when Kind==KindNumber).
func (v Value) Num() float64 { return v.Data.(float64) }

// Str returns the text payload (valid only when Kind==KindText).
func (v Value) Str() string { return v.Data.(string) }

// TagID returns the tag payload (valid only when Kind==KindTag).
func (v Value) TagID() TagID { return v.Data.(TagID) }

// StructVal returns the structure payload (valid only when Kind==KindStruct).
func (v Value) StructVal() *Structure { return v.Data.(*Structure) }

// -----------------------------
// Lazy thunks
// -----------------------------

// Thunk is a deferred value with a memo cell. Forcing is idempotent and safe
// under concurrent use; the closure runs at most once per Thunk.
type Thunk struct {
	fn   func() Value
	once sync.Once
	memo Value
}

// Force resolves lazy values to their underlying value, collapsing chains of
// thunks. Non-lazy values are returned unchanged. A unit annotation on the
// lazy wrapper carries over to the forced result unless the result already
// has one.
func Force(v Value) Value {
	for v.Kind == KindLazy {
		th := v.Data.(*Thunk)
		th.once.Do(func() { th.memo = th.fn() })
		inner := th.memo
		if inner.Unit == "" && v.Unit != "" {
			inner.Unit = v.Unit
		}
		v = inner
	}
	return v
}

// IsForced reports whether v needs no forcing (used by tests and by the
// passthrough phase to assert laziness is preserved).
func IsForced(v Value) bool { return v.Kind != KindLazy }

// -----------------------------
// Keys and fields
// -----------------------------

// KeyKind discriminates the four field-key cases.
type KeyKind int

const (
	KeyPos    KeyKind = iota // positional, order-derived
	KeyName                  // identifier key
	KeyTag                   // tag-reference key
	KeyString                // arbitrary string key (not an identifier)
)

// Key identifies a field within a structure. Exactly one of Name/Pos/Tag is
// meaningful, selected by Kind. String keys reuse Name as storage.
type Key struct {
	Kind KeyKind
	Name string
	Pos  int
	Tag  TagID
}

func NameKey(name string) Key { return Key{Kind: KeyName, Name: name} }
func PosKey(pos int) Key      { return Key{Kind: KeyPos, Pos: pos} }
func TagKey(id TagID) Key     { return Key{Kind: KeyTag, Tag: id} }
func StringKey(s string) Key  { return Key{Kind: KeyString, Name: s} }

// String renders the key for diagnostics: names verbatim, positions as #n,
// tag keys as tag:n, string keys quoted.
func (k Key) String() string {
	switch k.Kind {
	case KeyName:
		return k.Name
	case KeyPos:
		return "#" + strconv.Itoa(k.Pos)
	case KeyTag:
		return "tag:" + strconv.Itoa(int(k.Tag))
	case KeyString:
		return strconv.Quote(k.Name)
	default:
		return "?"
	}
}

func (k Key) equal(o Key) bool {
	if k.Kind != o.Kind {
		return false
	}
	switch k.Kind {
	case KeyName, KeyString:
		return k.Name == o.Name
	case KeyPos:
		return k.Pos == o.Pos
	case KeyTag:
		return k.Tag == o.Tag
	}
	return false
}

// Field pairs a key with a value.
type Field struct {
	Key   Key
	Value Value
}

// Named builds a named field.
func Named(name string, v Value) Field { return Field{Key: NameKey(name), Value: v} }

// Anon builds an unnamed field; NewStructure assigns its position.
func Anon(v Value) Field { return Field{Key: Key{Kind: KeyPos, Pos: -1}, Value: v} }

// -----------------------------
// Structure
// -----------------------------

// Structure is an immutable ordered sequence of fields. Position indices are
// dense and assigned by insertion order at construction; named-field order is
// preserved for iteration but ignored by equality.
type Structure struct {
	fields []Field
}

// NewStructure builds a structure from fields in order. Unnamed (positional)
// fields receive dense indices 0,1,2,... in encounter order, replacing any
// caller-supplied index.
func NewStructure(fields ...Field) *Structure {
	out := make([]Field, len(fields))
	pos := 0
	for i, f := range fields {
		if f.Key.Kind == KeyPos {
			f.Key.Pos = pos
			pos++
		}
		out[i] = f
	}
	return &Structure{fields: out}
}

// Len returns the field count.
func (s *Structure) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// Field returns the i-th field in declaration order.
func (s *Structure) Field(i int) Field { return s.fields[i] }

// Fields returns a copy of the field slice.
func (s *Structure) Fields() []Field {
	if s == nil {
		return nil
	}
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Named returns the value bound to a named key.
func (s *Structure) Named(name string) (Value, bool) {
	if s == nil {
		return Nil, false
	}
	for _, f := range s.fields {
		if f.Key.Kind == KeyName && f.Key.Name == name {
			return f.Value, true
		}
	}
	return Nil, false
}

// At returns the value bound to positional index pos.
func (s *Structure) At(pos int) (Value, bool) {
	if s == nil {
		return Nil, false
	}
	for _, f := range s.fields {
		if f.Key.Kind == KeyPos && f.Key.Pos == pos {
			return f.Value, true
		}
	}
	return Nil, false
}

// -----------------------------
// Equality
// -----------------------------

// Equal is deep structural equality. Named-field order is ignored;
// positional order is respected; unit annotations and laziness are ignored
// (lazy values are forced for comparison).
func Equal(a, b Value) bool {
	a, b = Force(a), Force(b)
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindNumber:
		return a.Num() == b.Num()
	case KindText:
		return a.Str() == b.Str()
	case KindBool:
		return a.Data.(bool) == b.Data.(bool)
	case KindTag:
		return a.TagID() == b.TagID()
	case KindStruct:
		return structEqual(a.StructVal(), b.StructVal())
	default:
		return false
	}
}

func structEqual(a, b *Structure) bool {
	if a.Len() != b.Len() {
		return false
	}
	// Positional and tag/string-keyed fields must agree in order; named
	// fields are matched by name regardless of order.
	an, bn := map[string]Value{}, map[string]Value{}
	var ao, bo []Field
	for _, f := range a.fields {
		if f.Key.Kind == KeyName {
			an[f.Key.Name] = f.Value
		} else {
			ao = append(ao, f)
		}
	}
	for _, f := range b.fields {
		if f.Key.Kind == KeyName {
			bn[f.Key.Name] = f.Value
		} else {
			bo = append(bo, f)
		}
	}
	if len(an) != len(bn) || len(ao) != len(bo) {
		return false
	}
	for name, av := range an {
		bv, ok := bn[name]
		if !ok || !Equal(av, bv) {
			return false
		}
	}
	for i := range ao {
		if !ao[i].Key.equal(bo[i].Key) || !Equal(ao[i].Value, bo[i].Value) {
			return false
		}
	}
	return true
}
