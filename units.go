// units.go
//
// Unit families and conversion.
//
// A unit is a persistent semantic annotation on a Value (Value.Unit). Units
// live in families; conversion is defined only within one family and goes
// through the family's base unit:
//
//	base = v*Factor + Offset        (unit → base)
//	out  = (base - Offset')/Factor' (base → unit')
//
// which keeps conversion associative and invertible inside a family.
// Cross-family conversion is undefined and always fails.
//
// Like the other registries, a UnitTable is built once, frozen, and then
// shared read-only. Standard() returns a table with the common families so
// shapes are usable without host definitions.
package morph

import "fmt"

// UnitDef describes one unit of a family. Factor/Offset map the unit onto
// the family's base unit.
type UnitDef struct {
	Name   string
	Family string
	Factor float64
	Offset float64
}

type unitFamily struct {
	name  string
	tag   TagID // optional link into the tag hierarchy
	units map[string]*UnitDef
	order []string
}

// UnitTable maps unit names to definitions, grouped in families.
type UnitTable struct {
	families map[string]*unitFamily
	byUnit   map[string]*UnitDef
	frozen   bool
}

// NewUnitTable returns an empty, unfrozen table.
func NewUnitTable() *UnitTable {
	return &UnitTable{
		families: map[string]*unitFamily{},
		byUnit:   map[string]*UnitDef{},
	}
}

// AddFamily declares a family. The tag id may be NoTag; when set it links
// the family to a node of the tag hierarchy for documentation purposes.
func (t *UnitTable) AddFamily(name string, tag TagID) error {
	if t.frozen {
		return fmt.Errorf("unit table is frozen")
	}
	if _, ok := t.families[name]; ok {
		return &DuplicateDefinitionError{Kind: "unit family", Name: name}
	}
	t.families[name] = &unitFamily{name: name, tag: tag, units: map[string]*UnitDef{}}
	return nil
}

// AddUnit declares a unit within an existing family. Unit names are global:
// one name cannot belong to two families.
func (t *UnitTable) AddUnit(family, name string, factor, offset float64) error {
	if t.frozen {
		return fmt.Errorf("unit table is frozen")
	}
	fam, ok := t.families[family]
	if !ok {
		return &ReferenceMissingError{Kind: "unit family", Name: family}
	}
	if _, ok := t.byUnit[name]; ok {
		return &DuplicateDefinitionError{Kind: "unit", Name: name}
	}
	if factor == 0 {
		return fmt.Errorf("unit %q: zero factor is not invertible", name)
	}
	def := &UnitDef{Name: name, Family: family, Factor: factor, Offset: offset}
	fam.units[name] = def
	fam.order = append(fam.order, name)
	t.byUnit[name] = def
	return nil
}

// Freeze seals the table. Idempotent.
func (t *UnitTable) Freeze() { t.frozen = true }

// FamilyOf returns the family a unit belongs to.
func (t *UnitTable) FamilyOf(unit string) (string, bool) {
	def, ok := t.byUnit[unit]
	if !ok {
		return "", false
	}
	return def.Family, true
}

// IsFamily reports whether name is a registered family.
func (t *UnitTable) IsFamily(name string) bool {
	_, ok := t.families[name]
	return ok
}

// Units lists the units of a family in declaration order.
func (t *UnitTable) Units(family string) []string {
	fam, ok := t.families[family]
	if !ok {
		return nil
	}
	out := make([]string, len(fam.order))
	copy(out, fam.order)
	return out
}

// Convert reinterprets a numeric value in a different unit of the same
// family. The input must be a number carrying a known unit; the result
// carries the target unit. Cross-family targets fail.
func (t *UnitTable) Convert(v Value, to string) (Value, error) {
	v = Force(v)
	if v.Kind != KindNumber {
		return Nil, fmt.Errorf("cannot convert %s value between units", v.Kind)
	}
	if v.Unit == to {
		return v, nil
	}
	from, ok := t.byUnit[v.Unit]
	if !ok {
		return Nil, &ReferenceMissingError{Kind: "unit", Name: v.Unit}
	}
	dst, ok := t.byUnit[to]
	if !ok {
		return Nil, &ReferenceMissingError{Kind: "unit", Name: to}
	}
	if from.Family != dst.Family {
		return Nil, fmt.Errorf("unit %q (family %s) is incompatible with %q (family %s)",
			from.Name, from.Family, dst.Name, dst.Family)
	}
	base := v.Num()*from.Factor + from.Offset
	out := (base - dst.Offset) / dst.Factor
	return Number(out).WithUnit(to), nil
}

// Standard returns a frozen table with the common families: length (base
// m), mass (base kg), duration (base s), temperature (base K).
func Standard() *UnitTable {
	t := NewUnitTable()
	add := func(err error) {
		if err != nil {
			panic(err) // static definitions below; cannot fail
		}
	}
	add(t.AddFamily("length", NoTag))
	add(t.AddUnit("length", "m", 1, 0))
	add(t.AddUnit("length", "cm", 0.01, 0))
	add(t.AddUnit("length", "mm", 0.001, 0))
	add(t.AddUnit("length", "km", 1000, 0))
	add(t.AddUnit("length", "in", 0.0254, 0))
	add(t.AddUnit("length", "ft", 0.3048, 0))

	add(t.AddFamily("mass", NoTag))
	add(t.AddUnit("mass", "kg", 1, 0))
	add(t.AddUnit("mass", "g", 0.001, 0))
	add(t.AddUnit("mass", "lb", 0.45359237, 0))

	add(t.AddFamily("duration", NoTag))
	add(t.AddUnit("duration", "s", 1, 0))
	add(t.AddUnit("duration", "ms", 0.001, 0))
	add(t.AddUnit("duration", "min", 60, 0))
	add(t.AddUnit("duration", "h", 3600, 0))

	add(t.AddFamily("temperature", NoTag))
	add(t.AddUnit("temperature", "K", 1, 0))
	add(t.AddUnit("temperature", "degC", 1, 273.15))
	add(t.AddUnit("temperature", "degF", 5.0/9.0, 255.3722222222222))

	t.Freeze()
	return t
}
