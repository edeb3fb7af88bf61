// guards.go
//
// Guard predicates.
//
// A guard is a pure predicate constraining a bound value beyond its base
// type. Guards are supplied by the caller as opaque callables; purity is a
// contract, not something this layer verifies — a guard that performs I/O
// or mutates shared state is a caller-side violation.
//
// The standard guards below cover the constraints shapes typically declare
// inline (min/max bounds, length, literal sets, regular expressions), so a
// host can express most shapes without writing Go.
package morph

import (
	"fmt"
	"regexp"
	"strings"
)

// GuardFunc is the predicate signature: nil means the value passes, any
// error is the violation message. Args carries the guard's literal
// arguments as declared on the field spec.
type GuardFunc func(v Value, args []Value) error

// GuardDef attaches a named predicate plus its literal arguments to a
// field spec. Guards on one spec run in declaration order; the first
// failure aborts the morph.
type GuardDef struct {
	Name  string
	Args  []Value
	Check GuardFunc
}

func (g GuardDef) run(v Value) error {
	return g.Check(v, g.Args)
}

// -----------------------------
// Standard guards
// -----------------------------

// Min requires a number >= bound. Unit annotations are ignored; the bound
// is compared in the value's own unit.
func Min(bound float64) GuardDef {
	return GuardDef{
		Name: "min",
		Args: []Value{Number(bound)},
		Check: func(v Value, args []Value) error {
			v = Force(v)
			if v.Kind != KindNumber {
				return fmt.Errorf("min applies to numbers, got %s", v.Kind)
			}
			if v.Num() < args[0].Num() {
				return fmt.Errorf("%v is below minimum %v", v.Num(), args[0].Num())
			}
			return nil
		},
	}
}

// Max requires a number <= bound.
func Max(bound float64) GuardDef {
	return GuardDef{
		Name: "max",
		Args: []Value{Number(bound)},
		Check: func(v Value, args []Value) error {
			v = Force(v)
			if v.Kind != KindNumber {
				return fmt.Errorf("max applies to numbers, got %s", v.Kind)
			}
			if v.Num() > args[0].Num() {
				return fmt.Errorf("%v exceeds maximum %v", v.Num(), args[0].Num())
			}
			return nil
		},
	}
}

// MinLen/MaxLen constrain text length (in bytes) or structure field count.
func MinLen(n int) GuardDef {
	return GuardDef{
		Name: "minLen",
		Args: []Value{Number(float64(n))},
		Check: func(v Value, args []Value) error {
			l, err := lengthOf(v)
			if err != nil {
				return err
			}
			if l < int(args[0].Num()) {
				return fmt.Errorf("length %d is below minimum %d", l, int(args[0].Num()))
			}
			return nil
		},
	}
}

func MaxLen(n int) GuardDef {
	return GuardDef{
		Name: "maxLen",
		Args: []Value{Number(float64(n))},
		Check: func(v Value, args []Value) error {
			l, err := lengthOf(v)
			if err != nil {
				return err
			}
			if l > int(args[0].Num()) {
				return fmt.Errorf("length %d exceeds maximum %d", l, int(args[0].Num()))
			}
			return nil
		},
	}
}

func lengthOf(v Value) (int, error) {
	v = Force(v)
	switch v.Kind {
	case KindText:
		return len(v.Str()), nil
	case KindStruct:
		return v.StructVal().Len(), nil
	default:
		return 0, fmt.Errorf("length guard applies to text or structures, got %s", v.Kind)
	}
}

// OneOf requires the value to deeply equal one of the listed literals.
func OneOf(options ...Value) GuardDef {
	return GuardDef{
		Name: "oneOf",
		Args: options,
		Check: func(v Value, args []Value) error {
			for _, opt := range args {
				if Equal(v, opt) {
					return nil
				}
			}
			var names []string
			for _, opt := range args {
				names = append(names, FormatValue(opt))
			}
			return fmt.Errorf("not one of %s", strings.Join(names, ", "))
		},
	}
}

// Matches requires text matching an anchored regular expression. The
// pattern is compiled once at shape-build time; an invalid pattern is a
// build bug surfaced as a panic there rather than a morph failure.
func Matches(pattern string) GuardDef {
	re := regexp.MustCompile("^(?:" + pattern + ")$")
	return GuardDef{
		Name: "matches",
		Args: []Value{Text(pattern)},
		Check: func(v Value, args []Value) error {
			v = Force(v)
			if v.Kind != KindText {
				return fmt.Errorf("matches applies to text, got %s", v.Kind)
			}
			if !re.MatchString(v.Str()) {
				return fmt.Errorf("%q does not match %s", v.Str(), args[0].Str())
			}
			return nil
		},
	}
}

// NonNil rejects nil values (useful on pass-through unions).
func NonNil() GuardDef {
	return GuardDef{
		Name: "nonNil",
		Check: func(v Value, args []Value) error {
			if Force(v).Kind == KindNil {
				return fmt.Errorf("value is nil")
			}
			return nil
		},
	}
}

// Guard wraps a caller-supplied predicate under a name, for constraints the
// standard set does not cover.
func Guard(name string, fn GuardFunc, args ...Value) GuardDef {
	return GuardDef{Name: name, Args: args, Check: fn}
}
