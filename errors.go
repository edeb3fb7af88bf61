// errors.go: structured failure values and diagnostic rendering
//
// Every runtime failure in this library is recoverable and returned as a
// value — nothing at this layer panics or aborts. The taxonomy is closed:
//
//	MissingField, UnexpectedField, ConstraintViolation, IncompatibleUnit
//	NoMatchingImplementation, AmbiguousDispatch
//
// plus three build-time conditions surfaced by registry/hierarchy
// finalization (DuplicateDefinition, ReferenceMissing, HierarchyCycle),
// which callers should treat as fatal module-load errors rather than
// evaluation failures.
//
// Each error type carries enough structured context (shape, field, phase,
// nested cause) for a caller to build a user-facing diagnostic without
// re-deriving it. `FormatFailure` renders any of them as a multi-line
// plain-text block suitable for logs and terminals; other errors are
// rendered via their Error() string unchanged.
package morph

import (
	"fmt"
	"strings"
)

// Phase names the morph phase a failure was detected in. Carried on morph
// failures for diagnostics; the values mirror the engine's fixed ordering.
type Phase string

const (
	PhaseNamed      Phase = "named"
	PhaseTagTyped   Phase = "tag-typed"
	PhasePositional Phase = "positional"
	PhaseDefaults   Phase = "defaults"
	PhaseGuards     Phase = "guards"
	PhaseUnits      Phase = "units"
	PhaseExtras     Phase = "extra-fields"
)

// MorphError is implemented by the four morph-failure types.
type MorphError interface {
	error
	MorphPhase() Phase
}

// MissingFieldError: a field spec had no binding and no default.
type MissingFieldError struct {
	Shape string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q in shape %s", e.Field, e.Shape)
}
func (e *MissingFieldError) MorphPhase() Phase { return PhaseDefaults }

// UnexpectedFieldError: leftover input field under a Reject extra policy.
type UnexpectedFieldError struct {
	Shape string
	Key   Key
}

func (e *UnexpectedFieldError) Error() string {
	return fmt.Sprintf("unexpected field %s for shape %s", e.Key, e.Shape)
}
func (e *UnexpectedFieldError) MorphPhase() Phase { return PhaseExtras }

// ConstraintViolationError: a guard (or the declared type, reported as the
// pseudo-guard "type") rejected a bound value.
type ConstraintViolationError struct {
	Shape   string
	Field   string
	Guard   string
	Message string
	Cause   error
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("constraint %s failed on field %q of shape %s: %s",
		e.Guard, e.Field, e.Shape, e.Message)
}
func (e *ConstraintViolationError) MorphPhase() Phase { return PhaseGuards }
func (e *ConstraintViolationError) Unwrap() error     { return e.Cause }

// IncompatibleUnitError: a bound value's unit cannot be converted to the
// spec's required unit (different family, or unknown unit).
type IncompatibleUnitError struct {
	Shape string
	Field string
	From  string
	To    string
	Cause error
}

func (e *IncompatibleUnitError) Error() string {
	return fmt.Sprintf("cannot convert field %q of shape %s from %q to %q",
		e.Field, e.Shape, e.From, e.To)
}
func (e *IncompatibleUnitError) MorphPhase() Phase { return PhaseUnits }
func (e *IncompatibleUnitError) Unwrap() error     { return e.Cause }

// NoMatchingImplementationError: every candidate in a dispatch set scored
// NoMatch for the input.
type NoMatchingImplementationError struct {
	Name       string
	Considered int
}

func (e *NoMatchingImplementationError) Error() string {
	return fmt.Sprintf("no matching implementation of %q (%d candidates considered)",
		e.Name, e.Considered)
}

// AmbiguousDispatchError: two or more candidates tied on the full score
// tuple. Candidates holds the tied shape names in declaration order.
type AmbiguousDispatchError struct {
	Name       string
	Candidates []string
	Score      Score
}

func (e *AmbiguousDispatchError) Error() string {
	return fmt.Sprintf("ambiguous dispatch of %q between %s",
		e.Name, strings.Join(e.Candidates, ", "))
}

// -----------------------------
// Build-time errors
// -----------------------------

// DuplicateDefinitionError: a name registered twice in one registry.
type DuplicateDefinitionError struct {
	Kind string // "shape", "dispatch set", ...
	Name string
}

func (e *DuplicateDefinitionError) Error() string {
	return fmt.Sprintf("duplicate %s definition: %s", e.Kind, e.Name)
}

// ReferenceMissingError: lookup of an unregistered name.
type ReferenceMissingError struct {
	Kind string
	Name string
}

func (e *ReferenceMissingError) Error() string {
	return fmt.Sprintf("unknown %s: %s", e.Kind, e.Name)
}

// HierarchyCycleError: a tag id appeared in its own ancestor chain.
type HierarchyCycleError struct {
	Tag string
}

func (e *HierarchyCycleError) Error() string {
	return fmt.Sprintf("tag hierarchy cycle through %s", e.Tag)
}

// -----------------------------
// Rendering
// -----------------------------

// FormatFailure renders a failure from this package as a multi-line
// diagnostic block:
//
//	MORPH FAILURE in shape user (phase guards)
//	  field: age
//	  guard: max
//	  cause: 300 exceeds maximum 255
//
// Errors from other packages are rendered as their Error() string.
func FormatFailure(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	line := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "  %s: %s\n", k, v)
		}
	}
	switch e := err.(type) {
	case *MissingFieldError:
		fmt.Fprintf(&b, "MORPH FAILURE in shape %s (phase %s)\n", e.Shape, e.MorphPhase())
		line("missing", e.Field)
	case *UnexpectedFieldError:
		fmt.Fprintf(&b, "MORPH FAILURE in shape %s (phase %s)\n", e.Shape, e.MorphPhase())
		line("unexpected", e.Key.String())
	case *ConstraintViolationError:
		fmt.Fprintf(&b, "MORPH FAILURE in shape %s (phase %s)\n", e.Shape, e.MorphPhase())
		line("field", e.Field)
		line("guard", e.Guard)
		line("cause", e.Message)
	case *IncompatibleUnitError:
		fmt.Fprintf(&b, "MORPH FAILURE in shape %s (phase %s)\n", e.Shape, e.MorphPhase())
		line("field", e.Field)
		line("from", e.From)
		line("to", e.To)
	case *NoMatchingImplementationError:
		fmt.Fprintf(&b, "DISPATCH FAILURE for %s\n", e.Name)
		line("cause", fmt.Sprintf("none of %d candidates matched", e.Considered))
	case *AmbiguousDispatchError:
		fmt.Fprintf(&b, "DISPATCH FAILURE for %s\n", e.Name)
		line("tied", strings.Join(e.Candidates, ", "))
		line("score", e.Score.String())
	default:
		return err.Error()
	}
	return strings.TrimRight(b.String(), "\n")
}
