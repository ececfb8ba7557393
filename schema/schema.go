// Package schema defines the FHIR Schema (FS) document model: the compact,
// composable representation the converter produces and the validator
// consumes.
package schema

// Kind classifies what a Schema describes.
type Kind string

const (
	KindResource      Kind = "resource"
	KindComplexType   Kind = "complex-type"
	KindPrimitiveType Kind = "primitive-type"
	KindLogical       Kind = "logical"
)

// Class is the derived classification of a Schema (see DeriveClass).
type Class string

const (
	ClassResource  Class = "resource"
	ClassProfile   Class = "profile"
	ClassType      Class = "type"
	ClassExtension Class = "extension"
	ClassLogical   Class = "logical"
)

// Derivation records whether a Schema specializes or constrains its base.
type Derivation string

const (
	DerivationSpecialization Derivation = "specialization"
	DerivationConstraint     Derivation = "constraint"
)

// BindingStrength is the strength of a terminology binding.
type BindingStrength string

const (
	BindingRequired   BindingStrength = "required"
	BindingExtensible BindingStrength = "extensible"
	BindingPreferred  BindingStrength = "preferred"
	BindingExample    BindingStrength = "example"
)

// DiscriminatorKind identifies how a slicing discriminator locates a value.
type DiscriminatorKind string

const (
	DiscriminatorValue   DiscriminatorKind = "value"
	DiscriminatorPattern DiscriminatorKind = "pattern"
	DiscriminatorType    DiscriminatorKind = "type"
	DiscriminatorProfile DiscriminatorKind = "profile"
	DiscriminatorExists  DiscriminatorKind = "exists"
)

// SlicingRules controls how unmatched array items are treated.
type SlicingRules string

const (
	RulesClosed    SlicingRules = "closed"
	RulesOpen      SlicingRules = "open"
	RulesOpenAtEnd SlicingRules = "openAtEnd"
)

// Unbounded represents an unbounded max cardinality ("*").
const Unbounded = -1

// Schema is the top-level FS document.
type Schema struct {
	URL         string
	Name        string
	Type        string
	Version     string
	Description string

	Kind       Kind
	Class      Class
	Derivation Derivation
	Abstract   bool
	Base       string

	// Elements is nil when the schema has no body (e.g. a primitive-type
	// header). An empty, non-nil map asserts "no elements" explicitly,
	// matching §3's missing-vs-empty invariant.
	Elements map[string]*Element
	Required map[string]bool
	Excluded map[string]bool

	Constraint map[string]Constraint

	// Extensions maps an extension URL to the min/max cardinality declared
	// for it at the profile level (populated for extension slicing, §4.3).
	Extensions map[string]ExtensionSlot
}

// ExtensionSlot records the cardinality of a named extension on a profile.
type ExtensionSlot struct {
	Min int
	Max int // Unbounded for "*"
}

// Constraint is a named boolean-expression rule.
type Constraint struct {
	Key        string
	Expression string
	Severity   Severity
	Human      string
}

// Severity mirrors the taxonomy in §7/§3 for constraints and issues.
type Severity string

const (
	SeverityError       Severity = "error"
	SeverityWarning     Severity = "warning"
	SeverityInformation Severity = "information"
)

// Binding is a terminology binding on an Element.
type Binding struct {
	Strength BindingStrength
	ValueSet string
}

// Discriminator is one entry of a Slicing's discriminator list.
type Discriminator struct {
	Kind DiscriminatorKind
	Path string
}

// Slice is one named partition of a sliced array element.
type Slice struct {
	Name  string
	Match []MatchEntry
	Min   int
	Max   int // Unbounded for "*"
	// Schema is the slice's own element sub-schema; items assigned to this
	// slice are validated against it in addition to the array element's body.
	Schema *Element
}

// MatchEntry is one (path -> expected value) pair a slice's discriminators
// resolve to, derived from the slice sub-schema's pattern/fixed values.
type MatchEntry struct {
	Kind  DiscriminatorKind
	Path  string
	Value any
}

// Slicing is the partitioning rule set attached to an array Element.
type Slicing struct {
	Discriminator []Discriminator
	Rules         SlicingRules
	Ordered       bool
	Slices        map[string]*Slice
	// SliceOrder preserves declaration order for §4.7's ordered enforcement.
	SliceOrder []string
}

// Element is one field definition within a Schema or a nested backbone.
type Element struct {
	Name  string
	Array bool
	Min   int
	Max   int // Unbounded for "*"

	// Exactly one of Type, Refers, ElementReference, ChoiceOf should be set,
	// per §3's invariant; Choices is set only on a choice group's base.
	Type             string
	Refers           []string
	ElementReference string
	ChoiceOf         string
	Choices          []string

	Pattern    any
	Binding    *Binding
	Constraint map[string]Constraint
	Slicing    *Slicing

	MustSupport bool
	IsModifier  bool
	IsSummary   bool

	// Elements, Required and Excluded describe this element's own body when
	// it is a backbone (nested container), mirroring the Schema-level body
	// per §3's shared "Body" shape.
	Elements map[string]*Element
	Required map[string]bool
	Excluded map[string]bool
}

// DeriveClass computes Class from (kind, derivation, type) per §3's
// invariant table.
func DeriveClass(kind Kind, derivation Derivation, typeName string) Class {
	switch kind {
	case KindResource:
		if derivation == DerivationConstraint {
			return ClassProfile
		}
		return ClassResource
	case KindComplexType, KindPrimitiveType:
		if typeName == "Extension" {
			return ClassExtension
		}
		return ClassType
	case KindLogical:
		return ClassLogical
	default:
		return ClassType
	}
}

// Equal compares two schemas by canonical URL, per §4.1.
func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.URL == other.URL
}
