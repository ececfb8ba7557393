package convert

import (
	"strconv"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/gofhir/fschema/schema"
	"github.com/gofhir/fschema/variant"
)

// header holds the SD document-level fields extracted before the element
// walk begins (§4.3 "Header synthesis").
type header struct {
	URL         string
	Name        string
	Type        string
	Version     string
	Description string
	Base        string
	Kind        schema.Kind
	Derivation  schema.Derivation
	Abstract    bool
}

// rawType is one entry of an element's type[] array.
type rawType struct {
	Code          string
	TargetProfile []string
	Profile       []string
}

// rawElement is one differential/snapshot element, decoded field-by-field
// with jsonparser rather than into a fixed struct, because fixed[x]/
// pattern[x] are polymorphic on a FHIR type-name suffix (§4.3, SPEC_FULL §11).
type rawElement struct {
	Path       string
	SliceName  string
	Min        int
	HasMin     bool
	Max        string
	Types      []rawType
	Fixed      *typedValue
	Pattern    *typedValue
	Binding    *schema.Binding
	Constraint []schema.Constraint
	Slicing    *rawSlicing
	MustSupport bool
	IsModifier  bool
	IsSummary   bool
	ContentReference string
}

// typedValue is the decoded value of a fixed<Type>/pattern<Type> field plus
// the FHIR type name recovered from the key suffix.
type typedValue struct {
	TypeName string
	Value    variant.Value
	Raw      any
}

type rawSlicing struct {
	Discriminator []schema.Discriminator
	Rules         schema.SlicingRules
	Ordered       bool
}

// extractHeader pulls the document-level SD fields via jsonparser, avoiding
// a full decode of the (potentially large) element lists just to read a
// handful of scalar fields.
func extractHeader(doc []byte) (header, error) {
	h := header{}
	h.URL, _ = jsonparser.GetString(doc, "url")
	h.Name, _ = jsonparser.GetString(doc, "name")
	h.Type, _ = jsonparser.GetString(doc, "type")
	h.Version, _ = jsonparser.GetString(doc, "version")
	h.Description, _ = jsonparser.GetString(doc, "description")
	h.Base, _ = jsonparser.GetString(doc, "baseDefinition")
	kind, _ := jsonparser.GetString(doc, "kind")
	h.Kind = schema.Kind(kind)
	derivation, _ := jsonparser.GetString(doc, "derivation")
	if derivation == "" {
		derivation = string(schema.DerivationSpecialization)
	}
	h.Derivation = schema.Derivation(derivation)
	h.Abstract, _ = jsonparser.GetBoolean(doc, "abstract")
	return h, nil
}

// extractElements returns the differential element list if present,
// otherwise the snapshot element list, per §6's converter input format.
func extractElements(doc []byte) ([]rawElement, error) {
	if arr, dataType, _, err := jsonparser.Get(doc, "differential", "element"); err == nil && dataType == jsonparser.Array {
		return decodeElementArray(arr)
	}
	if arr, dataType, _, err := jsonparser.Get(doc, "snapshot", "element"); err == nil && dataType == jsonparser.Array {
		return decodeElementArray(arr)
	}
	return nil, wrapAt(CodeMalformedPath, "<document>", errNoElements)
}

var errNoElements = errNoElementsErr("neither differential.element nor snapshot.element present")

type errNoElementsErr string

func (e errNoElementsErr) Error() string { return string(e) }

func decodeElementArray(arr []byte) ([]rawElement, error) {
	var out []rawElement
	var iterErr error
	_, err := jsonparser.ArrayEach(arr, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		if iterErr != nil || err != nil {
			iterErr = err
			return
		}
		el, derr := decodeElement(value)
		if derr != nil {
			iterErr = derr
			return
		}
		out = append(out, el)
	})
	if err != nil {
		return nil, wrapAt(CodeMalformedPath, "<elements>", err)
	}
	if iterErr != nil {
		return nil, wrapAt(CodeMalformedPath, "<elements>", iterErr)
	}
	return out, nil
}

func decodeElement(obj []byte) (rawElement, error) {
	el := rawElement{}
	fullPath, err := jsonparser.GetString(obj, "path")
	if err != nil {
		return el, wrapAt(CodeMalformedPath, "<element>", err)
	}
	el.Path = fullPath
	if sliceName, err := jsonparser.GetString(obj, "sliceName"); err == nil {
		el.SliceName = sliceName
	}
	if min, err := jsonparser.GetInt(obj, "min"); err == nil {
		el.Min = int(min)
		el.HasMin = true
	}
	if max, err := jsonparser.GetString(obj, "max"); err == nil {
		el.Max = max
	}
	if types, dataType, _, err := jsonparser.Get(obj, "type"); err == nil && dataType == jsonparser.Array {
		_, _ = jsonparser.ArrayEach(types, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
			code, _ := jsonparser.GetString(value, "code")
			rt := rawType{Code: code}
			_, _ = jsonparser.ArrayEach(value, func(v []byte, dt jsonparser.ValueType, o int, e error) {
				s, _ := jsonparser.ParseString(v)
				rt.TargetProfile = append(rt.TargetProfile, s)
			}, "targetProfile")
			_, _ = jsonparser.ArrayEach(value, func(v []byte, dt jsonparser.ValueType, o int, e error) {
				s, _ := jsonparser.ParseString(v)
				rt.Profile = append(rt.Profile, s)
			}, "profile")
			el.Types = append(el.Types, rt)
		})
	}
	if cref, err := jsonparser.GetString(obj, "contentReference"); err == nil {
		el.ContentReference = cref
	}

	// Prefix-scan for fixed<Type>/pattern<Type> keys, since the FHIR wire
	// format spells the value's type into the key name rather than using a
	// uniform envelope (§4.3, SPEC_FULL §11: jsonparser drives this instead
	// of a per-type struct field).
	_ = jsonparser.ObjectEach(obj, func(key, value []byte, dataType jsonparser.ValueType, offset int) error {
		k := string(key)
		switch {
		case strings.HasPrefix(k, "fixed") && len(k) > len("fixed"):
			tv, err := decodeTypedValue("fixed", k, value, dataType)
			if err == nil {
				el.Fixed = tv
			}
		case strings.HasPrefix(k, "pattern") && len(k) > len("pattern"):
			tv, err := decodeTypedValue("pattern", k, value, dataType)
			if err == nil {
				el.Pattern = tv
			}
		}
		return nil
	})

	if bindingRaw, dataType, _, err := jsonparser.Get(obj, "binding"); err == nil && dataType == jsonparser.Object {
		strength, _ := jsonparser.GetString(bindingRaw, "strength")
		valueSet, _ := jsonparser.GetString(bindingRaw, "valueSet")
		if strength != "" {
			el.Binding = &schema.Binding{Strength: schema.BindingStrength(strength), ValueSet: valueSet}
		}
	}

	if constraints, dataType, _, err := jsonparser.Get(obj, "constraint"); err == nil && dataType == jsonparser.Array {
		_, _ = jsonparser.ArrayEach(constraints, func(value []byte, dt jsonparser.ValueType, o int, e error) {
			key, _ := jsonparser.GetString(value, "key")
			expr, _ := jsonparser.GetString(value, "expression")
			severity, _ := jsonparser.GetString(value, "severity")
			human, _ := jsonparser.GetString(value, "human")
			sev := schema.SeverityError
			if severity == "warning" {
				sev = schema.SeverityWarning
			}
			el.Constraint = append(el.Constraint, schema.Constraint{
				Key: key, Expression: expr, Severity: sev, Human: human,
			})
		})
	}

	if slicingRaw, dataType, _, err := jsonparser.Get(obj, "slicing"); err == nil && dataType == jsonparser.Object {
		rs := &rawSlicing{Rules: schema.RulesOpen}
		if rules, err := jsonparser.GetString(slicingRaw, "rules"); err == nil && rules != "" {
			rs.Rules = schema.SlicingRules(rules)
		}
		rs.Ordered, _ = jsonparser.GetBoolean(slicingRaw, "ordered")
		if discs, dataType, _, err := jsonparser.Get(slicingRaw, "discriminator"); err == nil && dataType == jsonparser.Array {
			_, _ = jsonparser.ArrayEach(discs, func(value []byte, dt jsonparser.ValueType, o int, e error) {
				kind, _ := jsonparser.GetString(value, "type")
				path, _ := jsonparser.GetString(value, "path")
				rs.Discriminator = append(rs.Discriminator, schema.Discriminator{
					Kind: schema.DiscriminatorKind(kind), Path: path,
				})
			})
		}
		el.Slicing = rs
	}

	el.MustSupport, _ = jsonparser.GetBoolean(obj, "mustSupport")
	el.IsModifier, _ = jsonparser.GetBoolean(obj, "isModifier")
	el.IsSummary, _ = jsonparser.GetBoolean(obj, "isSummary")

	return el, nil
}

func decodeTypedValue(prefix, key string, value []byte, dataType jsonparser.ValueType) (*typedValue, error) {
	typeName := key[len(prefix):]
	typeName = strings.ToLower(typeName[:1]) + typeName[1:]

	var raw []byte
	switch dataType {
	case jsonparser.String:
		raw = append([]byte{'"'}, append(value, '"')...)
	case jsonparser.Number, jsonparser.Boolean:
		raw = value
	case jsonparser.Null:
		raw = []byte("null")
	default:
		raw = value
	}
	v, err := variant.Decode(raw)
	if err != nil {
		return nil, err
	}
	return &typedValue{TypeName: typeName, Value: v}, nil
}

func parseMax(s string) (int, bool) {
	if s == "*" || s == "" {
		return schema.Unbounded, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
