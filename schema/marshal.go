package schema

import (
	"encoding/json"
	"fmt"
	"sort"
)

// knownSchemaKeys is the exhaustive field set §3/§6 permit at the document
// level. Anything else triggers UnknownKeyword.
var knownSchemaKeys = map[string]bool{
	"url": true, "name": true, "type": true, "version": true, "description": true,
	"kind": true, "class": true, "derivation": true, "abstract": true, "base": true,
	"elements": true, "required": true, "excluded": true, "constraint": true, "extensions": true,
}

var knownElementKeys = map[string]bool{
	"array": true, "min": true, "max": true,
	"type": true, "refers": true, "elementReference": true, "choiceOf": true, "choices": true,
	"pattern": true, "binding": true, "constraint": true, "slicing": true,
	"mustSupport": true, "isModifier": true, "isSummary": true, "elements": true,
	"required": true, "excluded": true,
}

// ErrUnknownKeyword is returned (wrapped with the offending key) when a
// schema document contains a field outside the known set.
type ErrUnknownKeyword struct {
	Where string
	Key   string
}

func (e *ErrUnknownKeyword) Error() string {
	return fmt.Sprintf("schema: unknown keyword %q at %s", e.Key, e.Where)
}

// Parse decodes a schema document, rejecting unknown top-level or per-element
// keys with ErrUnknownKeyword (§6 round-trip invariant).
func Parse(data []byte) (*Schema, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("schema: parse: %w", err)
	}
	for k := range raw {
		if !knownSchemaKeys[k] {
			return nil, &ErrUnknownKeyword{Where: "<schema>", Key: k}
		}
	}

	s := &Schema{}
	if err := unmarshalField(raw, "url", &s.URL); err != nil {
		return nil, err
	}
	_ = unmarshalField(raw, "name", &s.Name)
	_ = unmarshalField(raw, "type", &s.Type)
	_ = unmarshalField(raw, "version", &s.Version)
	_ = unmarshalField(raw, "description", &s.Description)
	_ = unmarshalField(raw, "kind", &s.Kind)
	_ = unmarshalField(raw, "class", &s.Class)
	_ = unmarshalField(raw, "derivation", &s.Derivation)
	_ = unmarshalField(raw, "abstract", &s.Abstract)
	_ = unmarshalField(raw, "base", &s.Base)

	if elRaw, ok := raw["elements"]; ok {
		var elMap map[string]json.RawMessage
		if err := json.Unmarshal(elRaw, &elMap); err != nil {
			return nil, fmt.Errorf("schema: elements: %w", err)
		}
		s.Elements = make(map[string]*Element, len(elMap))
		for name, er := range elMap {
			el, err := parseElement("elements."+name, er)
			if err != nil {
				return nil, err
			}
			el.Name = name
			s.Elements[name] = el
		}
	}

	if reqRaw, ok := raw["required"]; ok {
		var names []string
		if err := json.Unmarshal(reqRaw, &names); err != nil {
			return nil, fmt.Errorf("schema: required: %w", err)
		}
		s.Required = toSet(names)
	}
	if excRaw, ok := raw["excluded"]; ok {
		var names []string
		if err := json.Unmarshal(excRaw, &names); err != nil {
			return nil, fmt.Errorf("schema: excluded: %w", err)
		}
		s.Excluded = toSet(names)
	}
	if cRaw, ok := raw["constraint"]; ok {
		c, err := parseConstraints(cRaw)
		if err != nil {
			return nil, err
		}
		s.Constraint = c
	}
	if extRaw, ok := raw["extensions"]; ok {
		var m map[string]ExtensionSlot
		if err := json.Unmarshal(extRaw, &m); err != nil {
			return nil, fmt.Errorf("schema: extensions: %w", err)
		}
		s.Extensions = m
	}

	if s.Class == "" {
		s.Class = DeriveClass(s.Kind, s.Derivation, s.Type)
	}
	return s, nil
}

func parseElement(where string, data json.RawMessage) (*Element, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("schema: %s: %w", where, err)
	}
	for k := range raw {
		if !knownElementKeys[k] {
			return nil, &ErrUnknownKeyword{Where: where, Key: k}
		}
	}
	e := &Element{}
	_ = unmarshalField(raw, "array", &e.Array)
	_ = unmarshalField(raw, "min", &e.Min)
	if maxRaw, ok := raw["max"]; ok {
		max, err := parseMax(maxRaw)
		if err != nil {
			return nil, fmt.Errorf("schema: %s.max: %w", where, err)
		}
		e.Max = max
	}
	_ = unmarshalField(raw, "type", &e.Type)
	_ = unmarshalField(raw, "refers", &e.Refers)
	_ = unmarshalField(raw, "elementReference", &e.ElementReference)
	_ = unmarshalField(raw, "choiceOf", &e.ChoiceOf)
	_ = unmarshalField(raw, "choices", &e.Choices)
	if pRaw, ok := raw["pattern"]; ok {
		var p any
		if err := json.Unmarshal(pRaw, &p); err != nil {
			return nil, fmt.Errorf("schema: %s.pattern: %w", where, err)
		}
		e.Pattern = p
	}
	if bRaw, ok := raw["binding"]; ok {
		var b Binding
		if err := json.Unmarshal(bRaw, &b); err != nil {
			return nil, fmt.Errorf("schema: %s.binding: %w", where, err)
		}
		e.Binding = &b
	}
	if cRaw, ok := raw["constraint"]; ok {
		c, err := parseConstraints(cRaw)
		if err != nil {
			return nil, err
		}
		e.Constraint = c
	}
	if slRaw, ok := raw["slicing"]; ok {
		sl, err := parseSlicing(where+".slicing", slRaw)
		if err != nil {
			return nil, err
		}
		e.Slicing = sl
	}
	_ = unmarshalField(raw, "mustSupport", &e.MustSupport)
	_ = unmarshalField(raw, "isModifier", &e.IsModifier)
	_ = unmarshalField(raw, "isSummary", &e.IsSummary)

	if elRaw, ok := raw["elements"]; ok {
		var elMap map[string]json.RawMessage
		if err := json.Unmarshal(elRaw, &elMap); err != nil {
			return nil, fmt.Errorf("schema: %s.elements: %w", where, err)
		}
		e.Elements = make(map[string]*Element, len(elMap))
		for name, er := range elMap {
			child, err := parseElement(where+".elements."+name, er)
			if err != nil {
				return nil, err
			}
			child.Name = name
			e.Elements[name] = child
		}
	}
	if reqRaw, ok := raw["required"]; ok {
		var names []string
		if err := json.Unmarshal(reqRaw, &names); err != nil {
			return nil, fmt.Errorf("schema: %s.required: %w", where, err)
		}
		e.Required = toSet(names)
	}
	if excRaw, ok := raw["excluded"]; ok {
		var names []string
		if err := json.Unmarshal(excRaw, &names); err != nil {
			return nil, fmt.Errorf("schema: %s.excluded: %w", where, err)
		}
		e.Excluded = toSet(names)
	}
	return e, nil
}

func parseConstraints(data json.RawMessage) (map[string]Constraint, error) {
	var raw map[string]Constraint
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("schema: constraint: %w", err)
	}
	for key, c := range raw {
		c.Key = key
		raw[key] = c
	}
	return raw, nil
}

func parseSlicing(where string, data json.RawMessage) (*Slicing, error) {
	var raw struct {
		Discriminator []Discriminator          `json:"discriminator"`
		Rules         SlicingRules             `json:"rules"`
		Ordered       bool                     `json:"ordered"`
		Slices        map[string]*sliceWire    `json:"slices"`
		SliceOrder    []string                 `json:"sliceOrder"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("schema: %s: %w", where, err)
	}
	sl := &Slicing{
		Discriminator: raw.Discriminator,
		Rules:         raw.Rules,
		Ordered:       raw.Ordered,
		Slices:        make(map[string]*Slice, len(raw.Slices)),
		SliceOrder:    raw.SliceOrder,
	}
	order := raw.SliceOrder
	if len(order) == 0 {
		for name := range raw.Slices {
			order = append(order, name)
		}
		sort.Strings(order)
		sl.SliceOrder = order
	}
	for name, w := range raw.Slices {
		s := &Slice{Name: name, Match: w.Match, Min: w.Min}
		max, err := parseMax(w.MaxRaw)
		if err != nil {
			return nil, fmt.Errorf("schema: %s.slices.%s.max: %w", where, name, err)
		}
		s.Max = max
		if w.Schema != nil {
			el, err := parseElement(where+".slices."+name+".schema", w.Schema)
			if err != nil {
				return nil, err
			}
			s.Schema = el
		}
		sl.Slices[name] = s
	}
	return sl, nil
}

type sliceWire struct {
	Match   []MatchEntry    `json:"match"`
	Min     int             `json:"min"`
	MaxRaw  json.RawMessage `json:"max"`
	Schema  json.RawMessage `json:"schema"`
}

func parseMax(raw json.RawMessage) (int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "*" {
			return Unbounded, nil
		}
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("invalid max %s", string(raw))
	}
	return n, nil
}

func unmarshalField(raw map[string]json.RawMessage, key string, dst any) error {
	r, ok := raw[key]
	if !ok {
		return nil
	}
	return json.Unmarshal(r, dst)
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Serialize encodes the schema back to its document form, preserving the
// missing-vs-empty distinction for Elements (§4.1).
func (s *Schema) Serialize() ([]byte, error) {
	out := map[string]any{
		"url": s.URL, "name": s.Name, "type": s.Type,
		"kind": s.Kind, "class": s.Class, "derivation": s.Derivation, "abstract": s.Abstract,
	}
	if s.Version != "" {
		out["version"] = s.Version
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if s.Base != "" {
		out["base"] = s.Base
	}
	if s.Elements != nil {
		els := make(map[string]any, len(s.Elements))
		for name, e := range s.Elements {
			els[name] = serializeElement(e)
		}
		out["elements"] = els
	}
	if len(s.Required) > 0 {
		out["required"] = setToSortedSlice(s.Required)
	}
	if len(s.Excluded) > 0 {
		out["excluded"] = setToSortedSlice(s.Excluded)
	}
	if len(s.Constraint) > 0 {
		out["constraint"] = s.Constraint
	}
	if len(s.Extensions) > 0 {
		out["extensions"] = s.Extensions
	}
	return json.Marshal(out)
}

func serializeElement(e *Element) map[string]any {
	out := map[string]any{"array": e.Array, "min": e.Min}
	if e.Max == Unbounded {
		out["max"] = "*"
	} else {
		out["max"] = e.Max
	}
	if e.Type != "" {
		out["type"] = e.Type
	}
	if len(e.Refers) > 0 {
		out["refers"] = e.Refers
	}
	if e.ElementReference != "" {
		out["elementReference"] = e.ElementReference
	}
	if e.ChoiceOf != "" {
		out["choiceOf"] = e.ChoiceOf
	}
	if len(e.Choices) > 0 {
		out["choices"] = e.Choices
	}
	if e.Pattern != nil {
		out["pattern"] = e.Pattern
	}
	if e.Binding != nil {
		out["binding"] = e.Binding
	}
	if len(e.Constraint) > 0 {
		out["constraint"] = e.Constraint
	}
	if e.Slicing != nil {
		out["slicing"] = serializeSlicing(e.Slicing)
	}
	if e.MustSupport {
		out["mustSupport"] = true
	}
	if e.IsModifier {
		out["isModifier"] = true
	}
	if e.IsSummary {
		out["isSummary"] = true
	}
	if e.Elements != nil {
		els := make(map[string]any, len(e.Elements))
		for name, c := range e.Elements {
			els[name] = serializeElement(c)
		}
		out["elements"] = els
	}
	if len(e.Required) > 0 {
		out["required"] = setToSortedSlice(e.Required)
	}
	if len(e.Excluded) > 0 {
		out["excluded"] = setToSortedSlice(e.Excluded)
	}
	return out
}

func serializeSlicing(sl *Slicing) map[string]any {
	slices := make(map[string]any, len(sl.Slices))
	for name, s := range sl.Slices {
		w := map[string]any{"match": s.Match, "min": s.Min}
		if s.Max == Unbounded {
			w["max"] = "*"
		} else {
			w["max"] = s.Max
		}
		if s.Schema != nil {
			w["schema"] = serializeElement(s.Schema)
		}
		slices[name] = w
	}
	return map[string]any{
		"discriminator": sl.Discriminator,
		"rules":         sl.Rules,
		"ordered":       sl.Ordered,
		"slices":        slices,
		"sliceOrder":    sl.SliceOrder,
	}
}

func setToSortedSlice(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
