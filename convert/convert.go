// Package convert implements the Converter core (C3): the stack-driven
// transformation of an SD's flat differential element list into a nested
// FS document.
package convert

import (
	"strings"

	"github.com/gofhir/fschema"
	"github.com/gofhir/fschema/path"
	"github.com/gofhir/fschema/pkg/logger"
	"github.com/gofhir/fschema/schema"
	"github.com/gofhir/fschema/variant"
)

// Converter runs the stack algorithm described in §4.3. It is stateless and
// safe to reuse across many StructureDefinition documents; concurrent calls
// only contend when the caller also publishes results to a shared Registry
// (§5 — the converter itself is single-threaded per SD).
type Converter struct {
	log     *logger.Logger
	metrics *fschema.Metrics
}

// Option configures a Converter.
type Option func(*Converter)

// WithMetrics attaches a Metrics instance to record conversions performed.
func WithMetrics(m *fschema.Metrics) Option {
	return func(c *Converter) { c.metrics = m }
}

// New creates a Converter.
func New(opts ...Option) *Converter {
	c := &Converter{log: logger.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// frame is one level of the converter's stack. The root frame's element
// holds the schema body under construction; it is transferred into the
// final *schema.Schema once the stack unwinds to depth 1.
type frame struct {
	name    string
	element *schema.Element

	isSlice   bool
	sliceOf   string // owning element name, set when isSlice
	sliceName string
}

// item is one entry queued for processing, after choice expansion has
// flattened `value[x]` into its concrete variants.
type item struct {
	components   []string // path components, including any ":slice" suffixes, root type already trimmed
	el           rawElement
	choiceOf     string // set when this item is a synthesized choice-variant element
	choiceParent bool   // set on the original [x] entry, which becomes the group's placeholder
	choiceNames  []string
}

// Convert transforms a raw StructureDefinition JSON document into an FS
// Schema, per §4.3.
func (c *Converter) Convert(doc []byte) (*schema.Schema, error) {
	h, err := extractHeader(doc)
	if err != nil {
		return nil, err
	}
	elements, err := extractElements(doc)
	if err != nil {
		return nil, err
	}

	s := &schema.Schema{
		URL: h.URL, Name: h.Name, Type: h.Type, Version: h.Version, Description: h.Description,
		Kind: h.Kind, Derivation: h.Derivation, Abstract: h.Abstract, Base: h.Base,
	}
	s.Class = schema.DeriveClass(s.Kind, s.Derivation, s.Type)

	if h.Kind == schema.KindPrimitiveType && len(elements) == 0 {
		// Header-only FS: no elements map at all (§4.3 special case).
		if c.metrics != nil {
			c.metrics.RecordConversion()
		}
		return s, nil
	}

	items := c.expandChoices(elements, h.Type)

	root := &frame{name: "", element: &schema.Element{}}
	stack := []*frame{root}
	var prevComponents []string

	for _, it := range items {
		comps := it.components

		exits, enters := c.actionsFor(prevComponents, comps)
		for range exits {
			if err := c.popOne(&stack, s); err != nil {
				return nil, err
			}
		}
		for _, enterName := range enters {
			c.pushOne(&stack, enterName)
		}

		el, err := transformElement(it.el, s.Type)
		if err != nil {
			return nil, err
		}
		if it.choiceOf != "" {
			el.ChoiceOf = it.choiceOf
		}

		top := stack[len(stack)-1]
		leafName := comps[len(comps)-1]
		if strings.HasPrefix(leafName, ":") {
			leafName = top.sliceName
		}
		el.Name = leafName
		if it.choiceParent {
			el.Choices = it.choiceNames
			el.Type = ""
		}
		top.element = mergeElement(top.element, el)
		top.element.Name = leafName

		prevComponents = comps
	}

	for range prevComponents {
		if err := c.popOne(&stack, s); err != nil {
			return nil, err
		}
	}
	if len(stack) != 1 {
		return nil, wrapAt(CodeStackImbalance, h.Type, nil)
	}

	s.Elements = stack[0].element.Elements
	s.Required = stack[0].element.Required
	if c.metrics != nil {
		c.metrics.RecordConversion()
	}
	return s, nil
}

// mergeElement folds newly transformed fields (from processing this
// differential entry) onto whatever was already accumulated for this path
// (earlier differential entries constraining the same element further).
func mergeElement(existing, incoming *schema.Element) *schema.Element {
	if existing == nil {
		return incoming
	}
	if incoming.Type != "" {
		existing.Type = incoming.Type
	}
	if len(incoming.Refers) > 0 {
		existing.Refers = incoming.Refers
	}
	if incoming.ElementReference != "" {
		existing.ElementReference = incoming.ElementReference
	}
	if incoming.ChoiceOf != "" {
		existing.ChoiceOf = incoming.ChoiceOf
	}
	if len(incoming.Choices) > 0 {
		existing.Choices = incoming.Choices
	}
	if incoming.Pattern != nil {
		existing.Pattern = incoming.Pattern
	}
	if incoming.Binding != nil {
		existing.Binding = incoming.Binding
	}
	if incoming.Constraint != nil {
		if existing.Constraint == nil {
			existing.Constraint = map[string]schema.Constraint{}
		}
		for k, v := range incoming.Constraint {
			existing.Constraint[k] = v
		}
	}
	if incoming.Slicing != nil {
		existing.Slicing = incoming.Slicing
	}
	existing.Array = incoming.Array
	existing.Min = incoming.Min
	existing.Max = incoming.Max
	existing.MustSupport = existing.MustSupport || incoming.MustSupport
	existing.IsModifier = existing.IsModifier || incoming.IsModifier
	existing.IsSummary = existing.IsSummary || incoming.IsSummary
	return existing
}

// actionsFor computes the exit/enter action lists per §4.3 step 3: pop back
// to the common prefix of prev and cur, then push down to cur.
func (c *Converter) actionsFor(prev, cur []string) (exits []string, enters []string) {
	commonLen := 0
	max := len(prev)
	if len(cur) < max {
		max = len(cur)
	}
	for commonLen < max && prev[commonLen] == cur[commonLen] {
		commonLen++
	}
	exits = prev[commonLen:]
	enters = cur[commonLen:]
	return exits, enters
}

func (c *Converter) pushOne(stack *[]*frame, component string) {
	if strings.HasPrefix(component, ":") {
		parent := (*stack)[len(*stack)-1]
		slice := component[1:]
		*stack = append(*stack, &frame{name: parent.name, isSlice: true, sliceOf: parent.name, sliceName: slice, element: &schema.Element{}})
		return
	}
	*stack = append(*stack, &frame{name: component, element: &schema.Element{}})
}

func (c *Converter) popOne(stack *[]*frame, s *schema.Schema) error {
	if len(*stack) < 2 {
		return wrapAt(CodeStackImbalance, "", nil)
	}
	top := (*stack)[len(*stack)-1]
	*stack = (*stack)[:len(*stack)-1]
	parent := (*stack)[len(*stack)-1]

	if top.isSlice {
		attachSlice(parent.element, top, s)
		return nil
	}

	if parent.element.Elements == nil {
		parent.element.Elements = map[string]*schema.Element{}
	}
	top.element.Name = top.name
	parent.element.Elements[top.name] = top.element
	if top.element.Min >= 1 {
		if parent.element.Required == nil {
			parent.element.Required = map[string]bool{}
		}
		parent.element.Required[top.name] = true
	}
	return nil
}

// attachSlice builds the match descriptor from the owning element's
// discriminator spec and the popped slice body's pattern/fixed values, and
// installs the slice into the parent's slicing.slices map (§4.3 exit-slice).
// Extension-typed owners are a special case: each slice names one extension
// by its fixed `url`, so it is recorded on the schema's URL-keyed Extensions
// map instead of an ordinary named slice.
func attachSlice(owner *schema.Element, top *frame, s *schema.Schema) {
	if owner.Type == "Extension" {
		if url, ok := matchValueAt(top.element, "url"); ok {
			if urlStr, ok := variant.FromAny(url).String(); ok && urlStr != "" {
				if s.Extensions == nil {
					s.Extensions = map[string]schema.ExtensionSlot{}
				}
				s.Extensions[urlStr] = schema.ExtensionSlot{Min: top.element.Min, Max: top.element.Max}
			}
		}
		return
	}
	if owner.Slicing == nil {
		owner.Slicing = &schema.Slicing{Rules: schema.RulesOpen, Slices: map[string]*schema.Slice{}}
	}
	if owner.Slicing.Slices == nil {
		owner.Slicing.Slices = map[string]*schema.Slice{}
	}
	slice := &schema.Slice{Name: top.sliceName, Min: top.element.Min, Max: top.element.Max, Schema: top.element}
	for _, disc := range owner.Slicing.Discriminator {
		if val, ok := matchValueAt(top.element, disc.Path); ok {
			slice.Match = append(slice.Match, schema.MatchEntry{Kind: disc.Kind, Path: disc.Path, Value: val})
		}
	}
	owner.Slicing.Slices[top.sliceName] = slice
	owner.Slicing.SliceOrder = append(owner.Slicing.SliceOrder, top.sliceName)
}

// matchValueAt resolves a dotted path within a slice's built sub-element
// tree to the pattern/fixed value recorded on it, for building a
// discriminator match entry.
func matchValueAt(el *schema.Element, dotted string) (any, bool) {
	cur := el
	comps := path.Split(dotted)
	for i, c := range comps {
		if cur.Elements == nil {
			return nil, false
		}
		child, ok := cur.Elements[c]
		if !ok {
			return nil, false
		}
		if i == len(comps)-1 {
			if child.Pattern != nil {
				return child.Pattern, true
			}
			return nil, false
		}
		cur = child
	}
	return nil, false
}

// expandChoices walks the raw element list, splitting `[x]` paths into one
// item per declared type plus a placeholder item that carries `choices`
// (§4.2, §4.3 step 1).
func (c *Converter) expandChoices(elements []rawElement, rootType string) []item {
	items := make([]item, 0, len(elements))
	for _, el := range elements {
		comps := path.Split(path.TrimType(el.Path, rootType))
		if len(comps) == 0 {
			continue
		}
		last := comps[len(comps)-1]
		if !path.IsChoice(last) {
			items = append(items, item{components: expandSliceComponents(comps), el: el})
			continue
		}
		base := path.ChoiceBase(last)
		var names []string
		for _, t := range el.Types {
			name := path.ExpandedName(base, t.Code)
			names = append(names, name)
			variantComps := append(append([]string{}, comps[:len(comps)-1]...), name)
			variantEl := el
			variantEl.Types = []rawType{t}
			items = append(items, item{components: expandSliceComponents(variantComps), el: variantEl, choiceOf: last})
		}
		placeholder := el
		placeholder.Types = nil
		items = append(items, item{components: expandSliceComponents(comps), el: placeholder, choiceParent: true, choiceNames: names})
	}
	return items
}

// expandSliceComponents rewrites a "name:slice" path component into two
// stack levels, a plain "name" entry followed by a ":slice" marker, so that
// "identifier" and "identifier:MRN" share a common prefix and the slice
// nests correctly under its owning element instead of exiting it.
func expandSliceComponents(comps []string) []string {
	out := make([]string, 0, len(comps)+1)
	for _, c := range comps {
		if base, slice, ok := path.SliceName(c); ok {
			out = append(out, base, ":"+slice)
			continue
		}
		out = append(out, c)
	}
	return out
}

// transformElement converts one raw differential entry into an Element per
// §4.3 step 4.
func transformElement(el rawElement, rootType string) (*schema.Element, error) {
	out := &schema.Element{}

	if el.Max != "" {
		max, ok := parseMax(el.Max)
		if !ok {
			return nil, wrapAt(CodeInvalidCardinality, el.Path, nil)
		}
		out.Max = max
		out.Array = max == schema.Unbounded || max > 1
	} else {
		out.Max = 1
	}
	if el.HasMin {
		out.Min = el.Min
		if out.Max != schema.Unbounded && out.Max < out.Min {
			return nil, wrapAt(CodeInvalidCardinality, el.Path, nil)
		}
	}

	switch {
	case el.ContentReference != "":
		out.ElementReference = strings.TrimPrefix(el.ContentReference, "#")
	case len(el.Types) == 1 && (el.Types[0].Code == "Reference" || el.Types[0].Code == "CodeableReference") && len(el.Types[0].TargetProfile) > 0:
		out.Type = el.Types[0].Code
		out.Refers = targetTypeNames(el.Types[0].TargetProfile)
	case len(el.Types) == 1:
		out.Type = el.Types[0].Code
	case len(el.Types) == 0:
		// Backbone element or root: no type keyword, elements attach via
		// nested container frames.
	}

	if el.Fixed != nil {
		out.Pattern = el.Fixed.Value
	} else if el.Pattern != nil {
		out.Pattern = el.Pattern.Value
	}
	out.Binding = el.Binding
	if len(el.Constraint) > 0 {
		out.Constraint = map[string]schema.Constraint{}
		for _, con := range el.Constraint {
			out.Constraint[con.Key] = con
		}
	}
	if el.Slicing != nil && out.Type != "Extension" {
		out.Slicing = &schema.Slicing{
			Discriminator: el.Slicing.Discriminator,
			Rules:         el.Slicing.Rules,
			Ordered:       el.Slicing.Ordered,
			Slices:        map[string]*schema.Slice{},
		}
	}
	out.MustSupport = el.MustSupport
	out.IsModifier = el.IsModifier
	out.IsSummary = el.IsSummary

	return out, nil
}

func targetTypeNames(profiles []string) []string {
	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		idx := strings.LastIndexByte(p, '/')
		if idx >= 0 {
			names = append(names, p[idx+1:])
		} else {
			names = append(names, p)
		}
	}
	return names
}
