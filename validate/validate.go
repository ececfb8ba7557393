// Package validate implements the element validator (C6): the eight-step
// per-value validation order that walks a decoded value alongside the
// applicable schema set computed by package schemata, delegating array
// slicing to package slicing and constraint expressions to package
// constraint.
package validate

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/gofhir/fschema"
	"github.com/gofhir/fschema/constraint"
	"github.com/gofhir/fschema/path"
	"github.com/gofhir/fschema/pkg/logger"
	"github.com/gofhir/fschema/schema"
	"github.com/gofhir/fschema/schemata"
	"github.com/gofhir/fschema/slicing"
	"github.com/gofhir/fschema/variant"
)

// Validator runs the C6 algorithm against a resolver-backed schemata set.
type Validator struct {
	collector *schemata.Collector
	slicer    *slicing.Evaluator
	engine    constraint.Engine
	opts      *fschema.Options
	log       *logger.Logger
	metrics   *fschema.Metrics
}

// Option configures a Validator.
type Option func(*Validator)

// WithEngine sets the constraint expression engine (§4.8). Defaults to
// constraint.NewFHIRPathEngine.
func WithEngine(e constraint.Engine) Option {
	return func(v *Validator) { v.engine = e }
}

// WithOptions applies a fully-built fschema.Options rather than the default.
func WithOptions(o *fschema.Options) Option {
	return func(v *Validator) { v.opts = o }
}

// WithLogger overrides the default logger.
func WithLogger(l *logger.Logger) Option {
	return func(v *Validator) { v.log = l }
}

// WithMetrics attaches a Metrics instance to record conversions/validations.
func WithMetrics(m *fschema.Metrics) Option {
	return func(v *Validator) { v.metrics = m }
}

// New creates a Validator backed by resolver.
func New(resolver schemata.Resolver, opts ...Option) *Validator {
	v := &Validator{
		collector: schemata.New(resolver),
		slicer:    slicing.New(),
		engine:    constraint.NewFHIRPathEngine(),
		opts:      fschema.DefaultOptions(),
		log:       logger.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// level is the uniform view over a schema.Schema or a schema.Element used by
// the validation order below: both carry the "Body" shape from §3
// (elements/required/excluded), but only an Element also carries its own
// pattern, refers list, and per-occurrence constraints beyond the schema's.
// Choice-group membership lives on the child Elements themselves (the
// group's `[x]` placeholder element lists the variant names in its Choices
// field), so it is read directly from elements rather than duplicated onto
// level.
type level struct {
	schemaURL  string
	typeName   string
	elements   map[string]*schema.Element
	required   map[string]bool
	excluded   map[string]bool
	constraint map[string]schema.Constraint
	pattern    any
	refers     []string
}

func levelFromSchema(sc *schema.Schema) level {
	return level{
		schemaURL:  sc.URL,
		typeName:   sc.Type,
		elements:   sc.Elements,
		required:   sc.Required,
		excluded:   sc.Excluded,
		constraint: sc.Constraint,
	}
}

func levelFromElement(schemaURL string, el *schema.Element) level {
	return level{
		schemaURL:  schemaURL,
		typeName:   el.Type,
		elements:   el.Elements,
		required:   el.Required,
		excluded:   el.Excluded,
		constraint: el.Constraint,
		pattern:    el.Pattern,
		refers:     el.Refers,
	}
}

// runContext carries the state threaded through one top-level Validate call:
// the ambient schemata set (so element boundaries can keep widening it and
// share resolver misses), the constraint engine's %resource/%rootResource
// values, and the strict/skip flags.
type runContext struct {
	ctx        context.Context
	set        *schemata.Set
	resource   []byte
	root       []byte
	strict     bool
	skippedMsg bool
}

// Validate decodes raw and validates it against the schemas resolved from
// seedURLs (widened per §4.5), returning a pooled Result the caller must
// Release. Equivalent to ValidateContext(context.Background(), raw, seedURLs).
func (v *Validator) Validate(raw []byte, seedURLs []string) *fschema.Result {
	return v.ValidateContext(context.Background(), raw, seedURLs)
}

// ValidateContext is Validate with a caller-supplied context; element
// descent (step 8) checks it for cancellation between properties so a
// deadline can abort a deeply nested value without walking it to completion.
func (v *Validator) ValidateContext(ctx context.Context, raw []byte, seedURLs []string) *fschema.Result {
	start := time.Now()
	res := fschema.AcquireResult()

	value, err := variant.Decode(raw)
	if err != nil {
		res.AddIssue(fschema.NewIssue(fschema.UnknownKeyword).Message("could not decode value: " + err.Error()).Build())
		v.recordValidation(res, start)
		return res
	}

	set := v.collector.Collect(raw, seedURLs, "")
	res.AddIssues(set.Issues)

	levels := make([]level, 0, len(set.Schemas))
	for _, sc := range set.Schemas {
		levels = append(levels, levelFromSchema(sc))
	}

	rc := &runContext{
		ctx:      ctx,
		set:      set,
		resource: raw,
		root:     raw,
		strict:   v.opts.StrictMode || v.opts.ValidateUnknownElements,
	}

	v.validateLevels(res, rc, value, "", levels, 0)
	v.recordValidation(res, start)
	return res
}

func (v *Validator) recordValidation(res *fschema.Result, start time.Time) {
	if v.metrics == nil {
		return
	}
	v.metrics.RecordValidation(time.Since(start), res.Valid)
	for _, issue := range res.Issues {
		v.metrics.RecordIssue(issue.Severity)
	}
}

func (v *Validator) validateLevels(res *fschema.Result, rc *runContext, value variant.Value, valuePath string, levels []level, depth int) {
	select {
	case <-rc.ctx.Done():
		return
	default:
	}
	if depth > v.opts.MaxDepth {
		return
	}

	v.checkType(res, value, valuePath, levels)
	v.checkRequired(res, value, valuePath, levels)
	v.checkExcluded(res, value, valuePath, levels)
	v.checkPattern(res, value, valuePath, levels)
	v.checkChoice(res, value, valuePath, levels)
	v.checkReferenceTargets(res, value, valuePath, levels)
	if v.opts.ValidateConstraints {
		v.checkConstraints(res, rc, value, valuePath, levels)
	}
	v.descend(res, rc, value, valuePath, levels, depth)
}

// checkType is step 2: verify the value's shape/format matches every
// declared type across the applicable levels.
func (v *Validator) checkType(res *fschema.Result, value variant.Value, valuePath string, levels []level) {
	seen := map[string]bool{}
	for _, lv := range levels {
		if lv.typeName == "" || seen[lv.typeName] {
			continue
		}
		seen[lv.typeName] = true
		if isPrimitiveType(lv.typeName) {
			if !matchesPrimitive(lv.typeName, value) {
				res.AddIssue(fschema.NewIssue(fschema.TypeMismatch).
					At(valuePath).AtSchema(lv.schemaURL).
					Message("value does not match primitive type " + lv.typeName).
					With("type", lv.typeName).
					With("expected", lv.typeName).With("actual", value.Kind().String()).Build())
			}
			continue
		}
		if value.Kind() != variant.Object && value.Kind() != variant.Null {
			res.AddIssue(fschema.NewIssue(fschema.TypeMismatch).
				At(valuePath).AtSchema(lv.schemaURL).
				Message("expected an object for type " + lv.typeName).
				With("type", lv.typeName).
				With("expected", lv.typeName).With("actual", value.Kind().String()).Build())
		}
	}
}

func matchesPrimitive(typeName string, value variant.Value) bool {
	if typeName == "boolean" {
		_, ok := value.Bool()
		return ok
	}
	if typeName == "decimal" {
		n, ok := value.Number()
		if !ok {
			return false
		}
		if !matchesPrimitiveFormat(typeName, n.String()) {
			return false
		}
		_, err := parseDecimal(n.String())
		return err == nil
	}
	if n, ok := value.Number(); ok {
		return matchesPrimitiveFormat(typeName, n.String())
	}
	s, ok := value.String()
	if !ok {
		return false
	}
	return matchesPrimitiveFormat(typeName, s)
}

// checkRequired is step 3.
func (v *Validator) checkRequired(res *fschema.Result, value variant.Value, valuePath string, levels []level) {
	if value.Kind() != variant.Object {
		return
	}
	names := unionNames(levels, func(lv level) map[string]bool { return lv.required })
	for _, name := range sortedKeys(names) {
		f, ok := value.Field(name)
		if ok && f.Kind() != variant.Null {
			continue
		}
		if companion, ok := value.Field("_" + name); ok && companion.Kind() != variant.Null {
			continue
		}
		res.AddIssue(fschema.NewIssue(fschema.RequiredMissing).
			At(path.WithField(valuePath, name)).Message("required element is missing").Build())
	}
}

// checkExcluded is step 4.
func (v *Validator) checkExcluded(res *fschema.Result, value variant.Value, valuePath string, levels []level) {
	if value.Kind() != variant.Object {
		return
	}
	names := unionNames(levels, func(lv level) map[string]bool { return lv.excluded })
	for _, name := range sortedKeys(names) {
		if _, ok := value.Field(name); ok {
			res.AddIssue(fschema.NewIssue(fschema.ExcludedPresent).
				At(path.WithField(valuePath, name)).Message("excluded element is present").Build())
		}
	}
}

// checkPattern is step 5.
func (v *Validator) checkPattern(res *fschema.Result, value variant.Value, valuePath string, levels []level) {
	for _, lv := range levels {
		if lv.pattern == nil {
			continue
		}
		if !matchesPattern(lv.pattern, value) {
			res.AddIssue(fschema.NewIssue(fschema.PatternMismatch).
				At(valuePath).AtSchema(lv.schemaURL).Message("value does not match declared pattern").Build())
		}
	}
}

// checkChoice is step 6: among this object's own child elements (not the
// value itself), group the ones sharing a Choices list and flag any group
// with more than one member present.
func (v *Validator) checkChoice(res *fschema.Result, value variant.Value, valuePath string, levels []level) {
	if value.Kind() != variant.Object {
		return
	}
	groups := map[string][]string{}
	groupPlaceholder := map[string]string{}
	for _, lv := range levels {
		for name, el := range lv.elements {
			if len(el.Choices) == 0 {
				continue
			}
			key := strings.Join(el.Choices, "|")
			if _, ok := groups[key]; !ok {
				groups[key] = el.Choices
			}
			// Report at the group's `[x]` placeholder name, whichever
			// member of the group carries the Choices list.
			placeholder := name
			if el.ChoiceOf != "" {
				placeholder = el.ChoiceOf
			}
			if !strings.HasSuffix(placeholder, "[x]") {
				placeholder += "[x]"
			}
			groupPlaceholder[key] = placeholder
		}
	}
	for key, members := range groups {
		present := 0
		for _, name := range members {
			if f, ok := value.Field(name); ok && f.Kind() != variant.Null {
				present++
			}
		}
		if present > 1 {
			groupPath := path.WithField(valuePath, groupPlaceholder[key])
			res.AddIssue(fschema.NewIssue(fschema.ChoiceMultiple).At(groupPath).
				Message("more than one choice-type variant present").Build())
		}
	}
}

// checkReferenceTargets validates a Reference-typed value's target against
// the `refers` types declared for the element, when the target's type can be
// determined from the value itself (a typed reference's `type`, an inline
// resource's `resourceType`, or the leading segment of a literal `reference`
// string). A reference that cannot be resolved to a type locally (e.g. a
// bare URN or absolute URL) is not flagged.
func (v *Validator) checkReferenceTargets(res *fschema.Result, value variant.Value, valuePath string, levels []level) {
	if value.Kind() != variant.Object {
		return
	}
	for _, lv := range levels {
		if len(lv.refers) == 0 {
			continue
		}
		targetType, ok := referenceTargetType(value)
		if !ok {
			continue
		}
		if !containsString(lv.refers, targetType) {
			res.AddIssue(fschema.NewIssue(fschema.ReferenceTargetInvalid).
				At(valuePath).AtSchema(lv.schemaURL).
				Message("reference target type \"" + targetType + "\" is not one of the allowed types").
				With("allowed", lv.refers).With("actual", targetType).Build())
		}
	}
}

func referenceTargetType(value variant.Value) (string, bool) {
	if t, ok := value.Field("type"); ok {
		if s, ok := t.String(); ok && s != "" {
			return s, true
		}
	}
	if rt, ok := value.Field("resourceType"); ok {
		if s, ok := rt.String(); ok && s != "" {
			return s, true
		}
	}
	if ref, ok := value.Field("reference"); ok {
		if s, ok := ref.String(); ok {
			if idx := strings.IndexByte(s, '/'); idx > 0 {
				return s[:idx], true
			}
		}
	}
	return "", false
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// checkConstraints is step 7.
func (v *Validator) checkConstraints(res *fschema.Result, rc *runContext, value variant.Value, valuePath string, levels []level) {
	combined := map[string]schema.Constraint{}
	var order []string
	for _, lv := range levels {
		for key, c := range lv.constraint {
			if _, ok := combined[key]; !ok {
				order = append(order, key)
			}
			combined[key] = c
		}
	}
	if len(order) == 0 {
		return
	}
	body, err := value.Encode()
	if err != nil {
		return
	}
	sort.Strings(order)
	for _, key := range order {
		c := combined[key]
		ok, err := v.engine.Evaluate(rc.ctx, c.Expression, body)
		if err != nil {
			if errors.Is(err, constraint.ErrNoEngine) {
				if !rc.skippedMsg {
					res.AddIssue(fschema.NewIssue(fschema.ConstraintsSkipped).At(valuePath).
						Message("constraint evaluation unavailable").Build())
					rc.skippedMsg = true
				}
			} else {
				res.AddIssue(fschema.NewIssue(fschema.ConstraintError).At(valuePath).
					Message(err.Error()).With("constraint", key).Build())
			}
			continue
		}
		if !ok {
			res.AddIssue(fschema.NewIssue(fschema.ConstraintViolated).
				Severity(toIssueSeverity(c.Severity)).
				At(valuePath).Message(c.Human).With("constraint", key).With("expression", c.Expression).Build())
		}
	}
}

func toIssueSeverity(s schema.Severity) fschema.Severity {
	switch s {
	case schema.SeverityWarning:
		return fschema.SeverityWarning
	case schema.SeverityInformation:
		return fschema.SeverityInformation
	default:
		return fschema.SeverityError
	}
}

// descend is step 8: structural recursion over an object's properties.
func (v *Validator) descend(res *fschema.Result, rc *runContext, value variant.Value, valuePath string, levels []level, depth int) {
	if value.Kind() != variant.Object {
		return
	}
	for _, key := range value.Keys() {
		if strings.HasPrefix(key, "_") {
			v.descendCompanion(res, rc, value, valuePath, key, depth)
			continue
		}
		fieldValue, _ := value.Field(key)

		elList, schemaURLs := collectElements(levels, key)
		if len(elList) == 0 {
			if rc.strict {
				res.AddIssue(fschema.NewIssue(fschema.UnknownElement).
					At(path.WithField(valuePath, key)).Message("element not declared by any applicable schema").Build())
			}
			continue
		}

		anyArray, allScalar := arrayExpectation(elList)
		isArray := fieldValue.Kind() == variant.Array
		fieldPath := path.WithField(valuePath, key)

		if anyArray && !isArray {
			res.AddIssue(fschema.NewIssue(fschema.ExpectedArray).At(fieldPath).Build())
			continue
		}
		if allScalar && isArray {
			res.AddIssue(fschema.NewIssue(fschema.UnexpectedArray).At(fieldPath).Build())
			continue
		}

		childLevels := v.resolveElementLevels(rc, elList, schemaURLs, fieldPath)

		if isArray {
			companion, hasCompanion := value.Field("_" + key)
			hasCompanion = hasCompanion && companion.Kind() == variant.Array
			v.descendArray(res, rc, fieldValue, fieldPath, elList, childLevels, depth, companion, hasCompanion)
			continue
		}
		v.validateLevels(res, rc, fieldValue, fieldPath, childLevels, depth+1)
	}
}

// descendCompanion validates a "_name" primitive-companion sibling (§4.6
// step 8) against the base Element type's body, so its id/extension shape is
// checked the same way any other value is.
func (v *Validator) descendCompanion(res *fschema.Result, rc *runContext, value variant.Value, valuePath, key string, depth int) {
	fieldValue, ok := value.Field(key)
	if !ok || fieldValue.Kind() == variant.Null {
		return
	}
	fieldPath := path.WithField(valuePath, key)

	before := len(rc.set.Schemas)
	v.collector.ForType(rc.set, "Element", fieldPath)
	var companionLevels []level
	for _, sc := range rc.set.Schemas[before:] {
		companionLevels = append(companionLevels, levelFromSchema(sc))
	}

	if fieldValue.Kind() == variant.Array {
		v.descendArray(res, rc, fieldValue, fieldPath, nil, companionLevels, depth, variant.Value{}, false)
		return
	}
	v.validateLevels(res, rc, fieldValue, fieldPath, companionLevels, depth+1)
}

// descendArray validates each item of an array-valued element. When the
// sibling "_name" companion array is given, a null item whose companion at
// the same index is non-null is skipped (§4.6 step 8): the value carries no
// primitive but its id/extension are still recorded via the companion,
// which descendCompanion validates separately.
func (v *Validator) descendArray(res *fschema.Result, rc *runContext, arrayValue variant.Value, fieldPath string, elList []*schema.Element, childLevels []level, depth int, companion variant.Value, hasCompanion bool) {
	items, _ := arrayValue.Items()
	var companionItems []variant.Value
	if hasCompanion {
		companionItems, _ = companion.Items()
	}

	for _, el := range elList {
		if el.Min > 0 && len(items) < el.Min {
			res.AddIssue(fschema.NewIssue(fschema.CardinalityViolation).At(fieldPath).
				Message("too few occurrences").With("min", el.Min).With("count", len(items)).Build())
		}
		if el.Max != schema.Unbounded && len(items) > el.Max {
			res.AddIssue(fschema.NewIssue(fschema.CardinalityViolation).At(fieldPath).
				Message("too many occurrences").With("max", el.Max).With("count", len(items)).Build())
		}
	}

	var sl *schema.Slicing
	for _, el := range elList {
		if el.Slicing != nil {
			sl = el.Slicing
			break
		}
	}

	var assignments []slicing.Assignment
	if sl != nil {
		var issues []fschema.Issue
		assignments, issues = v.slicer.Evaluate(items, sl, fieldPath)
		res.AddIssues(issues)
	}

	isExtensionSlot := false
	for _, el := range elList {
		if el.Type == "Extension" {
			isExtensionSlot = true
			break
		}
	}

	for i, item := range items {
		if item.Kind() == variant.Null && i < len(companionItems) && companionItems[i].Kind() != variant.Null {
			continue
		}
		itemPath := path.WithIndex(fieldPath, i)
		itemLevels := childLevels
		if assignments != nil && i < len(assignments) && assignments[i].SliceName != "" && sl.Slices[assignments[i].SliceName] != nil {
			if slEl := sl.Slices[assignments[i].SliceName].Schema; slEl != nil {
				itemLevels = append(append([]level{}, childLevels...), levelFromElement(fieldPath, slEl))
			}
		}
		if isExtensionSlot {
			if url, ok := item.Field("url"); ok {
				if urlStr, ok := url.String(); ok && urlStr != "" {
					before := len(rc.set.Schemas)
					v.collector.ForExtension(rc.set, urlStr, itemPath)
					for _, sc := range rc.set.Schemas[before:] {
						itemLevels = append(append([]level{}, itemLevels...), levelFromSchema(sc))
					}
				}
			}
		}
		v.validateLevels(res, rc, item, itemPath, itemLevels, depth+1)
	}
}

// resolveElementLevels turns the combined Element definitions for one
// property into the levels its value should be validated against: primitive
// and backbone elements contribute directly, elements naming a complex type
// resolve that type's schema via C5 (widening the shared schemata set).
func (v *Validator) resolveElementLevels(rc *runContext, elList []*schema.Element, schemaURLs []string, fieldPath string) []level {
	var levels []level
	for i, el := range elList {
		schemaURL := schemaURLs[i]
		switch {
		case el.Type != "" && isPrimitiveType(el.Type):
			levels = append(levels, level{schemaURL: schemaURL, typeName: el.Type, pattern: el.Pattern, constraint: el.Constraint, refers: el.Refers})
		case el.Type != "":
			before := len(rc.set.Schemas)
			v.collector.ForType(rc.set, el.Type, fieldPath)
			for _, sc := range rc.set.Schemas[before:] {
				levels = append(levels, levelFromSchema(sc))
			}
			// The element's own pattern/constraint/refers still apply
			// alongside the resolved type's body.
			levels = append(levels, level{schemaURL: schemaURL, pattern: el.Pattern, constraint: el.Constraint, refers: el.Refers})
		case el.ElementReference != "":
			if target := resolveContentReference(rc.set, schemaURL, el.ElementReference); target != nil {
				levels = append(levels, levelFromElement(schemaURL, target))
			} else {
				levels = append(levels, levelFromElement(schemaURL, el))
			}
		default:
			levels = append(levels, levelFromElement(schemaURL, el))
		}
		if len(el.Refers) > 0 {
			v.collector.ForRefers(rc.set, el.Refers, fieldPath)
		}
	}
	return levels
}

// resolveContentReference resolves an element's ElementReference (§3's
// content-reference, populated from a differential's contentReference) by
// walking the dotted path within the same root schema's Elements tree. This
// is a deliberate simplification of FHIR's general content-reference rule,
// which can in principle name any element in the same StructureDefinition;
// restricting resolution to the schema the referencing element itself
// belongs to matches every contentReference actually produced by the
// converter, which always targets the same root type.
func resolveContentReference(set *schemata.Set, schemaURL, ref string) *schema.Element {
	var root *schema.Schema
	for _, sc := range set.Schemas {
		if sc.URL == schemaURL {
			root = sc
			break
		}
	}
	if root == nil {
		return nil
	}
	parts := path.Split(ref)
	if len(parts) > 0 && parts[0] == root.Type {
		parts = parts[1:]
	}
	elements := root.Elements
	var el *schema.Element
	for _, p := range parts {
		if elements == nil {
			return nil
		}
		next, ok := elements[p]
		if !ok {
			return nil
		}
		el = next
		elements = next.Elements
	}
	return el
}

func collectElements(levels []level, name string) ([]*schema.Element, []string) {
	var els []*schema.Element
	var urls []string
	for _, lv := range levels {
		if lv.elements == nil {
			continue
		}
		if el, ok := lv.elements[name]; ok {
			els = append(els, el)
			urls = append(urls, lv.schemaURL)
		}
	}
	return els, urls
}

func arrayExpectation(elList []*schema.Element) (anyArray, allScalar bool) {
	allScalar = true
	for _, el := range elList {
		if el.Array {
			anyArray = true
			allScalar = false
		}
	}
	return anyArray, allScalar
}

func unionNames(levels []level, pick func(level) map[string]bool) map[string]bool {
	out := map[string]bool{}
	for _, lv := range levels {
		for name := range pick(lv) {
			out[name] = true
		}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
