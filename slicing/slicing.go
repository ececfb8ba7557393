// Package slicing implements the discriminator-based array-slicing
// evaluator (C7): computing, for each item of a sliced array, which
// declared slice it belongs to, and reporting the cardinality and
// ordering issues that follow from that assignment.
package slicing

import (
	"strconv"

	"github.com/gofhir/fschema"
	"github.com/gofhir/fschema/path"
	"github.com/gofhir/fschema/schema"
	"github.com/gofhir/fschema/variant"
)

// Evaluator runs the algorithm in §4.7. It is stateless.
type Evaluator struct{}

// New creates an Evaluator.
func New() *Evaluator {
	return &Evaluator{}
}

// Assignment records, per array index, which slice (if any) the item
// matched.
type Assignment struct {
	SliceName string // "" if unmatched
	Ambiguous bool
}

// Evaluate assigns each item to a slice (or none) and reports the issues
// that follow: unmatched items under closed/openAtEnd rules, ambiguous
// matches, per-slice cardinality violations, and (when the slicing is
// declared ordered) out-of-order slice occurrences.
func (e *Evaluator) Evaluate(items []variant.Value, sl *schema.Slicing, basePath string) ([]Assignment, []fschema.Issue) {
	assignments := make([]Assignment, len(items))
	var issues []fschema.Issue

	counts := map[string]int{}
	lastMatchedIndex := -1

	for i, item := range items {
		tuple := discriminate(item, sl.Discriminator)
		matched := ""
		ambiguous := false
		for _, name := range sl.SliceOrder {
			s := sl.Slices[name]
			if s == nil {
				continue
			}
			if matches(tuple, s) {
				if matched == "" {
					matched = name
				} else {
					ambiguous = true
				}
			}
		}
		assignments[i] = Assignment{SliceName: matched, Ambiguous: ambiguous}
		if matched != "" {
			lastMatchedIndex = i
		}
	}

	for i := range items {
		a := assignments[i]
		itemPath := path.WithIndex(basePath, i)

		if a.Ambiguous {
			issues = append(issues, fschema.NewIssue(fschema.SlicingAmbiguous).At(itemPath).Build())
		}

		if a.SliceName == "" {
			switch sl.Rules {
			case schema.RulesClosed:
				issues = append(issues, fschema.NewIssue(fschema.SlicingUnmatched).At(itemPath).Build())
			case schema.RulesOpenAtEnd:
				if i < lastMatchedIndex {
					// An unmatched item that precedes a later match violates
					// openAtEnd, which only tolerates unmatched items trailing
					// after every matched one.
					issues = append(issues, fschema.NewIssue(fschema.SlicingUnmatched).At(itemPath).
						Message("unmatched item does not appear at the end of an openAtEnd slicing").Build())
				}
			}
			continue
		}
		counts[a.SliceName]++
		if sl.Ordered {
			idx := sliceOrderIndex(sl.SliceOrder, a.SliceName)
			if idx < lastSliceOrderIndex(sl.SliceOrder, assignments[:i]) {
				issues = append(issues, fschema.NewIssue(fschema.SlicingUnmatched).At(itemPath).
					Message("slice \""+a.SliceName+"\" appears out of declared order").Build())
			}
		}
	}

	for _, name := range sl.SliceOrder {
		s := sl.Slices[name]
		if s == nil {
			continue
		}
		n := counts[name]
		if n < s.Min || (s.Max != schema.Unbounded && n > s.Max) {
			issues = append(issues, fschema.NewIssue(fschema.SliceCardinality).At(basePath).
				Message("slice \""+name+"\" count "+strconv.Itoa(n)+" outside declared cardinality").
				With("slice", name).With("count", n).With("min", s.Min).With("max", s.Max).Build())
		}
	}

	return assignments, issues
}

func sliceOrderIndex(order []string, name string) int {
	for i, n := range order {
		if n == name {
			return i
		}
	}
	return -1
}

func lastSliceOrderIndex(order []string, prior []Assignment) int {
	best := -1
	for _, a := range prior {
		if a.SliceName == "" {
			continue
		}
		if idx := sliceOrderIndex(order, a.SliceName); idx > best {
			best = idx
		}
	}
	return best
}

// discriminate computes the tuple of observed discriminator values for one
// array item, per §4.7 step 1.
func discriminate(item variant.Value, discriminators []schema.Discriminator) []any {
	tuple := make([]any, len(discriminators))
	for i, d := range discriminators {
		switch d.Kind {
		case schema.DiscriminatorValue, schema.DiscriminatorPattern:
			v, ok := item.Path(path.Split(d.Path)...)
			if ok {
				tuple[i] = v
			}
		case schema.DiscriminatorType:
			tuple[i] = detectedType(item)
		case schema.DiscriminatorProfile:
			profiles, _ := item.Path("meta", "profile")
			tuple[i] = profiles
		case schema.DiscriminatorExists:
			_, ok := item.Path(path.Split(d.Path)...)
			tuple[i] = ok
		}
	}
	return tuple
}

func detectedType(item variant.Value) string {
	if rt, ok := item.Field("resourceType"); ok {
		if s, ok := rt.String(); ok {
			return s
		}
	}
	return item.Kind().String()
}

// matches compares a discriminated tuple against a slice's recorded match
// entries, per §4.7 step 2.
func matches(tuple []any, s *schema.Slice) bool {
	if len(s.Match) == 0 {
		return false
	}
	for i, m := range s.Match {
		if i >= len(tuple) {
			return false
		}
		if !matchesOne(m, tuple[i]) {
			return false
		}
	}
	return true
}

func matchesOne(m schema.MatchEntry, observed any) bool {
	switch m.Kind {
	case schema.DiscriminatorExists:
		want, _ := m.Value.(bool)
		got, _ := observed.(bool)
		return want == got
	case schema.DiscriminatorType:
		want, _ := m.Value.(string)
		got, _ := observed.(string)
		return want == got
	case schema.DiscriminatorProfile:
		v, ok := observed.(variant.Value)
		if !ok {
			return false
		}
		items, ok := v.Items()
		if !ok {
			return false
		}
		wantURL, _ := m.Value.(string)
		for _, it := range items {
			if u, ok := it.String(); ok && u == wantURL {
				return true
			}
		}
		return false
	case schema.DiscriminatorPattern:
		v, ok := observed.(variant.Value)
		if !ok {
			return false
		}
		return patternSubset(m.Value, v)
	default: // value
		v, ok := observed.(variant.Value)
		if !ok {
			return false
		}
		return valueEquals(m.Value, v)
	}
}

// patternSubset and valueEquals defer to the same structural comparison the
// element validator uses for `pattern` fields; duplicated here in miniature
// (string/number/bool leaf compare) to avoid an import cycle with package
// validate, which itself depends on slice-augmented schemata.
func patternSubset(pattern any, v variant.Value) bool {
	pv := variant.FromAny(pattern)
	if pv.Kind() != variant.Object || v.Kind() != variant.Object {
		return valueEquals(pattern, v)
	}
	for _, k := range pv.Keys() {
		pf, _ := pv.Field(k)
		vf, ok := v.Field(k)
		if !ok || !patternSubset(pf, vf) {
			return false
		}
	}
	return true
}

func valueEquals(pattern any, v variant.Value) bool {
	pv := variant.FromAny(pattern)
	if pv.Kind() != v.Kind() {
		return false
	}
	switch pv.Kind() {
	case variant.String:
		a, _ := pv.String()
		b, _ := v.String()
		return a == b
	case variant.Bool:
		a, _ := pv.Bool()
		b, _ := v.Bool()
		return a == b
	case variant.Number:
		a, _ := pv.Number()
		b, _ := v.Number()
		return a.String() == b.String()
	default:
		return false
	}
}
