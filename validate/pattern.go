package validate

import (
	"github.com/gofhir/fschema/variant"
)

// matchesPattern implements the structural subset match from §4.6 step 5:
// an object matches if every pattern field is present with a matching
// value; an array matches if every pattern item is present at the same
// index with a matching value; scalars match by equality (numbers compared
// as decimals so "1.0" and "1" are recognized as the same value here, in
// contrast to the lexical-precision rule applied to decimal primitives
// themselves).
func matchesPattern(pattern any, value variant.Value) bool {
	return matchValue(variant.FromAny(pattern), value)
}

func matchValue(pattern, value variant.Value) bool {
	switch pattern.Kind() {
	case variant.Null:
		return value.Kind() == variant.Null
	case variant.Bool:
		pb, _ := pattern.Bool()
		vb, ok := value.Bool()
		return ok && pb == vb
	case variant.Number:
		pn, _ := pattern.Number()
		vn, ok := value.Number()
		if !ok {
			return false
		}
		pd, err1 := parseDecimal(pn.String())
		vd, err2 := parseDecimal(vn.String())
		if err1 != nil || err2 != nil {
			return pn.String() == vn.String()
		}
		return pd.Equal(vd)
	case variant.String:
		ps, _ := pattern.String()
		vs, ok := value.String()
		return ok && ps == vs
	case variant.Array:
		pitems, _ := pattern.Items()
		vitems, ok := value.Items()
		if !ok || len(vitems) < len(pitems) {
			return false
		}
		for i, p := range pitems {
			if !matchValue(p, vitems[i]) {
				return false
			}
		}
		return true
	case variant.Object:
		if value.Kind() != variant.Object {
			return false
		}
		for _, k := range pattern.Keys() {
			pf, _ := pattern.Field(k)
			vf, ok := value.Field(k)
			if !ok || !matchValue(pf, vf) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
