package validate

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// primitivePattern holds the lexical rule for one FHIR primitive type
// (§4.6's "primitive format table"). Types validated numerically (decimal,
// integer, positiveInt, unsignedInt) also get a regex for the textual shape,
// since a value like "1.0" and "1.00" are lexically distinct even though
// numerically equal.
var primitivePattern = map[string]*regexp.Regexp{
	"integer":        regexp.MustCompile(`^-?[0-9]+$`),
	"positiveInt":    regexp.MustCompile(`^[1-9][0-9]*$`),
	"unsignedInt":    regexp.MustCompile(`^[0-9]+$`),
	"decimal":        regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`),
	"string":         regexp.MustCompile(`^[\s\S]*$`),
	"markdown":       regexp.MustCompile(`^[\s\S]*$`),
	"code":           regexp.MustCompile(`^[^\s]+(\s[^\s]+)*$`),
	"id":             regexp.MustCompile(`^[A-Za-z0-9\-.]{1,64}$`),
	"uri":            regexp.MustCompile(`^\S*$`),
	"url":            regexp.MustCompile(`^\S*$`),
	"canonical":      regexp.MustCompile(`^\S*$`),
	"oid":            regexp.MustCompile(`^urn:oid:[0-2](\.(0|[1-9][0-9]*))+$`),
	"uuid":           regexp.MustCompile(`^urn:uuid:[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`),
	"date":           regexp.MustCompile(`^[0-9]{4}(-[0-9]{2}(-[0-9]{2})?)?$`),
	"dateTime":       regexp.MustCompile(`^[0-9]{4}(-[0-9]{2}(-[0-9]{2}(T[0-9]{2}:[0-9]{2}:[0-9]{2}(\.[0-9]+)?(Z|[+-][0-9]{2}:[0-9]{2}))?)?)?$`),
	"time":           regexp.MustCompile(`^[0-9]{2}:[0-9]{2}:[0-9]{2}(\.[0-9]+)?$`),
	"instant":        regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9]{2}(\.[0-9]+)?(Z|[+-][0-9]{2}:[0-9]{2})$`),
	"base64Binary":   regexp.MustCompile(`^([0-9a-zA-Z+/=]{4})*$`),
}

// isPrimitiveType reports whether typeName is one this table governs;
// complex types (HumanName, CodeableConcept, ...) are not in the table and
// are validated by requiring an object instead.
func isPrimitiveType(typeName string) bool {
	_, ok := primitivePattern[typeName]
	return ok || typeName == "boolean"
}

// matchesPrimitiveFormat checks a primitive's textual literal against its
// lexical rule. boolean is handled by the caller directly against the
// variant kind rather than a string pattern.
func matchesPrimitiveFormat(typeName, literal string) bool {
	re, ok := primitivePattern[typeName]
	if !ok {
		return true
	}
	return re.MatchString(literal)
}

// parseDecimal parses a decimal literal with shopspring/decimal so exponent
// form and trailing zeros are preserved rather than collapsed through
// float64 (§4.6's decimal precision requirement).
func parseDecimal(literal string) (decimal.Decimal, error) {
	return decimal.NewFromString(literal)
}
