package schema

import (
	"errors"
	"testing"
)

func TestDeriveClass(t *testing.T) {
	cases := []struct {
		kind       Kind
		derivation Derivation
		typeName   string
		want       Class
	}{
		{KindResource, DerivationConstraint, "Patient", ClassProfile},
		{KindResource, DerivationSpecialization, "Patient", ClassResource},
		{KindComplexType, DerivationSpecialization, "Extension", ClassExtension},
		{KindComplexType, DerivationSpecialization, "HumanName", ClassType},
		{KindLogical, DerivationSpecialization, "Anything", ClassLogical},
	}
	for _, c := range cases {
		if got := DeriveClass(c.kind, c.derivation, c.typeName); got != c.want {
			t.Errorf("DeriveClass(%v,%v,%v) = %v, want %v", c.kind, c.derivation, c.typeName, got, c.want)
		}
	}
}

func TestParseSerializeRoundTrip(t *testing.T) {
	doc := `{
		"url": "http://example.org/Patient",
		"name": "Patient",
		"type": "Patient",
		"kind": "resource",
		"class": "resource",
		"derivation": "specialization",
		"abstract": false,
		"elements": {
			"active": {"array": false, "min": 0, "max": 1, "type": "boolean"}
		},
		"required": ["active"]
	}`
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Elements["active"].Type != "boolean" {
		t.Fatalf("unexpected element: %+v", s.Elements["active"])
	}
	out, err := s.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	s2, err := Parse(out)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if s2.URL != s.URL || s2.Elements["active"].Min != 0 {
		t.Fatalf("round trip mismatch: %+v", s2)
	}
}

func TestUnknownKeywordRejected(t *testing.T) {
	_, err := Parse([]byte(`{"url":"x","bogusField":1}`))
	if err == nil {
		t.Fatal("expected UnknownKeyword error")
	}
	var uk *ErrUnknownKeyword
	if !errors.As(err, &uk) {
		t.Fatalf("expected ErrUnknownKeyword, got %v", err)
	}
}

func TestMissingVsEmptyElements(t *testing.T) {
	noElements, _ := Parse([]byte(`{"url":"x","kind":"primitive-type","type":"boolean"}`))
	if noElements.Elements != nil {
		t.Fatal("expected nil elements for header-only schema")
	}
	emptyElements, _ := Parse([]byte(`{"url":"x","kind":"resource","type":"Thing","elements":{}}`))
	if emptyElements.Elements == nil || len(emptyElements.Elements) != 0 {
		t.Fatal("expected non-nil empty elements map")
	}
}
