package convert

import (
	"testing"

	"github.com/gofhir/fschema"
)

const patientChoiceSD = `{
  "resourceType": "StructureDefinition",
  "url": "http://hl7.org/fhir/StructureDefinition/Patient",
  "name": "Patient",
  "type": "Patient",
  "kind": "resource",
  "derivation": "specialization",
  "differential": {
    "element": [
      {"path": "Patient", "min": 0, "max": "1"},
      {"path": "Patient.deceased[x]", "min": 0, "max": "1", "type": [
        {"code": "boolean"}, {"code": "dateTime"}
      ]},
      {"path": "Patient.gender", "min": 0, "max": "1", "type": [{"code": "code"}]}
    ]
  }
}`

func TestConvertChoiceExpansion(t *testing.T) {
	c := New()
	s, err := c.Convert([]byte(patientChoiceSD))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if s.Elements == nil {
		t.Fatal("expected elements")
	}
	if _, ok := s.Elements["deceasedBoolean"]; !ok {
		t.Fatal("missing deceasedBoolean")
	}
	if _, ok := s.Elements["deceasedDateTime"]; !ok {
		t.Fatal("missing deceasedDateTime")
	}
	base, ok := s.Elements["deceased[x]"]
	if !ok {
		t.Fatal("missing deceased[x] placeholder")
	}
	if len(base.Choices) != 2 {
		t.Fatalf("expected 2 choices, got %v", base.Choices)
	}
	if s.Elements["deceasedBoolean"].ChoiceOf != "deceased[x]" {
		t.Fatalf("expected choiceOf deceased[x], got %q", s.Elements["deceasedBoolean"].ChoiceOf)
	}
	if s.Elements["gender"].Type != "code" {
		t.Fatalf("gender type = %q", s.Elements["gender"].Type)
	}
}

const backboneSD = `{
  "resourceType": "StructureDefinition",
  "url": "http://hl7.org/fhir/StructureDefinition/Patient",
  "name": "Patient",
  "type": "Patient",
  "kind": "resource",
  "derivation": "specialization",
  "differential": {
    "element": [
      {"path": "Patient.contact", "min": 0, "max": "*"},
      {"path": "Patient.contact.name", "min": 1, "max": "1", "type": [{"code": "HumanName"}]},
      {"path": "Patient.contact.telecom", "min": 0, "max": "*", "type": [{"code": "ContactPoint"}]}
    ]
  }
}`

func TestConvertBackboneNesting(t *testing.T) {
	c := New()
	s, err := c.Convert([]byte(backboneSD))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	contact, ok := s.Elements["contact"]
	if !ok {
		t.Fatal("missing contact")
	}
	if !contact.Array {
		t.Fatal("expected contact to be array (max=*)")
	}
	name, ok := contact.Elements["name"]
	if !ok {
		t.Fatal("missing contact.name")
	}
	if name.Min != 1 {
		t.Fatalf("expected min=1, got %d", name.Min)
	}
	if !contact.Required["name"] {
		t.Fatal("expected contact.name to be required")
	}
	if _, ok := contact.Elements["telecom"]; !ok {
		t.Fatal("missing contact.telecom")
	}
}

const slicedSD = `{
  "resourceType": "StructureDefinition",
  "url": "http://example.org/StructureDefinition/us-core-patient",
  "name": "USCorePatient",
  "type": "Patient",
  "kind": "resource",
  "derivation": "constraint",
  "differential": {
    "element": [
      {"path": "Patient.identifier", "min": 0, "max": "*", "slicing": {
        "discriminator": [{"type": "value", "path": "system"}],
        "rules": "closed"
      }},
      {"path": "Patient.identifier:MRN", "sliceName": "MRN", "min": 0, "max": "1"},
      {"path": "Patient.identifier:MRN.system", "min": 1, "max": "1", "type": [{"code": "uri"}],
        "patternUri": "http://hospital/mrn"}
    ]
  }
}`

func TestConvertSlicing(t *testing.T) {
	c := New()
	s, err := c.Convert([]byte(slicedSD))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	ident, ok := s.Elements["identifier"]
	if !ok || ident.Slicing == nil {
		t.Fatalf("expected identifier slicing, got %+v", ident)
	}
	if ident.Slicing.Rules != "closed" {
		t.Fatalf("rules = %v", ident.Slicing.Rules)
	}
	mrn, ok := ident.Slicing.Slices["MRN"]
	if !ok {
		t.Fatal("missing MRN slice")
	}
	if len(mrn.Match) != 1 || mrn.Match[0].Path != "system" {
		t.Fatalf("unexpected match: %+v", mrn.Match)
	}
}

const extensionSlicedSD = `{
  "resourceType": "StructureDefinition",
  "url": "http://example.org/StructureDefinition/patient-race",
  "name": "PatientRace",
  "type": "Patient",
  "kind": "resource",
  "derivation": "constraint",
  "differential": {
    "element": [
      {"path": "Patient.extension", "min": 0, "max": "*", "type": [{"code": "Extension"}], "slicing": {
        "discriminator": [{"type": "value", "path": "url"}],
        "rules": "open"
      }},
      {"path": "Patient.extension:race", "sliceName": "race", "min": 0, "max": "1", "type": [{"code": "Extension"}]},
      {"path": "Patient.extension:race.url", "min": 1, "max": "1", "type": [{"code": "uri"}],
        "fixedUri": "http://example.org/ext/race"}
    ]
  }
}`

func TestConvertExtensionSlicing(t *testing.T) {
	c := New()
	s, err := c.Convert([]byte(extensionSlicedSD))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	ext, ok := s.Elements["extension"]
	if !ok {
		t.Fatal("missing extension element")
	}
	if ext.Slicing != nil {
		t.Fatalf("expected no slices map on an Extension-typed owner, got %+v", ext.Slicing)
	}
	slot, ok := s.Extensions["http://example.org/ext/race"]
	if !ok {
		t.Fatalf("expected extensions[http://example.org/ext/race], got %+v", s.Extensions)
	}
	if slot.Min != 0 || slot.Max != 1 {
		t.Fatalf("unexpected slot cardinality: %+v", slot)
	}
}

func TestConvertRecordsMetrics(t *testing.T) {
	m := fschema.NewMetrics()
	c := New(WithMetrics(m))

	if _, err := c.Convert([]byte(backboneSD)); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if _, err := c.Convert([]byte(slicedSD)); err != nil {
		t.Fatalf("convert: %v", err)
	}

	if got := m.ConversionsTotal(); got != 2 {
		t.Fatalf("ConversionsTotal() = %d; want 2", got)
	}
}
