package schemata

import (
	"testing"

	"github.com/gofhir/fschema/schema"
)

type stubResolver struct {
	byURL  map[string]*schema.Schema
	byType map[string]*schema.Schema
}

func (r stubResolver) Resolve(url string) (*schema.Schema, bool) {
	s, ok := r.byURL[url]
	return s, ok
}

func (r stubResolver) ResolveType(name string) (*schema.Schema, bool) {
	s, ok := r.byType[name]
	return s, ok
}

func newFixture() stubResolver {
	domainResource := &schema.Schema{URL: "http://hl7.org/fhir/StructureDefinition/DomainResource", Type: "DomainResource"}
	patient := &schema.Schema{URL: "http://hl7.org/fhir/StructureDefinition/Patient", Type: "Patient", Base: domainResource.URL}
	usCore := &schema.Schema{URL: "http://example.org/us-core-patient", Type: "Patient", Base: patient.URL}
	return stubResolver{
		byURL: map[string]*schema.Schema{
			domainResource.URL: domainResource,
			patient.URL:        patient,
			usCore.URL:         usCore,
		},
		byType: map[string]*schema.Schema{"Patient": patient},
	}
}

func TestCollectResourceTypeAndBaseClosure(t *testing.T) {
	r := newFixture()
	c := New(r)
	doc := []byte(`{"resourceType":"Patient","active":true}`)
	set := c.Collect(doc, nil, "Patient")
	if len(set.Schemas) != 2 {
		t.Fatalf("expected Patient + DomainResource, got %d: %+v", len(set.Schemas), set.Schemas)
	}
}

func TestCollectMetaProfile(t *testing.T) {
	r := newFixture()
	c := New(r)
	doc := []byte(`{"resourceType":"Patient","meta":{"profile":["http://example.org/us-core-patient"]}}`)
	set := c.Collect(doc, nil, "Patient")
	found := false
	for _, s := range set.Schemas {
		if s.URL == "http://example.org/us-core-patient" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected us-core-patient in set: %+v", set.Schemas)
	}
	if len(set.Issues) != 0 {
		t.Fatalf("unexpected issues: %+v", set.Issues)
	}
}

func TestCollectUnknownSchemaIssue(t *testing.T) {
	r := newFixture()
	c := New(r)
	doc := []byte(`{"resourceType":"Observation"}`)
	set := c.Collect(doc, nil, "Observation")
	if len(set.Issues) != 1 || set.Issues[0].Code != "UnknownSchema" {
		t.Fatalf("expected one UnknownSchema issue, got %+v", set.Issues)
	}
}
