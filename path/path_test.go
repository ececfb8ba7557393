package path

import (
	"reflect"
	"testing"
)

func TestTrimType(t *testing.T) {
	if got := TrimType("Patient.contact.name", "Patient"); got != "contact.name" {
		t.Fatalf("got %q", got)
	}
	if got := TrimType("Patient", "Patient"); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestIsChoiceAndExpansion(t *testing.T) {
	if !IsChoice("deceased[x]") {
		t.Fatal("expected choice")
	}
	if got := ExpandedName("deceased", "boolean"); got != "deceasedBoolean" {
		t.Fatalf("got %q", got)
	}
	suffix, ok := TypeFromExpandedName("deceasedBoolean", "deceased")
	if !ok || suffix != "Boolean" {
		t.Fatalf("got %q, %v", suffix, ok)
	}
}

func TestCommonPrefix(t *testing.T) {
	a := []string{"Patient", "contact", "name", "given"}
	b := []string{"Patient", "contact", "telecom"}
	got := CommonPrefix(a, b)
	want := []string{"Patient", "contact"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSliceName(t *testing.T) {
	name, slice, ok := SliceName("identifier:MRN")
	if !ok || name != "identifier" || slice != "MRN" {
		t.Fatalf("got %q %q %v", name, slice, ok)
	}
	if _, _, ok := SliceName("identifier"); ok {
		t.Fatal("expected no slice")
	}
}

func TestBuilderPath(t *testing.T) {
	if got := WithField("Patient", "name"); got != "Patient.name" {
		t.Fatalf("got %q", got)
	}
	if got := WithIndex("Patient.name", 0); got != "Patient.name[0]" {
		t.Fatalf("got %q", got)
	}
}
