package variant

import "testing"

func TestDecodeEncodeRoundTrip(t *testing.T) {
	in := `{"resourceType":"Patient","active":true,"identifier":[{"system":"http://x","value":"1"}],"note":null}`
	v, err := Decode([]byte(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Kind() != Object {
		t.Fatalf("want object, got %v", v.Kind())
	}
	rt, ok := v.Field("resourceType")
	if !ok {
		t.Fatal("missing resourceType")
	}
	s, ok := rt.String()
	if !ok || s != "Patient" {
		t.Fatalf("resourceType = %q", s)
	}
	note, ok := v.Field("note")
	if !ok || !note.IsNull() {
		t.Fatalf("note should be present and null")
	}
	out, err := v.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	v2, err := Decode(out)
	if err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if v2.Len() != v.Len() {
		t.Fatalf("round trip changed field count: %d vs %d", v2.Len(), v.Len())
	}
}

func TestPath(t *testing.T) {
	v, _ := Decode([]byte(`{"meta":{"profile":["http://a"]}}`))
	profiles, ok := v.Path("meta", "profile")
	if !ok || profiles.Kind() != Array {
		t.Fatalf("expected array at meta.profile")
	}
	items, _ := profiles.Items()
	if len(items) != 1 {
		t.Fatalf("want 1 profile, got %d", len(items))
	}
}

func TestMissingIntermediate(t *testing.T) {
	v, _ := Decode([]byte(`{}`))
	if _, ok := v.Path("meta", "profile"); ok {
		t.Fatal("expected missing path to fail")
	}
}
