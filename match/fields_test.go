package match

import "testing"

func TestResolveUnaliasedTopLevel(t *testing.T) {
	doc := map[string]any{"xid": "abc123", "opts": map[string]any{}}
	v, ok := resolve(doc, "xid")
	if !ok || v != "abc123" {
		t.Fatalf("resolve(xid) = %q, %v; want abc123, true", v, ok)
	}
}

func TestResolveUnaliasedFallsBackToOpts(t *testing.T) {
	doc := map[string]any{
		"opts": map[string]any{"VendorSpecificInformation": "deadbeef"},
	}
	v, ok := resolve(doc, "VendorSpecificInformation")
	if !ok || v != "deadbeef" {
		t.Fatalf("resolve(VendorSpecificInformation) = %q, %v; want deadbeef, true", v, ok)
	}
}

func TestResolveUnknownFieldIsNoMatch(t *testing.T) {
	doc := map[string]any{"opts": map[string]any{}}
	if _, ok := resolve(doc, "NotAField"); ok {
		t.Fatal("resolve(NotAField) = true, want false")
	}
}
