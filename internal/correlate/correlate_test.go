package correlate

import "testing"

func TestResolveKeepsWellFormedIncomingID(t *testing.T) {
	id := New()
	if got := Resolve(id); got != id {
		t.Fatalf("expected %q to survive Resolve unchanged, got %q", id, got)
	}
}

func TestResolveReplacesMalformedID(t *testing.T) {
	got := Resolve("not-a-uuid")
	if got == "not-a-uuid" {
		t.Fatalf("expected malformed id to be replaced")
	}
}

func TestResolveGeneratesWhenEmpty(t *testing.T) {
	if got := Resolve(""); got == "" {
		t.Fatalf("expected a generated id, got empty string")
	}
}
