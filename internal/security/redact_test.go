package security

import "testing"

func TestRedactMasksBearerToken(t *testing.T) {
	in := `Authorization: Bearer sk-abc123.def456`
	out := Redact(in)
	if out == in {
		t.Fatalf("expected bearer token to be redacted, got %q", out)
	}
}

func TestRedactMasksPasswordField(t *testing.T) {
	in := `{"password": "hunter2"}`
	out := Redact(in)
	if out == in {
		t.Fatalf("expected password field to be redacted, got %q", out)
	}
}

func TestRedactLeavesOrdinaryTextAlone(t *testing.T) {
	in := "database default opened successfully"
	if got := Redact(in); got != in {
		t.Fatalf("expected no change, got %q", got)
	}
}
