package fingerprint

import "testing"

func TestOf_KnownVectors(t *testing.T) {
	tests := map[string]string{
		"":    "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		"abc": "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
	}
	for in, want := range tests {
		if got := Of(in); got != want {
			t.Errorf("Of(%q) = %s, want %s", in, got, want)
		}
	}
}

// WHAT: equal text gives equal digests, any edit changes it.
// WHY: the runner's change decision is digest inequality.
func TestOf_Deterministic(t *testing.T) {
	a := Of("Pro $29/month")
	if a != Of("Pro $29/month") {
		t.Fatal("digest not deterministic")
	}
	if a == Of("Pro $39/month") {
		t.Fatal("different text produced equal digest")
	}
	if !Valid(a) {
		t.Fatalf("Valid(%q) = false", a)
	}
}

func TestValid(t *testing.T) {
	if Valid("abc") || Valid(string(make([]byte, Size))) {
		t.Fatal("accepted malformed fingerprint")
	}
	if Valid("E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855") {
		t.Fatal("uppercase must be rejected")
	}
}
