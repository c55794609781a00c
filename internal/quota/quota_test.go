package quota

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLookup_FallsBackToBasic(t *testing.T) {
	p := Lookup("no-such-plan")
	if p.Name != "basic" {
		t.Fatalf("fallback plan = %q; want basic", p.Name)
	}
	if !Lookup("gold").Multiplier.Equal(decimal.RequireFromString("1.2")) {
		t.Fatal("gold multiplier mismatch")
	}
}

func TestRemaining_NeverNegative(t *testing.T) {
	if got := Remaining("basic", 3); got != 2 {
		t.Fatalf("Remaining(basic,3) = %d; want 2", got)
	}
	if got := Remaining("basic", 99); got != 0 {
		t.Fatalf("Remaining(basic,99) = %d; want 0", got)
	}
	if got := Remaining("diamond", 0); got != 20 {
		t.Fatalf("Remaining(diamond,0) = %d; want 20", got)
	}
}

func TestIsValid(t *testing.T) {
	for _, name := range Names() {
		if !IsValid(name) {
			t.Fatalf("IsValid(%q) = false", name)
		}
	}
	if IsValid("platinum") {
		t.Fatal("IsValid(platinum) should be false")
	}
}
