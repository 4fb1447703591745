package payments

import (
	"regexp"
	"testing"
)

func TestNewTxRefFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^SAFAR-42-[0-9A-F]{8}$`)

	ref := NewTxRef(42)
	if !pattern.MatchString(ref) {
		t.Fatalf("tx_ref %q does not match %s", ref, pattern)
	}
}

func TestNewTxRefUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		ref := NewTxRef(1)
		if seen[ref] {
			t.Fatalf("duplicate tx_ref %q after %d draws", ref, i)
		}
		seen[ref] = true
	}
}
