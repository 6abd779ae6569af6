package chain

import "testing"

func TestParseAddress(t *testing.T) {
	got, err := ParseAddress(" " + DefaultRegistryContract + " ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Hex() != DefaultRegistryContract {
		t.Fatalf("address mismatch: %s", got.Hex())
	}
	if _, err := ParseAddress("0x1234"); err == nil {
		t.Fatalf("expected error for short address")
	}
}
