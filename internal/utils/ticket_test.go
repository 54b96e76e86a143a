package utils

import "testing"

func TestTicketSecretRoundTrip(t *testing.T) {
	raw, err := RandomHex(32)
	if err != nil {
		t.Fatalf("RandomHex: %v", err)
	}
	if len(raw) != 64 {
		t.Fatalf("token length = %d, want 64", len(raw))
	}
	hash, err := HashTicketSecret(raw, 4) // min cost keeps the test fast
	if err != nil {
		t.Fatalf("HashTicketSecret: %v", err)
	}
	if !VerifyTicketSecret(hash, raw) {
		t.Fatal("hash should verify against the original secret")
	}
	if VerifyTicketSecret(hash, raw+"x") {
		t.Fatal("hash must not verify against a different secret")
	}
}
