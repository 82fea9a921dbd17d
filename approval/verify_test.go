package approval

import (
	"crypto/ed25519"
	"testing"
)

func TestVerifySignature_Ed25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	r := &Request{RequestID: "req_1", OperationType: "credential_access", RequesterID: "agent-1", CreatedAtNS: 42}
	sig, err := SignEd25519(r, "approver-1", priv, pub)
	if err != nil {
		t.Fatalf("SignEd25519() error = %v", err)
	}

	digest := Digest(r)
	ok, err := VerifySignature(digest, sig)
	if err != nil {
		t.Fatalf("VerifySignature() error = %v", err)
	}
	if !ok {
		t.Error("VerifySignature() = false, want true for a valid signature")
	}
}

func TestVerifySignature_RejectsTamperedDigest(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	r := &Request{RequestID: "req_1", OperationType: "credential_access", RequesterID: "agent-1", CreatedAtNS: 42}
	sig, _ := SignEd25519(r, "approver-1", priv, pub)

	tampered := *r
	tampered.RequesterID = "agent-2"
	digest := Digest(&tampered)

	ok, err := VerifySignature(digest, sig)
	if err != nil {
		t.Fatalf("VerifySignature() error = %v", err)
	}
	if ok {
		t.Error("VerifySignature() = true for a digest that does not match what was signed")
	}
}

func TestVerifySignature_UnsupportedAlgorithm(t *testing.T) {
	sig := ApprovalSignature{Algorithm: Algorithm("ROT13")}
	_, err := VerifySignature([32]byte{}, sig)
	if err == nil {
		t.Fatal("VerifySignature() expected an error for an unsupported algorithm")
	}
}
