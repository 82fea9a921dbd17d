package policystore

import (
	"context"
	"testing"

	"github.com/trustfabric/vaultcore/keyoracle"
	keyoraclememory "github.com/trustfabric/vaultcore/keyoracle/memory"
)

func TestSignerSignsAndHashMatches(t *testing.T) {
	ctx := context.Background()
	oracle := keyoraclememory.New()

	handle, err := oracle.GenerateKey(ctx, keyoracle.KeySpecEd25519)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	raw := []byte("version: \"1\"\napproval_policies:\n  credential_delete:\n    required_approvals: 3\n")
	doc := sampleDocument()

	signed, err := NewSigner(oracle, handle).Sign(ctx, doc, raw)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if len(signed.Signature) == 0 {
		t.Error("Sign() produced an empty signature")
	}
	if signed.Metadata.KeyHandle != handle {
		t.Errorf("Metadata.KeyHandle = %q, want %q", signed.Metadata.KeyHandle, handle)
	}
	if err := signed.Metadata.Validate(); err != nil {
		t.Errorf("Metadata.Validate() error = %v", err)
	}

	if !signed.Metadata.MatchesHash(raw) {
		t.Error("MatchesHash() = false for the signed bytes")
	}

	tampered := append([]byte(nil), raw...)
	tampered[0] ^= 0xff
	if signed.Metadata.MatchesHash(tampered) {
		t.Error("MatchesHash() = true for tampered bytes")
	}
}

func TestSignatureParameterName(t *testing.T) {
	tests := []struct {
		docParam string
		want     string
	}{
		{DocumentParameterPrefix + "production", SignatureParameterPrefix + "production"},
		{"/custom/path", SignatureParameterPrefix + "custom/path"},
	}
	for _, tt := range tests {
		if got := SignatureParameterName(tt.docParam); got != tt.want {
			t.Errorf("SignatureParameterName(%q) = %q, want %q", tt.docParam, got, tt.want)
		}
	}
}
