package memory

import (
	"context"
	"testing"

	"github.com/trustfabric/vaultcore/keyoracle"
)

func TestOracle_GenerateAndEncryptDecrypt(t *testing.T) {
	ctx := context.Background()
	o := New()

	handle, err := o.GenerateKey(ctx, keyoracle.KeySpecAES256)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	plaintext := []byte("credential material")
	aad := []byte("escrow-id:esc-1")

	ciphertext, err := o.Encrypt(ctx, handle, plaintext, aad)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if string(ciphertext) == string(plaintext) {
		t.Error("Encrypt() returned plaintext unchanged")
	}

	got, err := o.Decrypt(ctx, handle, ciphertext, aad)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if string(got) != string(plaintext) {
		t.Errorf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestOracle_DecryptWrongAAD(t *testing.T) {
	ctx := context.Background()
	o := New()
	handle, _ := o.GenerateKey(ctx, keyoracle.KeySpecAES256)

	ciphertext, err := o.Encrypt(ctx, handle, []byte("secret"), []byte("aad-a"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := o.Decrypt(ctx, handle, ciphertext, []byte("aad-b")); err == nil {
		t.Error("Decrypt() with mismatched aad succeeded, want error")
	}
}

func TestOracle_SignVerify(t *testing.T) {
	ctx := context.Background()
	o := New()
	handle, err := o.GenerateKey(ctx, keyoracle.KeySpecEd25519)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	digest := []byte("request-digest")
	sig, err := o.Sign(ctx, handle, digest)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if len(sig) == 0 {
		t.Error("Sign() returned empty signature")
	}
}

func TestOracle_DestroyThenUse(t *testing.T) {
	ctx := context.Background()
	o := New()
	handle, _ := o.GenerateKey(ctx, keyoracle.KeySpecAES256)

	if err := o.Destroy(ctx, handle); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}

	if _, err := o.Encrypt(ctx, handle, []byte("x"), nil); err == nil {
		t.Error("Encrypt() after Destroy() succeeded, want error")
	}
}

func TestOracle_UnknownHandle(t *testing.T) {
	ctx := context.Background()
	o := New()

	if _, err := o.Encrypt(ctx, keyoracle.Handle("nope"), []byte("x"), nil); err == nil {
		t.Error("Encrypt() with unknown handle succeeded, want error")
	}
}

func TestOracle_WrongKeyKindForOperation(t *testing.T) {
	ctx := context.Background()
	o := New()
	handle, _ := o.GenerateKey(ctx, keyoracle.KeySpecEd25519)

	if _, err := o.Encrypt(ctx, handle, []byte("x"), nil); err == nil {
		t.Error("Encrypt() with a signing key succeeded, want error")
	}
}
