// Package keyoracle defines the abstract key-management contract used by
// escrow and identity components. A KeyOracle never exposes raw key
// material to callers; it hands out opaque Handles and performs
// cryptographic operations on the caller's behalf. Concrete
// implementations live in kms (AWS KMS-backed) and memory (in-process,
// test-only).
package keyoracle

import (
	"context"
	"time"
)

// Handle is an opaque reference to a key managed by a KeyOracle. Its
// contents are oracle-specific (an ARN, an internal id) and must never be
// interpreted by callers.
type Handle string

// KeySpec describes the cryptographic properties of a key to generate.
type KeySpec string

const (
	KeySpecAES256 KeySpec = "AES_256" // symmetric data-encryption key
	KeySpecEd25519 KeySpec = "ED25519" // asymmetric signing key
)

// KeyMetadata describes a key handle without exposing key material.
type KeyMetadata struct {
	Handle    Handle
	Spec      KeySpec
	CreatedAt time.Time
	Destroyed bool
}

// KeyOracle is the abstract HSM-class contract that escrow and identity
// components depend on. Implementations include a vendor-backed oracle
// (kms) and an in-process test double (memory); callers never depend on
// a specific vendor protocol.
type KeyOracle interface {
	// GenerateKey creates a new key of the given spec and returns its handle.
	GenerateKey(ctx context.Context, spec KeySpec) (Handle, error)

	// Encrypt encrypts plaintext under the key referenced by handle, binding
	// aad as additional authenticated data. Returns ciphertext only; the
	// plaintext is never retained by the oracle.
	Encrypt(ctx context.Context, handle Handle, plaintext, aad []byte) (ciphertext []byte, err error)

	// Decrypt reverses Encrypt. Returns an error if aad does not match what
	// was supplied at encryption time, or if the handle has been destroyed.
	Decrypt(ctx context.Context, handle Handle, ciphertext, aad []byte) (plaintext []byte, err error)

	// Sign produces a signature over digest using the asymmetric key
	// referenced by handle. handle must have been generated with an
	// asymmetric KeySpec.
	Sign(ctx context.Context, handle Handle, digest []byte) (signature []byte, err error)

	// Describe returns metadata for handle without exposing key material.
	Describe(ctx context.Context, handle Handle) (KeyMetadata, error)

	// Destroy schedules or performs irrevocable destruction of the key
	// referenced by handle. After Destroy returns, Encrypt/Decrypt/Sign on
	// handle must fail.
	Destroy(ctx context.Context, handle Handle) error
}
