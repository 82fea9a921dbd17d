// Package identity implements Agent Identity & Attestation: cryptographic
// identities bound to a machine, issued through pre-authorization tokens,
// and tracked through an approval lifecycle and server-side sessions.
//
// # Identity lifecycle
//
// Valid state transitions:
//   - PENDING -> ACTIVE (approve, or registration against a pre_approved token)
//   - PENDING -> REVOKED
//   - ACTIVE -> SUSPENDED -> ACTIVE
//   - ACTIVE -> REVOKED
//   - SUSPENDED -> REVOKED
//
// REVOKED is terminal: a revoked identity is never resurrected; a new
// identity must be minted.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/curve25519"
)

// Status represents the current lifecycle state of an Agent Identity.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusRevoked   Status = "REVOKED"
)

// IsValid returns true if s is a known Status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusActive, StatusSuspended, StatusRevoked:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (s Status) String() string { return string(s) }

// IsTerminal returns true if s cannot transition further.
func (s Status) IsTerminal() bool {
	return s == StatusRevoked
}

// ErrUnknownStatus indicates a persisted status string did not parse to a
// known Status variant. Per design, this is a hard deserialization error,
// never a silent default.
var ErrUnknownStatus = errors.New("identity: unknown status value")

// ParseStatus parses s into a Status, failing hard on unrecognized values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", fmt.Errorf("%q: %w", s, ErrUnknownStatus)
	}
	return st, nil
}

// SigningAlgorithmEd25519 is the only signing algorithm an Identity ever
// registers today: RegisterAgent always mints an Ed25519 keypair.
// It is stored as a plain string, not an approval.Algorithm, so identity
// carries no dependency on the approval package; approval's ApproverSource
// adapter compares the two string spaces at its own boundary.
const SigningAlgorithmEd25519 = "ED25519"

// Identity is a cryptographic Agent Identity bound to a machine.
type Identity struct {
	IdentityID string // unique
	AgentID    string // unique; human-readable composite of machine, role, epoch
	MachineID  string

	SigningPublicKey  ed25519.PublicKey // Ed25519
	ExchangePublicKey []byte            // X25519, 32 bytes
	SigningAlgorithm  string            // the registered scheme for SigningPublicKey; see SigningAlgorithmEd25519

	KeyFingerprint  string // hex SHA-256(signing_public || exchange_public)
	MachineBinding  string // hex SHA-256(machine_id || ":" || fingerprint)

	Status Status

	ApproverID string // optional
	ApprovedAt time.Time

	Tags         map[string]struct{}
	Capabilities map[string]struct{}

	CreatedAt time.Time
	UpdatedAt time.Time
}

// KeyMaterial holds the private halves of a freshly generated identity's
// keypairs. It is returned exactly once, at registration time, and is
// never persisted by IdentityStore.
type KeyMaterial struct {
	SigningPrivateKey  ed25519.PrivateKey
	ExchangePrivateKey []byte // X25519, 32 bytes
}

// Fingerprint computes SHA-256(signing_public || exchange_public), hex encoded.
func Fingerprint(signingPub ed25519.PublicKey, exchangePub []byte) string {
	h := sha256.New()
	h.Write(signingPub)
	h.Write(exchangePub)
	return hex.EncodeToString(h.Sum(nil))
}

// MachineBinding computes SHA-256(machine_id || ":" || fingerprint), hex encoded.
func MachineBinding(machineID, fingerprint string) string {
	h := sha256.New()
	h.Write([]byte(machineID))
	h.Write([]byte(":"))
	h.Write([]byte(fingerprint))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyMachineBinding reports whether a fresh recomputation of the
// machine binding for machineID and fingerprint matches binding. Callers
// MUST run this on every authentication; a mismatch is fatal for the
// identity (the caller should transition it to REVOKED).
func VerifyMachineBinding(machineID, fingerprint, binding string) bool {
	return MachineBinding(machineID, fingerprint) == binding
}

// GenerateKeyMaterial creates a fresh Ed25519 signing keypair and X25519
// exchange keypair from a CSPRNG.
func GenerateKeyMaterial() (ed25519.PublicKey, []byte, *KeyMaterial, error) {
	signingPub, signingPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("generate signing keypair: %w", err)
	}

	var exchangePriv [32]byte
	if _, err := rand.Read(exchangePriv[:]); err != nil {
		return nil, nil, nil, fmt.Errorf("generate exchange private key: %w", err)
	}
	exchangePub, err := curve25519.X25519(exchangePriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("derive exchange public key: %w", err)
	}

	return signingPub, exchangePub, &KeyMaterial{
		SigningPrivateKey:  signingPriv,
		ExchangePrivateKey: exchangePriv[:],
	}, nil
}

const identityIDLength = 16 // 8 random bytes, hex-encoded

// NewIdentityID generates a new 16-character lowercase hex identity id
// using crypto/rand.
func NewIdentityID() string {
	b := make([]byte, identityIDLength/2)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}

// NewAgentID composes a human-readable agent id from machine, role, and a
// creation epoch (Unix seconds), e.g. "host-42/worker/1765036800".
func NewAgentID(machineID, role string, epoch int64) string {
	return fmt.Sprintf("%s/%s/%d", machineID, role, epoch)
}

// UnionStrings returns the set union of a and b as a map suitable for
// Tags/Capabilities, used to merge pre-auth-supplied sets with requested
// sets at registration time.
func UnionStrings(a, b []string) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for _, v := range a {
		out[v] = struct{}{}
	}
	for _, v := range b {
		out[v] = struct{}{}
	}
	return out
}

// HasCapability reports whether identity carries the named capability.
func (id *Identity) HasCapability(capability string) bool {
	_, ok := id.Capabilities[capability]
	return ok
}

// HasTag reports whether identity carries the named tag.
func (id *Identity) HasTag(tag string) bool {
	_, ok := id.Tags[tag]
	return ok
}

// IsUsable reports whether the identity may authenticate: only ACTIVE
// identities are usable.
func (id *Identity) IsUsable() bool {
	return id.Status == StatusActive
}
