package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// preAuthTokenBytes is the width of the CSPRNG-generated clear token.
const preAuthTokenBytes = 32

// preAuthPrefixBytes is how much of the clear token is kept, hex-encoded,
// as a non-secret display prefix.
const preAuthPrefixBytes = 4

// PreAuthToken is a bearer credential presented once (or a bounded number
// of times) to enroll an agent. The clear token material is shown to the
// issuer exactly once, at issuance; only its SHA-256 hash is persisted.
type PreAuthToken struct {
	TokenID string

	TokenHash string // hex SHA-256 of the clear token
	Prefix    string // short, non-secret, for display

	IssuerID string

	CreatedAt time.Time
	ExpiresAt time.Time // zero value means no expiry

	MaxUses int // 0 means unlimited
	Uses    int

	Tags         []string
	Capabilities []string

	PreApproved bool // registrations against this token start ACTIVE
	Ephemeral   bool // enrolled identity is reaped when idle
	Reusable    bool
	Revoked     bool
}

// IssuePreAuth mints a fresh clear token and the PreAuthToken record to
// persist for it. The clear token is returned exactly once; callers must
// display or transmit it immediately and discard their copy.
func IssuePreAuth(issuerID string, ttl time.Duration, maxUses int, tags, caps []string) (clearToken string, token *PreAuthToken, err error) {
	raw := make([]byte, preAuthTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, err
	}
	clearToken = hex.EncodeToString(raw)

	sum := sha256.Sum256([]byte(clearToken))
	now := time.Now().UTC()

	token = &PreAuthToken{
		TokenID:      NewIdentityID(),
		TokenHash:    hex.EncodeToString(sum[:]),
		Prefix:       clearToken[:preAuthPrefixBytes*2],
		IssuerID:     issuerID,
		CreatedAt:    now,
		MaxUses:      maxUses,
		Tags:         append([]string(nil), tags...),
		Capabilities: append([]string(nil), caps...),
		Reusable:     maxUses != 1,
	}
	if ttl > 0 {
		token.ExpiresAt = now.Add(ttl)
	}

	return clearToken, token, nil
}

// HashPreAuthToken computes the hex SHA-256 hash of a clear token for
// constant-time lookup against stored TokenHash values.
func HashPreAuthToken(clearToken string) string {
	sum := sha256.Sum256([]byte(clearToken))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeHashEqual compares two hex-encoded hashes in constant time.
func ConstantTimeHashEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// IsValid reports whether t satisfies every validity predicate:
// not revoked, not expired, and under its use budget. now is injected so
// callers can test expiry deterministically.
func (t *PreAuthToken) IsValid(now time.Time) bool {
	if t.Revoked {
		return false
	}
	if !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt) {
		return false
	}
	if t.MaxUses > 0 && t.Uses >= t.MaxUses {
		return false
	}
	return true
}
