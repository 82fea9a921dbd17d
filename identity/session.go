package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// SessionStatus represents the current state of an agent session.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionRevoked SessionStatus = "revoked"
	SessionExpired SessionStatus = "expired"
)

// IsValid returns true if s is a known SessionStatus value.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionActive, SessionRevoked, SessionExpired:
		return true
	}
	return false
}

// IsTerminal returns true if the status is a terminal state.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionRevoked, SessionExpired:
		return true
	}
	return false
}

// Session binds an opaque session token to an identity, its machine, and
// an optional client IP, for the lifetime of one authenticated run.
type Session struct {
	SessionID string

	TokenHash string // hex SHA-256 of the opaque 32-byte session token

	IdentityID string
	MachineID  string
	SourceIP   string // optional

	Status SessionStatus

	IssuedAt  time.Time
	ExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	RevokedBy     string
	RevokedReason string
}

const sessionTokenBytes = 32

// IssueSession mints a fresh opaque session token and the Session record
// to persist for it (SHA-256 of the token only).
func IssueSession(identityID, machineID, sourceIP string, ttl time.Duration) (token string, sess *Session, err error) {
	raw := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, err
	}
	token = hex.EncodeToString(raw)
	sum := sha256.Sum256([]byte(token))

	now := time.Now().UTC()
	sess = &Session{
		SessionID:  NewIdentityID(),
		TokenHash:  hex.EncodeToString(sum[:]),
		IdentityID: identityID,
		MachineID:  machineID,
		SourceIP:   sourceIP,
		Status:     SessionActive,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return token, sess, nil
}

// HashSessionToken computes the hex SHA-256 hash of an opaque session token.
func HashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IsLive reports whether the session is active and unexpired as of now.
// Expiry at exactly ExpiresAt is treated as expired (inclusive).
func (s *Session) IsLive(now time.Time) bool {
	if s.Status != SessionActive {
		return false
	}
	return now.Before(s.ExpiresAt)
}

// Revocation errors for session state transitions.
var (
	ErrSessionAlreadyRevoked = errors.New("identity: session already revoked")
	ErrSessionAlreadyExpired = errors.New("identity: session already expired")
)

// RevokeSession terminates an active session immediately, validating the
// state transition. Valid transitions: active->revoked. revoked->revoked
// and expired->revoked return the corresponding sentinel error.
func RevokeSession(ctx context.Context, store SessionStore, sessionID, revokedBy, reason string) (*Session, error) {
	sess, err := store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch sess.Status {
	case SessionRevoked:
		return nil, ErrSessionAlreadyRevoked
	case SessionExpired:
		return nil, ErrSessionAlreadyExpired
	}

	sess.Status = SessionRevoked
	sess.RevokedBy = revokedBy
	sess.RevokedReason = reason
	sess.UpdatedAt = time.Now().UTC()

	if err := store.Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}
