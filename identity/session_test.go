package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIssueSession(t *testing.T) {
	token, sess, err := IssueSession("identity-1", "machine-1", "10.0.0.1", time.Hour)
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}
	if token == "" {
		t.Fatal("IssueSession() returned empty token")
	}
	if sess.TokenHash != HashSessionToken(token) {
		t.Error("IssueSession() token hash does not match HashSessionToken(token)")
	}
	if sess.Status != SessionActive {
		t.Errorf("IssueSession() status = %q, want active", sess.Status)
	}
	if !sess.ExpiresAt.After(sess.IssuedAt) {
		t.Error("IssueSession() ExpiresAt should be after IssuedAt")
	}
}

func TestSession_IsLive(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name string
		sess Session
		want bool
	}{
		{
			name: "active and unexpired is live",
			sess: Session{Status: SessionActive, ExpiresAt: now.Add(time.Minute)},
			want: true,
		},
		{
			name: "active but expired exactly now is not live",
			sess: Session{Status: SessionActive, ExpiresAt: now},
			want: false,
		},
		{
			name: "active but expired in the past is not live",
			sess: Session{Status: SessionActive, ExpiresAt: now.Add(-time.Minute)},
			want: false,
		},
		{
			name: "revoked is not live regardless of expiry",
			sess: Session{Status: SessionRevoked, ExpiresAt: now.Add(time.Hour)},
			want: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.sess.IsLive(now); got != tc.want {
				t.Errorf("IsLive() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRevokeSession(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	_, sess, err := IssueSession("identity-1", "machine-1", "", time.Hour)
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("store.Create() error = %v", err)
	}

	revoked, err := RevokeSession(ctx, store, sess.SessionID, "admin-1", "compromised")
	if err != nil {
		t.Fatalf("RevokeSession() error = %v", err)
	}
	if revoked.Status != SessionRevoked {
		t.Errorf("RevokeSession() status = %q, want revoked", revoked.Status)
	}
	if revoked.RevokedBy != "admin-1" {
		t.Errorf("RevokeSession() RevokedBy = %q, want admin-1", revoked.RevokedBy)
	}

	if _, err := RevokeSession(ctx, store, sess.SessionID, "admin-1", "again"); !errors.Is(err, ErrSessionAlreadyRevoked) {
		t.Errorf("RevokeSession() on already-revoked session error = %v, want ErrSessionAlreadyRevoked", err)
	}
}

func TestRevokeSession_Expired(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	_, sess, err := IssueSession("identity-1", "machine-1", "", time.Hour)
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}
	sess.Status = SessionExpired
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("store.Create() error = %v", err)
	}

	if _, err := RevokeSession(ctx, store, sess.SessionID, "admin-1", "cleanup"); !errors.Is(err, ErrSessionAlreadyExpired) {
		t.Errorf("RevokeSession() on expired session error = %v, want ErrSessionAlreadyExpired", err)
	}
}
