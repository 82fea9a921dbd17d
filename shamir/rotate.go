package shamir

import (
	"context"
	"time"

	"github.com/trustfabric/vaultcore/eventsink"
)

// ShareSetStatus tracks the lifecycle of one generation of shares for a
// given secret_id.
type ShareSetStatus string

const (
	ShareSetActive  ShareSetStatus = "active"
	ShareSetRevoked ShareSetStatus = "revoked"
	ShareSetRotated ShareSetStatus = "rotated"
)

// ShareSet is one generation of shares produced for a secret_id: the
// shares themselves plus the bookkeeping needed to revoke and replace
// them without losing the secret's identity.
type ShareSet struct {
	SecretID  string
	Shares    []Share
	Threshold int
	Total     int
	Owners    []string // holder identity per share, by index-1
	Status    ShareSetStatus
	CreatedAt time.Time
	RevokedAt time.Time
}

// NewShareSet splits secret into a fresh active ShareSet bound to secretID.
func NewShareSet(secretID string, secret []byte, k, n int, owners []string) (*ShareSet, error) {
	shares, err := Split(secret, k, n)
	if err != nil {
		return nil, err
	}
	return &ShareSet{
		SecretID:  secretID,
		Shares:    shares,
		Threshold: k,
		Total:     n,
		Owners:    owners,
		Status:    ShareSetActive,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Rotate re-splits newSecret with a fresh polynomial, over the same
// (threshold, owners) shape, preserving secret_id. The prior ShareSet is
// marked ROTATED — distinct from an explicit revocation — and every one
// of its shares is revoked, with a share_revoked event per holder so
// custodians learn their shares are dead. Rotation never reuses the old
// polynomial: holders of old shares gain nothing by retaining them.
func Rotate(ctx context.Context, old *ShareSet, newSecret []byte, sink eventsink.EventSink) (*ShareSet, error) {
	fresh, err := NewShareSet(old.SecretID, newSecret, old.Threshold, old.Total, old.Owners)
	if err != nil {
		return nil, err
	}

	old.Status = ShareSetRotated
	old.RevokedAt = time.Now().UTC()

	if sink != nil {
		for _, owner := range old.Owners {
			owner := owner
			evt := eventsink.NewEvent("shamir.share_revoked", eventsink.SeverityInfo, eventsink.OutcomeSuccess)
			evt.ActorID = &owner
			evt.ResourceID = &old.SecretID
			_, _ = sink.Append(ctx, "shamir", []string{"rotation"}, evt)
		}
	}

	return fresh, nil
}
