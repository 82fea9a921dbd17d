package orchestrator

import (
	"context"

	"github.com/trustfabric/vaultcore/approval"
	"github.com/trustfabric/vaultcore/identity"
)

// IdentityApproverSource adapts identity.Manager into approval's and
// escrow's ApproverSource interface: role membership is an Identity's
// "role:<name>" tag (the shape pre-auth bootstrap tokens carry, e.g.
// `role:worker`), and capability membership is the Identity's
// Capabilities set.
type IdentityApproverSource struct {
	identities *identity.Manager
}

// NewIdentityApproverSource wires an IdentityApproverSource over mgr.
func NewIdentityApproverSource(mgr *identity.Manager) *IdentityApproverSource {
	return &IdentityApproverSource{identities: mgr}
}

// ListEligible enumerates the IdentityIDs of every ACTIVE identity
// holding at least one of the given roles as a "role:<name>" tag. The
// caller (ApprovalEngine.CreateRequest) freezes this list into
// eligible_approver_ids at request creation time.
func (a *IdentityApproverSource) ListEligible(ctx context.Context, roles []string) ([]string, error) {
	wanted := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		wanted["role:"+r] = struct{}{}
	}

	active, err := a.identities.List(ctx, identity.StatusActive, "", identity.MaxQueryLimit)
	if err != nil {
		return nil, err
	}

	var eligible []string
	for _, id := range active {
		for tag := range wanted {
			if _, ok := id.Tags[tag]; ok {
				eligible = append(eligible, id.IdentityID)
				break
			}
		}
	}
	return eligible, nil
}

// HasCapability reports whether identityID's registered Identity holds
// capability.
func (a *IdentityApproverSource) HasCapability(ctx context.Context, identityID, capability string) (bool, error) {
	id, err := a.identities.GetByID(ctx, identityID)
	if err != nil {
		return false, err
	}
	_, ok := id.Capabilities[capability]
	return ok, nil
}

// GetRegisteredKey returns identityID's registered signing key and
// algorithm, so SubmitVote can reject a vote signed under any key other
// than the one the signer actually registered at enrollment.
func (a *IdentityApproverSource) GetRegisteredKey(ctx context.Context, identityID string) ([]byte, approval.Algorithm, error) {
	id, err := a.identities.GetByID(ctx, identityID)
	if err != nil {
		return nil, "", err
	}
	return []byte(id.SigningPublicKey), approval.Algorithm(id.SigningAlgorithm), nil
}
