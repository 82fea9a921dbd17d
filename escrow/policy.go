package escrow

import (
	"context"

	"github.com/trustfabric/vaultcore/approval"
)

// PolicyResolver looks up the current escrow policy for a class, per
// recovery initiation. Implemented over policystore in production.
type PolicyResolver interface {
	ResolveEscrowPolicy(ctx context.Context, class EscrowClass) (EscrowPolicySnapshot, error)
}

// ApproverSource is reused from approval: both engines gate an
// emergency path on the same identity.capabilities-backed check; the
// emergency-override rule applies identically here and in
// approval/emergency.go.
type ApproverSource = approval.ApproverSource

// EmergencyApproverCapability is reused from approval so that both
// engines recognize the same capability name.
const EmergencyApproverCapability = approval.EmergencyApproverCapability
