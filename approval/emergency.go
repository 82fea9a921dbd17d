package approval

import (
	"context"

	"github.com/trustfabric/vaultcore/vaulterrors"
)

// EvaluateEmergencyOverride decides whether a request may bypass
// quorum: emergency override requires BOTH the operation's policy
// EmergencyBypass flag AND the requester holding the
// EmergencyApproverCapability. Neither alone is sufficient.
func EvaluateEmergencyOverride(ctx context.Context, snapshot PolicySnapshot, requesterID string, approvers ApproverSource) (bool, error) {
	if !snapshot.EmergencyBypass {
		return false, nil
	}
	has, err := approvers.HasCapability(ctx, requesterID, EmergencyApproverCapability)
	if err != nil {
		return false, err
	}
	if !has {
		return false, vaulterrors.New(vaulterrors.ErrCodeCapabilityMissing, "emergency override requires the emergency_approver capability", vaulterrors.GetSuggestion(vaulterrors.ErrCodeCapabilityMissing), nil)
	}
	return true, nil
}
