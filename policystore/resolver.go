// Resolver adapts a cached configuration Document into the
// approval.PolicyResolver and escrow.PolicyResolver interfaces that the
// ApprovalEngine and EscrowEngine depend on, so both engines consult one
// read-mostly policy store instead of embedding policy documents
// themselves.
package policystore

import (
	"context"
	"fmt"

	"github.com/trustfabric/vaultcore/approval"
	"github.com/trustfabric/vaultcore/escrow"
	"github.com/trustfabric/vaultcore/vaulterrors"
)

// Resolver is the PolicyStore's runtime view: one configuration
// Document, fetched (and cached) from a single parameter path.
type Resolver struct {
	loader        DocumentLoader
	parameterName string
}

// NewResolver builds a Resolver over loader (typically a *CachedLoader)
// reading the document at parameterName.
func NewResolver(loader DocumentLoader, parameterName string) *Resolver {
	return &Resolver{loader: loader, parameterName: parameterName}
}

// ResolveApprovalPolicy implements approval.PolicyResolver.
func (r *Resolver) ResolveApprovalPolicy(ctx context.Context, operationType string) (approval.PolicySnapshot, error) {
	doc, err := r.loader.Load(ctx, r.parameterName)
	if err != nil {
		return approval.PolicySnapshot{}, err
	}
	entry, ok := doc.ApprovalPolicies[operationType]
	if !ok {
		return approval.PolicySnapshot{}, vaulterrors.New(
			vaulterrors.ErrCodePolicyNotConfigured,
			fmt.Sprintf("no approval policy configured for operation type %q", operationType),
			vaulterrors.GetSuggestion(vaulterrors.ErrCodePolicyNotConfigured),
			nil,
		)
	}
	return entry.ToSnapshot(operationType), nil
}

// ResolveEscrowPolicy implements escrow.PolicyResolver.
func (r *Resolver) ResolveEscrowPolicy(ctx context.Context, class escrow.EscrowClass) (escrow.EscrowPolicySnapshot, error) {
	doc, err := r.loader.Load(ctx, r.parameterName)
	if err != nil {
		return escrow.EscrowPolicySnapshot{}, err
	}
	entry, ok := doc.EscrowPolicies[string(class)]
	if !ok {
		return escrow.EscrowPolicySnapshot{}, vaulterrors.New(
			vaulterrors.ErrCodePolicyNotConfigured,
			fmt.Sprintf("no escrow policy configured for class %q", class),
			vaulterrors.GetSuggestion(vaulterrors.ErrCodePolicyNotConfigured),
			nil,
		)
	}
	return entry.ToSnapshot(class), nil
}

// ResolveThreatThresholds returns the current threat-detection tuning
// parameters.
func (r *Resolver) ResolveThreatThresholds(ctx context.Context) (ThreatThresholdDoc, error) {
	doc, err := r.loader.Load(ctx, r.parameterName)
	if err != nil {
		return ThreatThresholdDoc{}, err
	}
	return doc.ThreatThresholds, nil
}

// ResolveBaselineParams returns the current baseline-maintenance tuning
// parameters.
func (r *Resolver) ResolveBaselineParams(ctx context.Context) (BaselineParamDoc, error) {
	doc, err := r.loader.Load(ctx, r.parameterName)
	if err != nil {
		return BaselineParamDoc{}, err
	}
	return doc.Baseline, nil
}

var (
	_ approval.PolicyResolver = (*Resolver)(nil)
	_ escrow.PolicyResolver   = (*Resolver)(nil)
)
