package policystore

import (
	"context"
	"testing"
	"time"

	"github.com/trustfabric/vaultcore/escrow"
)

func sampleDocument() *Document {
	return &Document{
		Version: "1",
		ApprovalPolicies: map[string]ApprovalPolicyDoc{
			"credential_delete": {
				RequiredApprovals: 3,
				EligibleRoles:     []string{"security-admin"},
				Timeout:           24 * time.Hour,
			},
		},
		EscrowPolicies: map[string]EscrowPolicyDoc{
			"EMERGENCY": {
				RequiredApprovers:   0,
				EligibleRoles:       []string{"emergency-approver"},
				Retention:           90 * 24 * time.Hour,
				NotificationTargets: []string{"security@example.com"},
				EmergencyBypass:     true,
			},
		},
		ThreatThresholds: ThreatThresholdDoc{
			OffBaselineStdDevMultiplier: 2.5,
			RapidFireCount:              10,
			RapidFireWindow:             5 * time.Minute,
			HighRiskThreshold:           0.5,
			BroadcastRiskThreshold:      0.7,
		},
		Baseline: BaselineParamDoc{
			MinSamples:       50,
			RefreshCadence:   time.Hour,
			IdleInvalidation: 30 * 24 * time.Hour,
		},
	}
}

func TestResolverResolvesApprovalPolicy(t *testing.T) {
	loader := NewMemoryLoader()
	loader.Put("doc", sampleDocument())
	r := NewResolver(loader, "doc")

	snap, err := r.ResolveApprovalPolicy(context.Background(), "credential_delete")
	if err != nil {
		t.Fatalf("ResolveApprovalPolicy: %v", err)
	}
	if snap.RequiredApprovals != 3 {
		t.Errorf("RequiredApprovals = %d, want 3", snap.RequiredApprovals)
	}
	if snap.Timeout != 24*time.Hour {
		t.Errorf("Timeout = %v, want 24h", snap.Timeout)
	}
}

func TestResolverUnknownOperationType(t *testing.T) {
	loader := NewMemoryLoader()
	loader.Put("doc", sampleDocument())
	r := NewResolver(loader, "doc")

	if _, err := r.ResolveApprovalPolicy(context.Background(), "nonexistent_op"); err == nil {
		t.Fatal("expected error for unconfigured operation type")
	}
}

func TestResolverResolvesEscrowPolicy(t *testing.T) {
	loader := NewMemoryLoader()
	loader.Put("doc", sampleDocument())
	r := NewResolver(loader, "doc")

	snap, err := r.ResolveEscrowPolicy(context.Background(), escrow.ClassEmergency)
	if err != nil {
		t.Fatalf("ResolveEscrowPolicy: %v", err)
	}
	if !snap.EmergencyBypass {
		t.Error("expected EmergencyBypass true for EMERGENCY class")
	}
	if snap.RequiredApprovers != 0 {
		t.Errorf("RequiredApprovers = %d, want 0", snap.RequiredApprovers)
	}
}

func TestValidateCatchesMissingVersion(t *testing.T) {
	doc := sampleDocument()
	doc.Version = ""
	result := Validate(doc, "test")
	if result.Valid {
		t.Error("expected invalid result for missing version")
	}
}

func TestValidateCatchesZeroQuorumWithoutEmergencyBypass(t *testing.T) {
	doc := sampleDocument()
	p := doc.EscrowPolicies["EMERGENCY"]
	p.EmergencyBypass = false
	doc.EscrowPolicies["EMERGENCY"] = p

	result := Validate(doc, "test")
	foundWarning := false
	for _, issue := range result.Issues {
		if issue.Severity == SeverityWarning && issue.Location == "escrow_policies[EMERGENCY]" {
			foundWarning = true
		}
	}
	if !foundWarning {
		t.Error("expected a warning for zero-quorum escrow policy without emergency bypass")
	}
}

func TestValidateRejectsUnknownEscrowClass(t *testing.T) {
	doc := sampleDocument()
	doc.EscrowPolicies["NOT_A_CLASS"] = EscrowPolicyDoc{RequiredApprovers: 1, Retention: time.Hour}

	result := Validate(doc, "test")
	if result.Valid {
		t.Error("expected invalid result for unknown escrow class")
	}
}

func TestCachedLoaderServesFromCacheWithinTTL(t *testing.T) {
	backing := NewMemoryLoader()
	backing.Put("doc", sampleDocument())
	cached := NewCachedLoader(backing, time.Minute)

	first, err := cached.Load(context.Background(), "doc")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	backing.Put("doc", &Document{Version: "2"})
	second, err := cached.Load(context.Background(), "doc")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if first != second {
		t.Error("expected cached load to return the same Document pointer within TTL")
	}
}
