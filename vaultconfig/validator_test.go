package vaultconfig

import "testing"

func TestValidateApprovalPolicyRejectsMissingRoles(t *testing.T) {
	content := []byte("required_approvals: 2\ntimeout: 24h\n")
	result := Validate(ConfigTypeApprovalPolicy, content, "inline")
	if result.Valid {
		t.Fatal("expected invalid result for missing eligible_roles")
	}
}

func TestValidateApprovalPolicyAccepted(t *testing.T) {
	content := []byte("required_approvals: 2\neligible_roles: [\"security-admin\", \"ciso\"]\ntimeout: 24h\n")
	result := Validate(ConfigTypeApprovalPolicy, content, "inline")
	if !result.Valid {
		t.Fatalf("expected valid result, got issues: %+v", result.Issues)
	}
}

func TestValidateEscrowPolicyWarnsOnZeroQuorum(t *testing.T) {
	content := []byte("required_approvers: 0\nretention: 2160h\n")
	result := Validate(ConfigTypeEscrowPolicy, content, "inline")
	if !result.Valid {
		t.Fatalf("zero quorum alone is a warning, not an error: %+v", result.Issues)
	}
	foundWarning := false
	for _, issue := range result.Issues {
		if issue.Severity == SeverityWarning {
			foundWarning = true
		}
	}
	if !foundWarning {
		t.Error("expected a warning about unreachable quorum")
	}
}

func TestValidateThreatThresholdRejectsOutOfRangeRisk(t *testing.T) {
	content := []byte("off_baseline_stddev_multiplier: 2.5\nrapid_fire_count: 10\nrapid_fire_window: 5m\nhigh_risk_threshold: 1.5\nbroadcast_risk_threshold: 0.7\n")
	result := Validate(ConfigTypeThreatThreshold, content, "inline")
	if result.Valid {
		t.Fatal("expected invalid result for high_risk_threshold > 1")
	}
}

func TestValidateUnknownConfigType(t *testing.T) {
	result := Validate(ConfigType("bogus"), []byte("x: 1\n"), "inline")
	if result.Valid {
		t.Fatal("expected invalid result for unknown config type")
	}
}

func TestResultSummaryCompute(t *testing.T) {
	results := []ValidationResult{
		{Valid: true},
		{Valid: false, Issues: []ValidationIssue{{Severity: SeverityError}, {Severity: SeverityWarning}}},
	}
	var summary ResultSummary
	summary.Compute(results)
	if summary.Total != 2 || summary.Valid != 1 || summary.Invalid != 1 || summary.Errors != 1 || summary.Warnings != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}
