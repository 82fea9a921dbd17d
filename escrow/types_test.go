package escrow

import (
	"testing"
	"time"
)

func TestEscrowedCredential_IsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &EscrowedCredential{ExpiresAt: now}
	if !c.IsExpired(now) {
		t.Error("IsExpired() at exact expiry = false, want true")
	}
	c.ExpiresAt = now.Add(time.Second)
	if c.IsExpired(now) {
		t.Error("IsExpired() before expiry = true, want false")
	}
}

func TestRecoveryRequest_HasApprovedAndIsEligible(t *testing.T) {
	r := &RecoveryRequest{
		EligibleApproverIDs: []string{"approver-1", "approver-2"},
		Approvals:           []RecoveryApproval{{ApproverID: "approver-1"}},
	}

	if !r.HasApproved("approver-1") {
		t.Error("HasApproved(approver-1) = false, want true")
	}
	if r.HasApproved("approver-2") {
		t.Error("HasApproved(approver-2) = true, want false")
	}
	if !r.IsEligible("approver-2") {
		t.Error("IsEligible(approver-2) = false, want true")
	}
	if r.IsEligible("outsider") {
		t.Error("IsEligible(outsider) = true, want false")
	}
}

func TestRecoveryRequest_QuorumMet(t *testing.T) {
	r := &RecoveryRequest{
		RequiredApprovals: 2,
		Approvals:         []RecoveryApproval{{ApproverID: "a"}},
	}
	if r.QuorumMet() {
		t.Error("QuorumMet() = true with 1/2 approvals, want false")
	}
	r.Approvals = append(r.Approvals, RecoveryApproval{ApproverID: "b"})
	if !r.QuorumMet() {
		t.Error("QuorumMet() = false with 2/2 approvals, want true")
	}
}

func TestEscrowStatus_IsTerminal(t *testing.T) {
	cases := map[EscrowStatus]bool{
		EscrowStatusActive:    false,
		EscrowStatusRecovered: true,
		EscrowStatusExpired:   true,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%v.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestRecoveryStatus_IsValid(t *testing.T) {
	if !RecoveryStatusPending.IsValid() {
		t.Error("PENDING should be valid")
	}
	if RecoveryStatus("BOGUS").IsValid() {
		t.Error("BOGUS should not be valid")
	}
}
