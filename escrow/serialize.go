package escrow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/trustfabric/vaultcore/keyoracle"
)

func keyoracleHandle(s string) keyoracle.Handle { return keyoracle.Handle(s) }

type escrowPolicyJSON struct {
	Class               string   `json:"class"`
	RequiredApprovers   int      `json:"required_approvers"`
	EligibleRoles       []string `json:"eligible_roles"`
	RetentionNanos      int64    `json:"retention_ns"`
	NotificationTargets []string `json:"notification_targets"`
	EmergencyBypass     bool     `json:"emergency_bypass"`
}

func marshalEscrowPolicy(p EscrowPolicySnapshot) (string, error) {
	wire := escrowPolicyJSON{
		Class:               string(p.Class),
		RequiredApprovers:   p.RequiredApprovers,
		EligibleRoles:       p.EligibleRoles,
		RetentionNanos:      int64(p.Retention),
		NotificationTargets: p.NotificationTargets,
		EmergencyBypass:     p.EmergencyBypass,
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("marshal escrow policy: %w", err)
	}
	return string(b), nil
}

func unmarshalEscrowPolicy(raw string) (EscrowPolicySnapshot, error) {
	var wire escrowPolicyJSON
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return EscrowPolicySnapshot{}, fmt.Errorf("unmarshal escrow policy: %w", err)
	}
	return EscrowPolicySnapshot{
		Class:               EscrowClass(wire.Class),
		RequiredApprovers:   wire.RequiredApprovers,
		EligibleRoles:       wire.EligibleRoles,
		Retention:           time.Duration(wire.RetentionNanos),
		NotificationTargets: wire.NotificationTargets,
		EmergencyBypass:     wire.EmergencyBypass,
	}, nil
}

type approvalJSON struct {
	ApproverID string    `json:"approver_id"`
	Timestamp  time.Time `json:"timestamp"`
}

func marshalApprovals(approvals []RecoveryApproval) (string, error) {
	wire := make([]approvalJSON, len(approvals))
	for i, a := range approvals {
		wire[i] = approvalJSON{ApproverID: a.ApproverID, Timestamp: a.Timestamp}
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("marshal approvals: %w", err)
	}
	return string(b), nil
}

func unmarshalApprovals(raw string) ([]RecoveryApproval, error) {
	if raw == "" {
		return nil, nil
	}
	var wire []approvalJSON
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("unmarshal approvals: %w", err)
	}
	out := make([]RecoveryApproval, len(wire))
	for i, a := range wire {
		out[i] = RecoveryApproval{ApproverID: a.ApproverID, Timestamp: a.Timestamp}
	}
	return out, nil
}
