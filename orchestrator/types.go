// Package orchestrator implements the vault's front door: every
// sensitive operation enters through Orchestrator.Submit, which routes
// it through session validation, policy-gated approval, threat
// feedback, execution, and an unconditional audit record using a
// parse -> authorize -> act -> log dispatch loop.
package orchestrator

import (
	"time"

	"github.com/trustfabric/vaultcore/approval"
	"github.com/trustfabric/vaultcore/threat"
)

// OperationKind enumerates the sensitive-operation kinds recognized by
// the Orchestrator.
type OperationKind string

const (
	OpCredentialAccess OperationKind = "credential_access"
	OpCredentialCreate OperationKind = "credential_create"
	OpCredentialUpdate OperationKind = "credential_update"
	OpCredentialDelete OperationKind = "credential_delete"
	OpVaultConfigure   OperationKind = "vault_configure"
	OpUserManage       OperationKind = "user_manage"
	OpBackupRestore    OperationKind = "backup_restore"
	OpEmergencyRevoke  OperationKind = "emergency_revoke"
	OpShareRecover     OperationKind = "share_recover"
	OpHSMOp            OperationKind = "hsm_op"
)

// IsValid reports whether k is a known OperationKind.
func (k OperationKind) IsValid() bool {
	switch k {
	case OpCredentialAccess, OpCredentialCreate, OpCredentialUpdate, OpCredentialDelete,
		OpVaultConfigure, OpUserManage, OpBackupRestore, OpEmergencyRevoke, OpShareRecover, OpHSMOp:
		return true
	}
	return false
}

// Request is one sensitive operation entering the Orchestrator: a
// kind, the acting session, an opaque structured payload, and call
// context.
type Request struct {
	Kind            OperationKind
	Payload         approval.Payload
	SessionToken    string // opaque clear token; "" if the caller is pre-authenticated out of band
	RequesterRegion string
	SourceIP        string
	UserAgent       string
	EmergencyOverride bool
}

// Outcome discriminates the three shapes a Submit call can return:
// executed, pending approval, or rejected.
type Outcome string

const (
	OutcomeExecuted        Outcome = "executed"
	OutcomePendingApproval Outcome = "pending_approval"
	OutcomeRejected        Outcome = "rejected"
)

// Result is the Orchestrator's response to one Request.
type Result struct {
	Outcome Outcome

	// ExecutionResult is set when Outcome == OutcomeExecuted.
	ExecutionResult string

	// RequestID is set when Outcome == OutcomePendingApproval, naming the
	// ApprovalEngine request a caller should poll or vote on.
	RequestID string

	// RejectReason is set when Outcome == OutcomeRejected.
	RejectReason string

	// Insights carries any high-risk threat insights surfaced while the
	// operation moved through the pipeline.
	Insights []*threat.Insight

	// AuditEventID is the canonical event id of the terminal audit
	// record written for this Request.
	AuditEventID string

	CompletedAt time.Time
}

// Stats is an operational snapshot of the Orchestrator: the executor
// registry size and the pending-vs-executed counters dashboards poll.
type Stats struct {
	// RegisteredExecutors is the number of OperationKinds with an
	// executor bound via RegisterExecutor.
	RegisteredExecutors int

	// PendingApprovals is the running count of Submit calls that
	// returned OutcomePendingApproval.
	PendingApprovals int64

	// Executed is the running count of Submit calls that returned
	// OutcomeExecuted, whether dispatched immediately or via quorum.
	Executed int64
}
