package threat

import (
	"time"

	"github.com/trustfabric/vaultcore/eventsink"
)

// Risk-score additive factors: a base by kind, plus off-hours,
// weekend, failure, high-privilege, and new-IP contributions. Named
// here rather than left as inline magic numbers so policy reviews can
// point at a specific weight.
const (
	baseRiskDefault          = 0.10
	baseRiskCredentialAccess = 0.10
	baseRiskCredentialWrite  = 0.20
	baseRiskCredentialDelete = 0.30
	baseRiskVaultConfigure   = 0.30
	baseRiskUserManage       = 0.20
	baseRiskEmergencyRevoke  = 0.40
	baseRiskHSMOp            = 0.30

	riskFactorOffHours      = 0.20
	riskFactorWeekend       = 0.10
	riskFactorFailure       = 0.20
	riskFactorHighPrivilege = 0.20
	riskFactorNewIP         = 0.15
)

// offHoursStart and offHoursEnd bound the [0,6) off-hours window used
// both here and by the off-hours-privileged-action detector.
const (
	offHoursStart = 0
	offHoursEnd   = 6
)

func baseRiskForKind(kind string) float64 {
	switch kind {
	case "credential_access":
		return baseRiskCredentialAccess
	case "credential_create", "credential_update":
		return baseRiskCredentialWrite
	case "credential_delete":
		return baseRiskCredentialDelete
	case "vault_configure", "admin":
		return baseRiskVaultConfigure
	case "user_manage":
		return baseRiskUserManage
	case "emergency_revoke", "emergency_access":
		return baseRiskEmergencyRevoke
	case "hsm_op":
		return baseRiskHSMOp
	default:
		return baseRiskDefault
	}
}

func isHighPrivilegeKind(kind string) bool {
	switch kind {
	case "user_manage", "vault_configure", "emergency_revoke", "hsm_op", "credential_delete", "admin":
		return true
	}
	return false
}

func isOffHours(hour int) bool {
	return hour >= offHoursStart && hour < offHoursEnd
}

// ScoreEvent computes evt's additive risk score, clamped to [0,1].
// isNewIP should report whether evt's
// source IP is absent from the entity's baseline IP set (always true
// when no baseline exists yet).
func ScoreEvent(evt *eventsink.Event, isNewIP bool) float64 {
	score := baseRiskForKind(evt.Kind)

	hour := evt.Timestamp.Hour()
	if isOffHours(hour) {
		score += riskFactorOffHours
	}

	if weekday := evt.Timestamp.Weekday(); weekday == time.Saturday || weekday == time.Sunday {
		score += riskFactorWeekend
	}

	if evt.Outcome == eventsink.OutcomeFailure || evt.Outcome == eventsink.OutcomeDenied {
		score += riskFactorFailure
	}

	if isHighPrivilegeKind(evt.Kind) {
		score += riskFactorHighPrivilege
	}

	if isNewIP {
		score += riskFactorNewIP
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
