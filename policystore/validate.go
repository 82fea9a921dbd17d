// Validate performs structural and semantic checks on a configuration
// Document before it is published, enforcing that every duration and
// count is explicit and in range rather than silently defaulting.
package policystore

import (
	"fmt"

	"github.com/trustfabric/vaultcore/escrow"
)

// IssueSeverity indicates how serious a ValidationIssue is.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// ValidationIssue is a single structural or semantic problem found in a
// Document.
type ValidationIssue struct {
	Severity IssueSeverity
	Location string
	Message  string
}

// ValidationResult aggregates every issue found validating one Document.
type ValidationResult struct {
	Source string
	Valid  bool
	Issues []ValidationIssue
}

func (r *ValidationResult) addError(location, message string) {
	r.Valid = false
	r.Issues = append(r.Issues, ValidationIssue{Severity: SeverityError, Location: location, Message: message})
}

func (r *ValidationResult) addWarning(location, message string) {
	r.Issues = append(r.Issues, ValidationIssue{Severity: SeverityWarning, Location: location, Message: message})
}

// Validate checks doc's structural and semantic validity, returning
// every issue found (errors block publication; warnings do not).
func Validate(doc *Document, source string) ValidationResult {
	result := ValidationResult{Source: source, Valid: true}

	if doc.Version == "" {
		result.addError("version", "version is required")
	}

	for opType, p := range doc.ApprovalPolicies {
		loc := fmt.Sprintf("approval_policies[%s]", opType)
		if p.RequiredApprovals < 1 {
			result.addError(loc+".required_approvals", "must be >= 1")
		}
		if len(p.EligibleRoles) == 0 {
			result.addError(loc+".eligible_roles", "must name at least one eligible role")
		}
		if p.RequiredApprovals > len(p.EligibleRoles) {
			result.addWarning(loc, "required_approvals exceeds the number of named eligible roles; quorum may be unreachable if role-holders are sparse")
		}
		if p.Timeout <= 0 {
			result.addError(loc+".timeout", "must be a positive, explicit duration")
		}
		if p.TimeWindow != nil {
			for _, d := range p.TimeWindow.Days {
				if !isValidDayName(d) {
					result.addError(loc+".time_window.days", fmt.Sprintf("unknown weekday %q", d))
				}
			}
		}
	}

	for class, p := range doc.EscrowPolicies {
		loc := fmt.Sprintf("escrow_policies[%s]", class)
		if !escrow.EscrowClass(class).IsValid() {
			result.addError(loc, fmt.Sprintf("unknown escrow class %q", class))
		}
		if p.RequiredApprovers < 0 {
			result.addError(loc+".required_approvers", "must be >= 0 (0 only valid alongside emergency_bypass)")
		}
		if p.RequiredApprovers == 0 && !p.EmergencyBypass {
			result.addWarning(loc, "required_approvers is 0 but emergency_bypass is false; recovery can never reach quorum")
		}
		if p.Retention <= 0 {
			result.addError(loc+".retention", "must be a positive, explicit duration")
		}
	}

	tt := doc.ThreatThresholds
	if tt.OffBaselineStdDevMultiplier <= 0 {
		result.addError("threat_thresholds.off_baseline_stddev_multiplier", "must be > 0")
	}
	if tt.RapidFireCount <= 0 {
		result.addError("threat_thresholds.rapid_fire_count", "must be > 0")
	}
	if tt.RapidFireWindow <= 0 {
		result.addError("threat_thresholds.rapid_fire_window", "must be a positive, explicit duration")
	}
	if tt.HighRiskThreshold <= 0 || tt.HighRiskThreshold > 1 {
		result.addError("threat_thresholds.high_risk_threshold", "must be in (0, 1]")
	}
	if tt.BroadcastRiskThreshold < tt.HighRiskThreshold {
		result.addError("threat_thresholds.broadcast_risk_threshold", "must be >= high_risk_threshold")
	}

	bp := doc.Baseline
	if bp.MinSamples < 1 {
		result.addError("baseline.min_samples", "must be >= 1")
	}
	if bp.RefreshCadence <= 0 {
		result.addError("baseline.refresh_cadence", "must be a positive, explicit duration")
	}
	if bp.IdleInvalidation <= 0 {
		result.addError("baseline.idle_invalidation", "must be a positive, explicit duration")
	}

	return result
}

func isValidDayName(d string) bool {
	switch d {
	case "MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY", "SUNDAY":
		return true
	}
	return false
}
