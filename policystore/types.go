// Package policystore implements the read-mostly PolicyStore component
// configuration surface: approval policies keyed by operation
// kind, escrow policies keyed by class, and the threat-detection
// thresholds and baseline parameters that the other four engines consult.
// Documents are YAML, loaded from AWS SSM Parameter Store and optionally
// KMS-signed for tamper evidence.
package policystore

import (
	"time"

	"github.com/trustfabric/vaultcore/approval"
	"github.com/trustfabric/vaultcore/escrow"
)

// ApprovalPolicyDoc is the on-disk/SSM form of an approval.PolicySnapshot,
// keyed by operation_type in the parent document.
type ApprovalPolicyDoc struct {
	RequiredApprovals int              `yaml:"required_approvals" json:"required_approvals"`
	EligibleRoles     []string         `yaml:"eligible_roles" json:"eligible_roles"`
	Timeout           time.Duration    `yaml:"timeout" json:"timeout"`
	EmergencyBypass   bool             `yaml:"emergency_bypass" json:"emergency_bypass"`
	TimeWindow        *TimeWindowDoc   `yaml:"time_window,omitempty" json:"time_window,omitempty"`
	AllowedRegions    []string         `yaml:"allowed_regions,omitempty" json:"allowed_regions,omitempty"`
}

// TimeWindowDoc mirrors approval.TimeWindow in document form.
type TimeWindowDoc struct {
	Days     []string        `yaml:"days,omitempty" json:"days,omitempty"`
	Hours    *HourRangeDoc   `yaml:"hours,omitempty" json:"hours,omitempty"`
	Timezone string          `yaml:"timezone,omitempty" json:"timezone,omitempty"`
}

// HourRangeDoc mirrors approval.HourRange.
type HourRangeDoc struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// ToSnapshot converts the document form into the approval engine's
// runtime PolicySnapshot for operationType.
func (d ApprovalPolicyDoc) ToSnapshot(operationType string) approval.PolicySnapshot {
	snap := approval.PolicySnapshot{
		OperationType:     operationType,
		RequiredApprovals: d.RequiredApprovals,
		EligibleRoles:     d.EligibleRoles,
		Timeout:           d.Timeout,
		EmergencyBypass:   d.EmergencyBypass,
		AllowedRegions:    d.AllowedRegions,
	}
	if d.TimeWindow != nil {
		tw := &approval.TimeWindow{Timezone: d.TimeWindow.Timezone}
		for _, day := range d.TimeWindow.Days {
			tw.Days = append(tw.Days, approval.Weekday(day))
		}
		if d.TimeWindow.Hours != nil {
			tw.Hours = &approval.HourRange{Start: d.TimeWindow.Hours.Start, End: d.TimeWindow.Hours.End}
		}
		snap.TimeWindow = tw
	}
	return snap
}

// EscrowPolicyDoc is the on-disk/SSM form of an escrow.EscrowPolicySnapshot,
// keyed by escrow class in the parent document.
type EscrowPolicyDoc struct {
	RequiredApprovers   int           `yaml:"required_approvers" json:"required_approvers"`
	EligibleRoles       []string      `yaml:"eligible_roles" json:"eligible_roles"`
	Retention           time.Duration `yaml:"retention" json:"retention"`
	NotificationTargets []string      `yaml:"notification_targets" json:"notification_targets"`
	EmergencyBypass     bool          `yaml:"emergency_bypass" json:"emergency_bypass"`
}

// ToSnapshot converts the document form into the escrow engine's runtime
// EscrowPolicySnapshot for class.
func (d EscrowPolicyDoc) ToSnapshot(class escrow.EscrowClass) escrow.EscrowPolicySnapshot {
	return escrow.EscrowPolicySnapshot{
		Class:               class,
		RequiredApprovers:   d.RequiredApprovers,
		EligibleRoles:       d.EligibleRoles,
		Retention:           d.Retention,
		NotificationTargets: d.NotificationTargets,
		EmergencyBypass:     d.EmergencyBypass,
	}
}

// ThreatThresholdDoc configures the real-time detector pipeline.
type ThreatThresholdDoc struct {
	OffBaselineStdDevMultiplier float64       `yaml:"off_baseline_stddev_multiplier" json:"off_baseline_stddev_multiplier"`
	RapidFireCount              int           `yaml:"rapid_fire_count" json:"rapid_fire_count"`
	RapidFireWindow              time.Duration `yaml:"rapid_fire_window" json:"rapid_fire_window"`
	FailedThenSuccessCount       int           `yaml:"failed_then_success_count" json:"failed_then_success_count"`
	FailedThenSuccessWindow      time.Duration `yaml:"failed_then_success_window" json:"failed_then_success_window"`
	PrivilegeChangeCount         int           `yaml:"privilege_change_count" json:"privilege_change_count"`
	PrivilegeChangeWindow        time.Duration `yaml:"privilege_change_window" json:"privilege_change_window"`
	OffHoursStart                int           `yaml:"off_hours_start" json:"off_hours_start"` // hour, inclusive
	OffHoursEnd                  int           `yaml:"off_hours_end" json:"off_hours_end"`     // hour, exclusive
	HighRiskThreshold             float64       `yaml:"high_risk_threshold" json:"high_risk_threshold"`
	BroadcastRiskThreshold        float64       `yaml:"broadcast_risk_threshold" json:"broadcast_risk_threshold"`
}

// BaselineParamDoc configures baseline maintenance.
type BaselineParamDoc struct {
	MinSamples      int           `yaml:"min_samples" json:"min_samples"`
	RefreshCadence  time.Duration `yaml:"refresh_cadence" json:"refresh_cadence"`
	IdleInvalidation time.Duration `yaml:"idle_invalidation" json:"idle_invalidation"`
	RecentIPCapacity int           `yaml:"recent_ip_capacity" json:"recent_ip_capacity"`
}

// Document is the full configuration surface: every approval
// policy keyed by operation kind, every escrow policy keyed by class,
// and the threat/baseline tuning parameters.
type Document struct {
	Version          string                         `yaml:"version" json:"version"`
	ApprovalPolicies map[string]ApprovalPolicyDoc   `yaml:"approval_policies" json:"approval_policies"`
	EscrowPolicies   map[string]EscrowPolicyDoc     `yaml:"escrow_policies" json:"escrow_policies"`
	ThreatThresholds ThreatThresholdDoc             `yaml:"threat_thresholds" json:"threat_thresholds"`
	Baseline         BaselineParamDoc               `yaml:"baseline" json:"baseline"`
}
