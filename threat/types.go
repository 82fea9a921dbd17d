// Package threat implements the threat and anomaly engine: a per-entity
// event stream processor maintaining rolling behavioral baselines,
// running a fixed pipeline of real-time anomaly detectors over every
// incoming canonical security event, and scoring each event's risk on
// an additive [0,1] scale.
package threat

import (
	"time"

	"github.com/trustfabric/vaultcore/eventsink"
)

// InsightKind names the detector or scoring path that produced an
// Insight, one constant per stage of the fixed real-time pipeline.
type InsightKind string

const (
	InsightOffBaselineAccessTime InsightKind = "off_baseline_access_time"
	InsightUnfamiliarSourceIP    InsightKind = "unfamiliar_source_ip"
	InsightRapidFireAccess       InsightKind = "rapid_fire_access"
	InsightFailedThenSuccess     InsightKind = "failed_then_success"
	InsightOffHoursPrivileged    InsightKind = "off_hours_privileged_action"
	InsightRapidPrivilegeChange  InsightKind = "rapid_privilege_change"
	InsightRiskScore             InsightKind = "risk_score"
)

// Insight is a risk-scored, human-readable conclusion produced by the
// engine for one or more correlated events.
type Insight struct {
	InsightID       string
	EntityID        string
	Kind            InsightKind
	Severity        eventsink.Severity
	Title           string
	Confidence      float64
	RiskScore       float64
	Description     string
	EventIDs        []string
	Recommendations []string
	DetectedAt      time.Time
	ExpiresAt       time.Time
	Validated       bool // set by a human reviewer confirming the finding
	FalsePositive   bool // set by a human reviewer dismissing it
	Broadcast       bool // true once risk ≥ BroadcastRiskThreshold
}

// BaselineUnavailable names the condition in which an entity has no
// usable Baseline yet (fewer than MinBaselineSamples observed).
// Detectors that need a baseline then return no insight and no error:
// a silent downgrade to pattern-only detection.
const BaselineUnavailable = "BASELINE_UNAVAILABLE"

// MinBaselineSamples is the minimum sample count before a Baseline is
// considered usable for the off-baseline-access-time detector.
const MinBaselineSamples = 50

// BoundedIPSetSize caps the number of distinct source IPs a Baseline
// remembers: the last 50 distinct.
const BoundedIPSetSize = 50

// GlobalRingCapacity and EntityRetention bound the event buffer: the
// last 10k events globally, the last 90 days per entity.
const (
	GlobalRingCapacity = 10000
	EntityRetention    = 90 * 24 * time.Hour
)

// HighRiskThreshold and BroadcastRiskThreshold are the risk-score
// cutoffs: 0.5 and above produces a risk insight, 0.7 and above also
// emits a broadcast event for external subscribers.
const (
	HighRiskThreshold      = 0.5
	BroadcastRiskThreshold = 0.7
)

// InsightTTL is how long an unreviewed Insight stays actionable before
// it expires.
const InsightTTL = 24 * time.Hour
