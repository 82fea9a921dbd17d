package threat

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/trustfabric/vaultcore/eventsink"
)

// detectionContext is the shared state every real-time detector reads;
// none of them mutate the buffer or baseline, keeping the fixed
// pipeline in detectors.go side-effect free on its inputs.
type detectionContext struct {
	ctx      context.Context
	buffer   Buffer
	baseline *Baseline // nil when BASELINE_UNAVAILABLE
	entityID string
	evt      *eventsink.Event
}

// detector is one stage of the fixed real-time pipeline. It returns
// nil, nil when it has nothing to report.
type detector func(dc *detectionContext) (*Insight, error)

// detectors is the fixed pipeline every incoming event runs through,
// in order.
var detectors = []detector{
	detectOffBaselineAccessTime,
	detectUnfamiliarSourceIP,
	detectRapidFireAccess,
	detectFailedThenSuccess,
	detectOffHoursPrivilegedAction,
	detectRapidPrivilegeChange,
}

// detectOffBaselineAccessTime flags access whose hour-of-day deviates
// more than 2.5 stddev from the entity's baseline.
func detectOffBaselineAccessTime(dc *detectionContext) (*Insight, error) {
	if dc.baseline == nil || !dc.baseline.IsUsable() {
		return nil, nil
	}
	stddev := dc.baseline.HourStdDev()
	if stddev == 0 {
		return nil, nil
	}
	hour := float64(dc.evt.Timestamp.Hour())
	deviation := math.Abs(hour-dc.baseline.HourMean()) / stddev
	if deviation <= 2.5 {
		return nil, nil
	}
	confidence := deviation / 5
	if confidence > 1.0 {
		confidence = 1.0
	}
	return &Insight{
		Kind:        InsightOffBaselineAccessTime,
		Severity:    eventsink.SeverityMedium,
		Title:       "Off-Baseline Access Time",
		Confidence:  confidence,
		Description: fmt.Sprintf("access at hour %.0f deviates %.2f stddev from baseline", hour, deviation),
		EventIDs:    []string{dc.evt.EventID},
		Recommendations: []string{
			"Confirm the entity's schedule changed before updating its baseline.",
		},
	}, nil
}

// detectUnfamiliarSourceIP flags events from a source IP absent from
// the entity's recent-IP set.
func detectUnfamiliarSourceIP(dc *detectionContext) (*Insight, error) {
	if dc.evt.SourceIP == nil || *dc.evt.SourceIP == "" {
		return nil, nil
	}
	if dc.baseline != nil && dc.baseline.IsUsable() && dc.baseline.SeenIP(*dc.evt.SourceIP) {
		return nil, nil
	}
	if dc.baseline == nil || !dc.baseline.IsUsable() {
		// No usable baseline means every IP is technically "unfamiliar";
		// a missing baseline downgrades silently to pattern-only
		// detection, so this detector stays quiet rather than
		// flagging every event.
		return nil, nil
	}
	return &Insight{
		Kind:        InsightUnfamiliarSourceIP,
		Severity:    eventsink.SeverityMedium,
		Title:       "Unfamiliar Source IP",
		Confidence:  0.8,
		Description: fmt.Sprintf("source IP %s not among entity's last %d distinct", *dc.evt.SourceIP, BoundedIPSetSize),
		EventIDs:    []string{dc.evt.EventID},
		Recommendations: []string{
			"Verify the source network is expected for this entity.",
		},
	}, nil
}

// detectRapidFireAccess flags more than 10 credential_access events by
// one actor inside 5 minutes.
func detectRapidFireAccess(dc *detectionContext) (*Insight, error) {
	if dc.evt.Kind != "credential_access" {
		return nil, nil
	}
	count, err := dc.buffer.CountSince(dc.ctx, dc.entityID, "credential_access", dc.evt.Timestamp.Add(-5*time.Minute))
	if err != nil {
		return nil, err
	}
	if count <= 10 {
		return nil, nil
	}
	return &Insight{
		Kind:        InsightRapidFireAccess,
		Severity:    eventsink.SeverityHigh,
		Title:       "Rapid-Fire Credential Access",
		Confidence:  0.9,
		Description: fmt.Sprintf("%d credential_access events in the last 5 minutes", count),
		EventIDs:    []string{dc.evt.EventID},
		Recommendations: []string{
			"Suspend the actor's sessions if no batch job explains the burst.",
		},
	}, nil
}

// detectFailedThenSuccess flags a successful credential access preceded
// within 30 minutes by 3 or more failures from the same actor.
func detectFailedThenSuccess(dc *detectionContext) (*Insight, error) {
	if dc.evt.Kind != "credential_access" || dc.evt.Outcome != eventsink.OutcomeSuccess {
		return nil, nil
	}
	recent, err := dc.buffer.Recent(dc.ctx, dc.entityID, perEntityCapacity)
	if err != nil {
		return nil, err
	}
	since := dc.evt.Timestamp.Add(-30 * time.Minute)
	failures := 0
	eventIDs := []string{dc.evt.EventID}
	for _, evt := range recent {
		if evt.EventID == dc.evt.EventID {
			continue
		}
		if evt.Timestamp.Before(since) || evt.Timestamp.After(dc.evt.Timestamp) {
			continue
		}
		if evt.Kind == "credential_access" && evt.Outcome == eventsink.OutcomeFailure {
			failures++
			eventIDs = append(eventIDs, evt.EventID)
		}
	}
	if failures < 3 {
		return nil, nil
	}
	return &Insight{
		Kind:        InsightFailedThenSuccess,
		Severity:    eventsink.SeverityHigh,
		Title:       "Failed-Then-Success Access Pattern",
		Confidence:  0.85,
		RiskScore:   0.75,
		Description: fmt.Sprintf("successful access preceded by %d failures within 30 minutes; potential brute-force", failures),
		EventIDs:    eventIDs,
		Recommendations: []string{
			"Rotate the credential and review the actor's recent authentications.",
		},
	}, nil
}

// detectOffHoursPrivilegedAction flags privileged operations performed
// in the off-hours window.
func detectOffHoursPrivilegedAction(dc *detectionContext) (*Insight, error) {
	switch dc.evt.Kind {
	case "admin", "create", "delete",
		"user_manage", "credential_create", "credential_delete", "vault_configure":
	default:
		return nil, nil
	}
	hour := dc.evt.Timestamp.Hour()
	if !isOffHours(hour) {
		return nil, nil
	}
	return &Insight{
		Kind:        InsightOffHoursPrivileged,
		Severity:    eventsink.SeverityMedium,
		Title:       "Off-Hours Administrative Activity",
		Confidence:  0.7,
		RiskScore:   0.6,
		Description: fmt.Sprintf("privileged operation %q performed at hour %d", dc.evt.Kind, hour),
		EventIDs:    []string{dc.evt.EventID},
		Recommendations: []string{
			"Verify this administrative action was authorized for this time window.",
		},
	}, nil
}

// detectRapidPrivilegeChange flags 2 or more permission-grant events
// for the same subject inside an hour.
func detectRapidPrivilegeChange(dc *detectionContext) (*Insight, error) {
	if dc.evt.Kind != "user_manage" {
		return nil, nil
	}
	count, err := dc.buffer.CountSince(dc.ctx, dc.entityID, "user_manage", dc.evt.Timestamp.Add(-time.Hour))
	if err != nil {
		return nil, err
	}
	if count < 2 {
		return nil, nil
	}
	return &Insight{
		Kind:        InsightRapidPrivilegeChange,
		Severity:    eventsink.SeverityHigh,
		Title:       "Rapid Privilege Change",
		Confidence:  0.85,
		Description: fmt.Sprintf("%d permission-grant events for the same subject within 1 hour", count),
		EventIDs:    []string{dc.evt.EventID},
		Recommendations: []string{
			"Confirm both grants trace to an approved change request.",
		},
	}, nil
}

