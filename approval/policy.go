package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/trustfabric/vaultcore/vaulterrors"
)

// Weekday is an ISO-ish weekday name used by TimeWindow, independent of
// Go's time.Weekday so policy documents are stable across locales.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

// IsValid reports whether d is a known Weekday value.
func (d Weekday) IsValid() bool {
	switch d {
	case Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday:
		return true
	}
	return false
}

func fromGoWeekday(d time.Weekday) Weekday {
	return [...]Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}[d]
}

// HourRange restricts a TimeWindow to a half-open [Start, End) daily
// interval expressed as "HH:MM".
type HourRange struct {
	Start string
	End   string
}

// TimeWindow restricts when a request may be created or approved, per
// the policy's time and geography restrictions. A nil TimeWindow, or one with
// empty Days/Hours, imposes no restriction.
type TimeWindow struct {
	Days     []Weekday
	Hours    *HourRange
	Timezone string // IANA name; "" means UTC
}

// Matches reports whether t falls within w. A nil w always matches.
func (w *TimeWindow) Matches(t time.Time) bool {
	if w == nil {
		return true
	}
	evalTime := t
	if w.Timezone != "" {
		if loc, err := time.LoadLocation(w.Timezone); err == nil {
			evalTime = t.In(loc)
		}
	}
	if len(w.Days) > 0 {
		found := false
		today := fromGoWeekday(evalTime.Weekday())
		for _, d := range w.Days {
			if d == today {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if w.Hours != nil {
		startH, startM := parseHourMinute(w.Hours.Start)
		endH, endM := parseHourMinute(w.Hours.End)
		reqMinutes := evalTime.Hour()*60 + evalTime.Minute()
		startMinutes := startH*60 + startM
		endMinutes := endH*60 + endM
		if reqMinutes < startMinutes || reqMinutes >= endMinutes {
			return false
		}
	}
	return true
}

func parseHourMinute(s string) (hour, minute int) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0
	}
	hour = int(s[0]-'0')*10 + int(s[1]-'0')
	minute = int(s[3]-'0')*10 + int(s[4]-'0')
	return hour, minute
}

// PolicyResolver looks up the current approval policy for an operation
// type, supplied by the policystore package in production and a static
// map in tests.
type PolicyResolver interface {
	ResolveApprovalPolicy(ctx context.Context, operationType string) (PolicySnapshot, error)
}

// ApproverSource enumerates the current role-holders eligible to approve
// requests of a given set of roles, checks capability membership, and
// resolves a signer's registered public key and algorithm. Implemented
// over identity.Manager in production.
type ApproverSource interface {
	ListEligible(ctx context.Context, roles []string) ([]string, error)
	HasCapability(ctx context.Context, identityID, capability string) (bool, error)

	// GetRegisteredKey returns the public key and algorithm registered
	// against identityID's identity. SubmitVote checks a submitted
	// ApprovalSignature's key and algorithm against this before running
	// VerifySignature, so a vote can only ever be verified under the
	// key the signer actually registered, never one an
	// impersonator supplies alongside a stolen signer_id.
	GetRegisteredKey(ctx context.Context, identityID string) (publicKey []byte, algorithm Algorithm, err error)
}

// EmergencyApproverCapability is the capability name required, in
// addition to policy permission, to bypass quorum: override requires
// BOTH policy.EmergencyBypass AND the requester holding this
// capability. Neither alone is sufficient.
const EmergencyApproverCapability = "emergency_approver"

// checkTimeRestriction returns a PolicyViolation error if t does not fall
// within snapshot's TimeWindow.
func checkTimeRestriction(snapshot PolicySnapshot, t time.Time) error {
	if !snapshot.TimeWindow.Matches(t) {
		return vaulterrors.New(vaulterrors.ErrCodePolicyViolation, "request creation time falls outside the policy's allowed time window", vaulterrors.GetSuggestion(vaulterrors.ErrCodePolicyViolation), nil)
	}
	return nil
}

// checkGeoRestriction returns a PolicyViolation error if region is
// non-empty and not present in snapshot's AllowedRegions.
func checkGeoRestriction(snapshot PolicySnapshot, region string) error {
	if len(snapshot.AllowedRegions) == 0 || region == "" {
		return nil
	}
	for _, r := range snapshot.AllowedRegions {
		if r == region {
			return nil
		}
	}
	return vaulterrors.New(vaulterrors.ErrCodePolicyViolation, fmt.Sprintf("region %q is not permitted by policy", region), vaulterrors.GetSuggestion(vaulterrors.ErrCodePolicyViolation), nil)
}
