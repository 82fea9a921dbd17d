package threat

import (
	"testing"
	"time"

	"github.com/trustfabric/vaultcore/eventsink"
)

func TestScoreEvent_BusinessHoursSuccessIsLowRisk(t *testing.T) {
	evt := &eventsink.Event{
		Kind:      "credential_access",
		Outcome:   eventsink.OutcomeSuccess,
		Timestamp: time.Date(2026, 7, 27, 14, 0, 0, 0, time.UTC), // Monday, 2pm
	}
	score := ScoreEvent(evt, false)
	if score != baseRiskCredentialAccess {
		t.Errorf("ScoreEvent() = %v, want base risk %v", score, baseRiskCredentialAccess)
	}
}

func TestScoreEvent_AccumulatesFactorsAndClamps(t *testing.T) {
	evt := &eventsink.Event{
		Kind:      "emergency_revoke",
		Outcome:   eventsink.OutcomeFailure,
		Timestamp: time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC), // Saturday, 2am
	}
	score := ScoreEvent(evt, true)
	if score != 1.0 {
		t.Errorf("ScoreEvent() = %v, want clamped 1.0", score)
	}
}

func TestScoreEvent_NewIPAddsRisk(t *testing.T) {
	base := &eventsink.Event{
		Kind:      "credential_access",
		Outcome:   eventsink.OutcomeSuccess,
		Timestamp: time.Date(2026, 7, 27, 14, 0, 0, 0, time.UTC),
	}
	withNewIP := ScoreEvent(base, true)
	withoutNewIP := ScoreEvent(base, false)
	if withNewIP-withoutNewIP != riskFactorNewIP {
		t.Errorf("new-IP delta = %v, want %v", withNewIP-withoutNewIP, riskFactorNewIP)
	}
}

func TestIsOffHours(t *testing.T) {
	cases := map[int]bool{0: true, 3: true, 5: true, 6: false, 12: false, 23: false}
	for hour, want := range cases {
		if got := isOffHours(hour); got != want {
			t.Errorf("isOffHours(%d) = %v, want %v", hour, got, want)
		}
	}
}
