package threat

import (
	"testing"
	"time"
)

func TestBaseline_IsUsableRequiresMinSamples(t *testing.T) {
	b := newBaseline("entity-1")
	for i := 0; i < MinBaselineSamples-1; i++ {
		b.Observe(9, time.Monday, "10.0.0.1", "credential_access", time.Now())
	}
	if b.IsUsable() {
		t.Error("IsUsable() = true before MinBaselineSamples reached")
	}
	b.Observe(9, time.Monday, "10.0.0.1", "credential_access", time.Now())
	if !b.IsUsable() {
		t.Error("IsUsable() = false at MinBaselineSamples")
	}
}

func TestBaseline_HourMeanAndStdDev(t *testing.T) {
	b := newBaseline("entity-1")
	hours := []int{9, 9, 9, 10, 8}
	for _, h := range hours {
		b.Observe(h, time.Monday, "", "", time.Now())
	}
	if mean := b.HourMean(); mean < 8.5 || mean > 9.5 {
		t.Errorf("HourMean() = %v, want close to 9", mean)
	}
	if b.HourStdDev() <= 0 {
		t.Error("HourStdDev() = 0, want positive with varied samples")
	}
}

func TestBaseline_BoundedIPSetEvictsOldest(t *testing.T) {
	b := newBaseline("entity-1")
	for i := 0; i < BoundedIPSetSize+10; i++ {
		ip := "10.0.0." + string(rune('A'+i%26)) + string(rune('0'+i/26))
		b.Observe(9, time.Monday, ip, "credential_access", time.Now())
	}
	if len(b.ipSet) != BoundedIPSetSize {
		t.Errorf("len(ipSet) = %d, want %d", len(b.ipSet), BoundedIPSetSize)
	}
}

func TestBaseline_SeenIP(t *testing.T) {
	b := newBaseline("entity-1")
	b.Observe(9, time.Monday, "203.0.113.5", "credential_access", time.Now())
	if !b.SeenIP("203.0.113.5") {
		t.Error("SeenIP() = false for an observed IP")
	}
	if b.SeenIP("198.51.100.1") {
		t.Error("SeenIP() = true for an unobserved IP")
	}
}

func TestMemoryBaselineStore_GetOrCreate(t *testing.T) {
	s := NewMemoryBaselineStore()
	a := s.GetOrCreate("entity-1")
	b := s.GetOrCreate("entity-1")
	if a != b {
		t.Error("GetOrCreate() returned distinct baselines for the same entity")
	}
}
