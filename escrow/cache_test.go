package escrow

import (
	"bytes"
	"testing"
	"time"
)

func TestPlaintextCache_TakeOnce(t *testing.T) {
	c := NewPlaintextCache()
	c.Put("rec-1", []byte("recovered secret"))

	got, ok := c.Take("rec-1")
	if !ok {
		t.Fatal("Take() first call ok = false, want true")
	}
	if !bytes.Equal(got, []byte("recovered secret")) {
		t.Errorf("Take() = %q, want %q", got, "recovered secret")
	}

	_, ok = c.Take("rec-1")
	if ok {
		t.Error("Take() second call ok = true, want false (must release exactly once)")
	}
}

func TestPlaintextCache_TakeMissing(t *testing.T) {
	c := NewPlaintextCache()
	if _, ok := c.Take("nonexistent"); ok {
		t.Error("Take() on missing key ok = true, want false")
	}
}

func TestPlaintextCache_SweepExpired(t *testing.T) {
	c := NewPlaintextCache()
	c.Put("rec-1", []byte("secret"))
	c.slots["rec-1"].expiresAt = time.Now().Add(-time.Minute)

	swept := c.sweepExpired(time.Now())
	if swept != 1 {
		t.Errorf("sweepExpired() = %d, want 1", swept)
	}
	if _, ok := c.Take("rec-1"); ok {
		t.Error("Take() after sweep ok = true, want false")
	}
}
