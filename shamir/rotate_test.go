package shamir

import (
	"bytes"
	"context"
	"testing"
	"time"

	eventsinkmemory "github.com/trustfabric/vaultcore/eventsink/memory"
)

func TestRotate(t *testing.T) {
	ctx := context.Background()
	secret := testSecret(t)
	owners := []string{"alice", "bob", "carol", "dave", "erin"}

	original, err := NewShareSet("secret-1", secret, 3, 5, owners)
	if err != nil {
		t.Fatalf("NewShareSet() error = %v", err)
	}

	newSecret := make([]byte, 32)
	newSecret[0] = 0xff

	sink := eventsinkmemory.New()
	rotated, err := Rotate(ctx, original, newSecret, sink)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	if rotated.SecretID != original.SecretID {
		t.Errorf("Rotate() changed SecretID from %q to %q", original.SecretID, rotated.SecretID)
	}
	if original.Status != ShareSetRotated {
		t.Errorf("Rotate() old set status = %q, want rotated", original.Status)
	}
	if rotated.Status != ShareSetActive {
		t.Errorf("Rotate() new set status = %q, want active", rotated.Status)
	}

	got, err := Combine(rotated.Shares[:3], 3)
	if err != nil {
		t.Fatalf("Combine() on rotated shares error = %v", err)
	}
	if !bytes.Equal(padLeft(got, MaxSecretBytes), newSecret) {
		t.Errorf("Combine() on rotated shares = %x, want %x", got, newSecret)
	}

	events, err := sink.Query(ctx, "shamir", []string{"rotation"}, time.Time{}, 100)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != len(owners) {
		t.Errorf("Rotate() emitted %d events, want %d (one per owner)", len(events), len(owners))
	}
}
