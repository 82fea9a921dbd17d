package escrow

import (
	"context"
	"testing"
)

func TestMemoryCredentialStore_CreateGetUpdate(t *testing.T) {
	s := NewMemoryCredentialStore()
	ctx := context.Background()

	c := &EscrowedCredential{EscrowID: "esc-1", Status: EscrowStatusActive, Owner: "agent-1"}
	if err := s.Create(ctx, c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := s.Get(ctx, "esc-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}

	got.Status = EscrowStatusRecovered
	if err := s.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	again, _ := s.Get(ctx, "esc-1")
	if again.Status != EscrowStatusRecovered {
		t.Errorf("Status after Update() = %v, want RECOVERED", again.Status)
	}
}

func TestMemoryCredentialStore_DuplicateCreate(t *testing.T) {
	s := NewMemoryCredentialStore()
	ctx := context.Background()
	_ = s.Create(ctx, &EscrowedCredential{EscrowID: "esc-1"})
	if err := s.Create(ctx, &EscrowedCredential{EscrowID: "esc-1"}); err != ErrEscrowExists {
		t.Errorf("Create() duplicate error = %v, want ErrEscrowExists", err)
	}
}

func TestMemoryCredentialStore_OptimisticConcurrency(t *testing.T) {
	s := NewMemoryCredentialStore()
	ctx := context.Background()
	_ = s.Create(ctx, &EscrowedCredential{EscrowID: "esc-1"})

	a, _ := s.Get(ctx, "esc-1")
	b, _ := s.Get(ctx, "esc-1")

	_ = s.Update(ctx, a)
	if err := s.Update(ctx, b); err != ErrConcurrentModification {
		t.Errorf("Update() stale version error = %v, want ErrConcurrentModification", err)
	}
}

func TestMemoryRecoveryStore_ListByEscrow(t *testing.T) {
	s := NewMemoryRecoveryStore()
	ctx := context.Background()
	_ = s.Create(ctx, &RecoveryRequest{RecoveryID: "rec-1", EscrowID: "esc-1", Status: RecoveryStatusPending})
	_ = s.Create(ctx, &RecoveryRequest{RecoveryID: "rec-2", EscrowID: "esc-2", Status: RecoveryStatusPending})

	got, err := s.ListByEscrow(ctx, "esc-1", 10)
	if err != nil {
		t.Fatalf("ListByEscrow() error = %v", err)
	}
	if len(got) != 1 || got[0].RecoveryID != "rec-1" {
		t.Errorf("ListByEscrow() = %+v, want only rec-1", got)
	}
}
