package escrow

import (
	"context"
	"sync"
)

// MemoryCredentialStore implements CredentialStore in-process, for tests
// and single-process deployments. Safe for concurrent use.
type MemoryCredentialStore struct {
	mu          sync.Mutex
	credentials map[string]*EscrowedCredential
}

// NewMemoryCredentialStore returns an empty MemoryCredentialStore.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{credentials: make(map[string]*EscrowedCredential)}
}

func cloneCredential(c *EscrowedCredential) *EscrowedCredential {
	cp := *c
	cp.Contacts = append([]string(nil), c.Contacts...)
	cp.Ciphertext = append([]byte(nil), c.Ciphertext...)
	return &cp
}

func (s *MemoryCredentialStore) Create(ctx context.Context, c *EscrowedCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.credentials[c.EscrowID]; exists {
		return ErrEscrowExists
	}
	c.Version = 1
	s.credentials[c.EscrowID] = cloneCredential(c)
	return nil
}

func (s *MemoryCredentialStore) Get(ctx context.Context, escrowID string) (*EscrowedCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[escrowID]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return cloneCredential(c), nil
}

func (s *MemoryCredentialStore) Update(ctx context.Context, c *EscrowedCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.credentials[c.EscrowID]
	if !ok {
		return ErrEscrowNotFound
	}
	if existing.Version != c.Version {
		return ErrConcurrentModification
	}
	c.Version++
	s.credentials[c.EscrowID] = cloneCredential(c)
	return nil
}

func (s *MemoryCredentialStore) ListByStatus(ctx context.Context, status EscrowStatus, limit int) ([]*EscrowedCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit = clampLimit(limit)

	out := make([]*EscrowedCredential, 0, limit)
	for _, c := range s.credentials {
		if c.Status == status {
			out = append(out, cloneCredential(c))
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryCredentialStore) ListByOwner(ctx context.Context, owner string, limit int) ([]*EscrowedCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit = clampLimit(limit)

	out := make([]*EscrowedCredential, 0, limit)
	for _, c := range s.credentials {
		if c.Owner == owner {
			out = append(out, cloneCredential(c))
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// MemoryRecoveryStore implements RecoveryStore in-process. Safe for
// concurrent use.
type MemoryRecoveryStore struct {
	mu        sync.Mutex
	recoveries map[string]*RecoveryRequest
}

// NewMemoryRecoveryStore returns an empty MemoryRecoveryStore.
func NewMemoryRecoveryStore() *MemoryRecoveryStore {
	return &MemoryRecoveryStore{recoveries: make(map[string]*RecoveryRequest)}
}

func cloneRecovery(r *RecoveryRequest) *RecoveryRequest {
	cp := *r
	cp.EligibleApproverIDs = append([]string(nil), r.EligibleApproverIDs...)
	cp.Approvals = append([]RecoveryApproval(nil), r.Approvals...)
	return &cp
}

func (s *MemoryRecoveryStore) Create(ctx context.Context, r *RecoveryRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.recoveries[r.RecoveryID]; exists {
		return ErrRecoveryExists
	}
	r.Version = 1
	s.recoveries[r.RecoveryID] = cloneRecovery(r)
	return nil
}

func (s *MemoryRecoveryStore) Get(ctx context.Context, recoveryID string) (*RecoveryRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recoveries[recoveryID]
	if !ok {
		return nil, ErrRecoveryNotFound
	}
	return cloneRecovery(r), nil
}

func (s *MemoryRecoveryStore) Update(ctx context.Context, r *RecoveryRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.recoveries[r.RecoveryID]
	if !ok {
		return ErrRecoveryNotFound
	}
	if existing.Version != r.Version {
		return ErrConcurrentModification
	}
	r.Version++
	s.recoveries[r.RecoveryID] = cloneRecovery(r)
	return nil
}

func (s *MemoryRecoveryStore) ListByStatus(ctx context.Context, status RecoveryStatus, limit int) ([]*RecoveryRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit = clampLimit(limit)

	out := make([]*RecoveryRequest, 0, limit)
	for _, r := range s.recoveries {
		if r.Status == status {
			out = append(out, cloneRecovery(r))
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryRecoveryStore) ListByEscrow(ctx context.Context, escrowID string, limit int) ([]*RecoveryRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit = clampLimit(limit)

	out := make([]*RecoveryRequest, 0, limit)
	for _, r := range s.recoveries {
		if r.EscrowID == escrowID {
			out = append(out, cloneRecovery(r))
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
