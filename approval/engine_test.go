package approval

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"testing"
	"time"

	"github.com/trustfabric/vaultcore/vaulterrors"
)

type fakePolicyResolver struct {
	snapshot PolicySnapshot
	err      error
}

func (f *fakePolicyResolver) ResolveApprovalPolicy(ctx context.Context, operationType string) (PolicySnapshot, error) {
	if f.err != nil {
		return PolicySnapshot{}, f.err
	}
	snap := f.snapshot
	snap.OperationType = operationType
	return snap, nil
}

type registeredKey struct {
	pub []byte
	alg Algorithm
}

type fakeApproverSource struct {
	eligible     []string
	capabilities map[string]map[string]bool
	keys         map[string]registeredKey
}

func (f *fakeApproverSource) ListEligible(ctx context.Context, roles []string) ([]string, error) {
	return f.eligible, nil
}

func (f *fakeApproverSource) HasCapability(ctx context.Context, identityID, capability string) (bool, error) {
	caps, ok := f.capabilities[identityID]
	if !ok {
		return false, nil
	}
	return caps[capability], nil
}

// GetRegisteredKey returns the key registered for identityID, mirroring
// IdentityApproverSource's lookup against the signer's own Identity rather
// than whatever key a submitted signature happens to carry.
func (f *fakeApproverSource) GetRegisteredKey(ctx context.Context, identityID string) ([]byte, Algorithm, error) {
	k, ok := f.keys[identityID]
	if !ok {
		return nil, "", fmt.Errorf("fakeApproverSource: no registered key for %s", identityID)
	}
	return k.pub, k.alg, nil
}

func (f *fakeApproverSource) registerKey(identityID string, pub []byte, alg Algorithm) {
	if f.keys == nil {
		f.keys = map[string]registeredKey{}
	}
	f.keys[identityID] = registeredKey{pub: pub, alg: alg}
}

type approver struct {
	id   string
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// newApprover generates id's Ed25519 keypair and registers the public half
// with approvers, the way RegisterAgent registers an Identity's key at
// enrollment: SubmitVote checks a vote's signature against this registered
// key, not whatever key the vote itself claims to carry.
func newApprover(t *testing.T, approvers *fakeApproverSource, id string) approver {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	approvers.registerKey(id, pub, AlgorithmEd25519)
	return approver{id: id, pub: pub, priv: priv}
}

func newTestEngine(requiredApprovals int, eligible []string) (*Engine, *fakeApproverSource) {
	policies := &fakePolicyResolver{snapshot: PolicySnapshot{
		RequiredApprovals: requiredApprovals,
		EligibleRoles:     []string{"security_admin"},
		Timeout:           time.Hour,
	}}
	approvers := &fakeApproverSource{eligible: eligible, capabilities: map[string]map[string]bool{}}
	return NewEngine(NewMemoryStore(), policies, approvers, nil), approvers
}

func TestEngine_CreateRequest_FreezesEligibleApprovers(t *testing.T) {
	e, _ := newTestEngine(2, []string{"approver-1", "approver-2", "approver-3"})
	r, err := e.CreateRequest(context.Background(), "credential_delete", Payload{"credential_id": StringValue("cred-1")}, "requester-1", "", false)
	if err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	if r.Status != StatusPending {
		t.Errorf("Status = %v, want PENDING", r.Status)
	}
	if len(r.EligibleApproverIDs) != 3 {
		t.Errorf("EligibleApproverIDs = %v, want 3 entries", r.EligibleApproverIDs)
	}
	if r.RequiredApprovals != 2 {
		t.Errorf("RequiredApprovals = %d, want 2", r.RequiredApprovals)
	}
}

func TestEngine_SubmitVote_ReachesQuorum(t *testing.T) {
	e, approvers := newTestEngine(2, []string{"approver-1", "approver-2"})
	ctx := context.Background()
	r, err := e.CreateRequest(ctx, "credential_delete", Payload{"credential_id": StringValue("cred-1")}, "requester-1", "", false)
	if err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}

	a1 := newApprover(t, approvers, "approver-1")
	a2 := newApprover(t, approvers, "approver-2")

	sig1, err := SignEd25519(r, a1.id, a1.priv, a1.pub)
	if err != nil {
		t.Fatalf("SignEd25519() error = %v", err)
	}
	r, err = e.SubmitVote(ctx, r.RequestID, a1.id, VoteApprove, sig1)
	if err != nil {
		t.Fatalf("SubmitVote() error = %v", err)
	}
	if r.Status != StatusPending {
		t.Errorf("Status after 1 of 2 approvals = %v, want PENDING", r.Status)
	}

	sig2, err := SignEd25519(r, a2.id, a2.priv, a2.pub)
	if err != nil {
		t.Fatalf("SignEd25519() error = %v", err)
	}
	r, err = e.SubmitVote(ctx, r.RequestID, a2.id, VoteApprove, sig2)
	if err != nil {
		t.Fatalf("SubmitVote() error = %v", err)
	}
	if r.Status != StatusApproved {
		t.Errorf("Status after 2 of 2 approvals = %v, want APPROVED", r.Status)
	}
}

func TestEngine_SubmitVote_RejectsDuplicateVote(t *testing.T) {
	e, approvers := newTestEngine(2, []string{"approver-1"})
	ctx := context.Background()
	r, _ := e.CreateRequest(ctx, "credential_delete", Payload{}, "requester-1", "", false)

	a1 := newApprover(t, approvers, "approver-1")
	sig, _ := SignEd25519(r, a1.id, a1.priv, a1.pub)

	if _, err := e.SubmitVote(ctx, r.RequestID, a1.id, VoteApprove, sig); err != nil {
		t.Fatalf("first SubmitVote() error = %v", err)
	}
	if _, err := e.SubmitVote(ctx, r.RequestID, a1.id, VoteApprove, sig); err == nil {
		t.Error("second SubmitVote() from the same signer should be rejected as a duplicate vote")
	}
}

func TestEngine_SubmitVote_RejectsIneligibleSigner(t *testing.T) {
	e, approvers := newTestEngine(1, []string{"approver-1"})
	ctx := context.Background()
	r, _ := e.CreateRequest(ctx, "credential_delete", Payload{}, "requester-1", "", false)

	outsider := newApprover(t, approvers, "outsider")
	sig, _ := SignEd25519(r, outsider.id, outsider.priv, outsider.pub)

	if _, err := e.SubmitVote(ctx, r.RequestID, outsider.id, VoteApprove, sig); err == nil {
		t.Error("SubmitVote() from a non-eligible signer should be rejected")
	}
}

func TestEngine_SubmitVote_RejectsBadSignature(t *testing.T) {
	e, approvers := newTestEngine(1, []string{"approver-1"})
	ctx := context.Background()
	r, _ := e.CreateRequest(ctx, "credential_delete", Payload{}, "requester-1", "", false)

	a1 := newApprover(t, approvers, "approver-1")
	other := newApprover(t, approvers, "other")
	// Sign with a different key than the one embedded in the signature,
	// but still claim a1's registered public key in SignerPublicKey: the
	// signature bytes themselves don't verify under that key.
	sig, _ := SignEd25519(r, a1.id, other.priv, a1.pub)

	if _, err := e.SubmitVote(ctx, r.RequestID, a1.id, VoteApprove, sig); err == nil {
		t.Error("SubmitVote() with a signature from the wrong key should fail verification")
	}
}

// TestEngine_SubmitVote_RejectsImpersonationWithOwnKey proves that knowing
// an eligible signer_id is not enough to forge their vote: an attacker who
// generates a brand-new, internally-consistent keypair and signs under it
// must still be rejected, because SubmitVote checks the signature's key
// against approver-1's registered key, not merely against itself.
func TestEngine_SubmitVote_RejectsImpersonationWithOwnKey(t *testing.T) {
	e, approvers := newTestEngine(1, []string{"approver-1"})
	ctx := context.Background()
	r, _ := e.CreateRequest(ctx, "credential_delete", Payload{}, "requester-1", "", false)

	// approver-1's real, registered keypair never signs anything here.
	newApprover(t, approvers, "approver-1")

	// The attacker mints their own fresh, self-consistent keypair and
	// signs under it, claiming to be approver-1.
	attacker := newApprover(t, approvers, "attacker")
	forged, err := SignEd25519(r, "approver-1", attacker.priv, attacker.pub)
	if err != nil {
		t.Fatalf("SignEd25519() error = %v", err)
	}

	if _, err := e.SubmitVote(ctx, r.RequestID, "approver-1", VoteApprove, forged); err == nil {
		t.Error("SubmitVote() with a self-consistent but unregistered keypair should be rejected as impersonation")
	}
}

func TestEngine_SubmitVote_SingleRejectionTerminatesRequest(t *testing.T) {
	e, approvers := newTestEngine(2, []string{"approver-1", "approver-2"})
	ctx := context.Background()
	r, _ := e.CreateRequest(ctx, "credential_delete", Payload{}, "requester-1", "", false)

	a1 := newApprover(t, approvers, "approver-1")
	sig, _ := SignEd25519(r, a1.id, a1.priv, a1.pub)

	r, err := e.SubmitVote(ctx, r.RequestID, a1.id, VoteReject, sig)
	if err != nil {
		t.Fatalf("SubmitVote() error = %v", err)
	}
	if r.Status != StatusRejected {
		t.Errorf("Status = %v, want REJECTED", r.Status)
	}
}

func TestEngine_Execute_IsIdempotent(t *testing.T) {
	e, approvers := newTestEngine(1, []string{"approver-1"})
	ctx := context.Background()
	r, _ := e.CreateRequest(ctx, "credential_delete", Payload{}, "requester-1", "", false)

	a1 := newApprover(t, approvers, "approver-1")
	sig, _ := SignEd25519(r, a1.id, a1.priv, a1.pub)
	r, err := e.SubmitVote(ctx, r.RequestID, a1.id, VoteApprove, sig)
	if err != nil {
		t.Fatalf("SubmitVote() error = %v", err)
	}

	calls := 0
	e.Executors().Register("credential_delete", ExecutorFunc(func(ctx context.Context, r *Request) (string, error) {
		calls++
		return "deleted", nil
	}))

	r, err = e.Execute(ctx, r.RequestID)
	if err != nil {
		t.Fatalf("first Execute() error = %v", err)
	}
	if r.Status != StatusExecuted || r.ExecutionResult != "deleted" {
		t.Errorf("Execute() result = %+v", r)
	}

	if _, err := e.Execute(ctx, r.RequestID); err != nil {
		t.Fatalf("second Execute() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("executor called %d times, want 1 (Execute must be idempotent)", calls)
	}
}

func TestEngine_Execute_NoExecutorRegistered(t *testing.T) {
	e, approvers := newTestEngine(1, []string{"approver-1"})
	ctx := context.Background()
	r, _ := e.CreateRequest(ctx, "unregistered_op", Payload{}, "requester-1", "", false)

	a1 := newApprover(t, approvers, "approver-1")
	sig, _ := SignEd25519(r, a1.id, a1.priv, a1.pub)
	r, _ = e.SubmitVote(ctx, r.RequestID, a1.id, VoteApprove, sig)

	if _, err := e.Execute(ctx, r.RequestID); err == nil {
		t.Error("Execute() with no registered executor should return an error")
	}
}

func TestEngine_CreateRequest_EmergencyOverrideRequiresCapability(t *testing.T) {
	policies := &fakePolicyResolver{snapshot: PolicySnapshot{RequiredApprovals: 2, EmergencyBypass: true, Timeout: time.Hour}}
	approvers := &fakeApproverSource{
		eligible:     []string{"approver-1"},
		capabilities: map[string]map[string]bool{"requester-1": {EmergencyApproverCapability: true}},
	}
	e := NewEngine(NewMemoryStore(), policies, approvers, nil)
	ctx := context.Background()

	r, err := e.CreateRequest(ctx, "emergency_revoke", Payload{}, "requester-1", "", true)
	if err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	if r.Status != StatusApproved || !r.EmergencyOverride {
		t.Errorf("CreateRequest() = %+v, want immediate APPROVED with EmergencyOverride set", r)
	}

	r2, err := e.CreateRequest(ctx, "emergency_revoke", Payload{}, "requester-without-capability", "", true)
	if vaulterrors.Code(err) != vaulterrors.ErrCodeCapabilityMissing {
		t.Errorf("CreateRequest() without capability = (%+v, %v), want CAPABILITY_MISSING error", r2, err)
	}
}

func TestExpirySweeper_ExpiresPastDueRequests(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Create(ctx, &Request{
		RequestID: "req_1",
		Status:    StatusPending,
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	_ = store.Create(ctx, &Request{
		RequestID: "req_2",
		Status:    StatusPending,
		ExpiresAt: time.Now().Add(time.Hour),
	})

	sweeper := NewExpirySweeper(store, nil, time.Hour, 100)
	n := sweeper.SweepOnce(ctx)
	if n != 1 {
		t.Errorf("SweepOnce() expired %d requests, want 1", n)
	}

	r1, _ := store.Get(ctx, "req_1")
	if r1.Status != StatusExpired {
		t.Errorf("req_1 status = %v, want EXPIRED", r1.Status)
	}
	r2, _ := store.Get(ctx, "req_2")
	if r2.Status != StatusPending {
		t.Errorf("req_2 status = %v, want still PENDING", r2.Status)
	}
}
