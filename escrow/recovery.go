package escrow

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/trustfabric/vaultcore/eventsink"
	"github.com/trustfabric/vaultcore/keyoracle"
	"github.com/trustfabric/vaultcore/vaulterrors"
)

// InitiateWindow is the fixed validity window a recovery request has to
// collect approvals before it expires.
const InitiateWindow = 24 * time.Hour

// Engine is the credential escrow and recovery engine: it envelope-
// encrypts credential plaintext for durable custody and gates its return
// behind a multi-approver recovery workflow.
type Engine struct {
	credentials CredentialStore
	recoveries  RecoveryStore
	policies    PolicyResolver
	approvers   ApproverSource
	oracle      keyoracle.KeyOracle
	cache       *PlaintextCache
	sink        eventsink.EventSink

	locks   map[string]*sync.Mutex
	locksMu sync.Mutex

	clock func() time.Time
}

// NewEngine builds an Engine.
func NewEngine(credentials CredentialStore, recoveries RecoveryStore, policies PolicyResolver, approvers ApproverSource, oracle keyoracle.KeyOracle, sink eventsink.EventSink) *Engine {
	return &Engine{
		credentials: credentials,
		recoveries:  recoveries,
		policies:    policies,
		approvers:   approvers,
		oracle:      oracle,
		cache:       NewPlaintextCache(),
		sink:        sink,
		locks:       make(map[string]*sync.Mutex),
		clock:       time.Now,
	}
}

// Sweeper returns a background expiry sweeper bound to this engine's
// stores, oracle, and one-time plaintext cache.
func (e *Engine) Sweeper(interval time.Duration, pageSize int) *Sweeper {
	return NewSweeper(e.credentials, e.recoveries, e.oracle, e.cache, e.sink, interval, pageSize)
}

func (e *Engine) lock(id string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// Escrow envelope-encrypts plaintext under a fresh data key and persists
// it as a new EscrowedCredential.
// Plaintext is never logged or retained by this method beyond the call.
func (e *Engine) Escrow(ctx context.Context, credentialID string, plaintext []byte, owner string, class EscrowClass, justification string, contacts []string) (*EscrowedCredential, error) {
	policy, err := e.policies.ResolveEscrowPolicy(ctx, class)
	if err != nil {
		return nil, err
	}

	escrowID, err := newID("esc")
	if err != nil {
		return nil, err
	}

	handle, ciphertext, err := seal(ctx, e.oracle, plaintext, escrowAAD(escrowID, credentialID))
	if err != nil {
		return nil, err
	}

	now := e.clock()
	retention := policy.Retention
	if retention <= 0 {
		retention = 365 * 24 * time.Hour
	}

	c := &EscrowedCredential{
		EscrowID:      escrowID,
		CredentialID:  credentialID,
		Owner:         owner,
		Class:         class,
		Justification: justification,
		Contacts:      contacts,
		Ciphertext:    ciphertext,
		KeyHandle:     handle,
		Policy:        policy,
		Status:        EscrowStatusActive,
		CreatedAt:     now,
		ExpiresAt:     now.Add(retention),
	}

	if err := e.credentials.Create(ctx, c); err != nil {
		return nil, err
	}

	e.emit(ctx, "escrow.credential_escrowed", owner, c.EscrowID, eventsink.SeverityInfo, eventsink.OutcomeSuccess, map[string]string{"class": string(class)})
	return c, nil
}

// InitiateRecovery validates the requester's eligibility and creates a
// PENDING RecoveryRequest, the first step of the recovery sequence.
func (e *Engine) InitiateRecovery(ctx context.Context, escrowID, requesterID, reason, justification string, emergency bool) (*RecoveryRequest, error) {
	c, err := e.credentials.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if c.Status != EscrowStatusActive {
		return nil, vaulterrors.New(vaulterrors.ErrCodeRequestTerminal, fmt.Sprintf("escrow %s is %s, not ACTIVE", escrowID, c.Status), vaulterrors.GetSuggestion(vaulterrors.ErrCodeRequestTerminal), nil)
	}

	eligible, err := e.approvers.ListEligible(ctx, c.Policy.EligibleRoles)
	if err != nil {
		return nil, err
	}

	emergencyGranted := false
	if emergency {
		has, err := e.approvers.HasCapability(ctx, requesterID, EmergencyApproverCapability)
		if err != nil {
			return nil, err
		}
		if !c.Policy.EmergencyBypass || !has {
			return nil, vaulterrors.New(vaulterrors.ErrCodeCapabilityMissing, "emergency recovery requires both policy emergency_bypass and the emergency_approver capability", vaulterrors.GetSuggestion(vaulterrors.ErrCodeCapabilityMissing), nil)
		}
		emergencyGranted = true
	} else {
		requesterEligible := false
		for _, id := range eligible {
			if id == requesterID {
				requesterEligible = true
				break
			}
		}
		if !requesterEligible {
			return nil, vaulterrors.New(vaulterrors.ErrCodeApproverIneligible, fmt.Sprintf("%s is not authorized to recover credentials of class %s", requesterID, c.Class), vaulterrors.GetSuggestion(vaulterrors.ErrCodeApproverIneligible), nil)
		}
	}

	recoveryID, err := newID("rec")
	if err != nil {
		return nil, err
	}

	now := e.clock()
	required := c.Policy.RequiredApprovers
	if emergencyGranted {
		required = 0
	}

	r := &RecoveryRequest{
		RecoveryID:          recoveryID,
		EscrowID:            escrowID,
		RequesterID:         requesterID,
		Reason:              reason,
		Justification:       justification,
		EmergencyOverride:   emergencyGranted,
		RequiredApprovals:   required,
		EligibleApproverIDs: eligible,
		Status:              RecoveryStatusPending,
		CreatedAt:           now,
		ExpiresAt:           now.Add(InitiateWindow),
	}

	if err := e.recoveries.Create(ctx, r); err != nil {
		return nil, err
	}

	e.emit(ctx, "escrow.recovery_initiated", requesterID, r.RecoveryID, eventsink.SeverityInfo, eventsink.OutcomeSuccess, map[string]string{"escrow_id": escrowID})
	if emergencyGranted {
		e.emit(ctx, "escrow.emergency_recovery", requesterID, r.RecoveryID, eventsink.SeverityCritical, eventsink.OutcomeSuccess, map[string]string{"escrow_id": escrowID})
		return e.completeRecovery(ctx, r)
	}

	return r, nil
}

// ApproveRecovery records one approver's sign-off. On
// reaching policy's required count it completes the recovery.
func (e *Engine) ApproveRecovery(ctx context.Context, recoveryID, approverID string) (*RecoveryRequest, error) {
	lock := e.lock(recoveryID)
	lock.Lock()
	defer lock.Unlock()

	r, err := e.recoveries.Get(ctx, recoveryID)
	if err != nil {
		return nil, err
	}
	if r.Status != RecoveryStatusPending {
		return nil, vaulterrors.New(vaulterrors.ErrCodeRequestTerminal, fmt.Sprintf("recovery %s is %s, not PENDING", recoveryID, r.Status), vaulterrors.GetSuggestion(vaulterrors.ErrCodeRequestTerminal), nil)
	}
	if r.IsExpired(e.clock()) {
		r.Status = RecoveryStatusExpired
		_ = e.recoveries.Update(ctx, r)
		return nil, vaulterrors.New(vaulterrors.ErrCodeRequestTerminal, "recovery request has expired", vaulterrors.GetSuggestion(vaulterrors.ErrCodeRequestTerminal), nil)
	}
	if !r.IsEligible(approverID) {
		return nil, vaulterrors.New(vaulterrors.ErrCodeApproverIneligible, fmt.Sprintf("%s is not an eligible approver for this recovery", approverID), vaulterrors.GetSuggestion(vaulterrors.ErrCodeApproverIneligible), nil)
	}
	if r.HasApproved(approverID) {
		return nil, vaulterrors.New(vaulterrors.ErrCodeDuplicateVote, fmt.Sprintf("%s has already approved this recovery", approverID), vaulterrors.GetSuggestion(vaulterrors.ErrCodeDuplicateVote), nil)
	}

	r.Approvals = append(r.Approvals, RecoveryApproval{ApproverID: approverID, Timestamp: e.clock()})

	if !r.QuorumMet() {
		if err := e.recoveries.Update(ctx, r); err != nil {
			return nil, err
		}
		e.emit(ctx, "escrow.recovery_approved", approverID, r.RecoveryID, eventsink.SeverityInfo, eventsink.OutcomeSuccess, nil)
		return r, nil
	}

	return e.completeRecovery(ctx, r)
}

// completeRecovery fetches ciphertext, unseals the data key, decrypts,
// marks the escrow and recovery RECOVERED/COMPLETED, caches the
// plaintext for one-time release, and schedules data-key destruction,
// Status transitions are idempotent.
func (e *Engine) completeRecovery(ctx context.Context, r *RecoveryRequest) (*RecoveryRequest, error) {
	if r.Status == RecoveryStatusCompleted {
		return r, nil
	}

	c, err := e.credentials.Get(ctx, r.EscrowID)
	if err != nil {
		return nil, err
	}

	plaintext, err := unseal(ctx, e.oracle, c.KeyHandle, c.Ciphertext, escrowAAD(c.EscrowID, c.CredentialID))
	if err != nil {
		var ve vaulterrors.VaultError
		if !errors.As(err, &ve) {
			err = vaulterrors.New(vaulterrors.ErrCodeCiphertextTampered, "authenticated decryption of escrowed credential failed", vaulterrors.GetSuggestion(vaulterrors.ErrCodeCiphertextTampered), err)
			errors.As(err, &ve)
		}
		if ve.Code() == vaulterrors.ErrCodeCiphertextTampered {
			c.Status = EscrowStatusTampered
			_ = e.credentials.Update(ctx, c)
			e.emit(ctx, "escrow.ciphertext_tampered", r.RequesterID, c.EscrowID, eventsink.SeverityCritical, eventsink.OutcomeFailure, map[string]string{"escrow_id": c.EscrowID, "recovery_id": r.RecoveryID})
		}
		return nil, err
	}

	e.cache.Put(r.RecoveryID, plaintext)
	for i := range plaintext {
		plaintext[i] = 0
	}

	now := e.clock()
	r.Status = RecoveryStatusCompleted
	r.CompletedAt = now
	if err := e.recoveries.Update(ctx, r); err != nil {
		return nil, err
	}

	c.Status = EscrowStatusRecovered
	c.RecoveredByRecoveryID = r.RecoveryID
	if err := e.credentials.Update(ctx, c); err != nil {
		return nil, err
	}

	if err := e.oracle.Destroy(ctx, c.KeyHandle); err != nil {
		e.emit(ctx, "escrow.key_destroy_failed", "", c.EscrowID, eventsink.SeverityHigh, eventsink.OutcomeFailure, map[string]string{"error": err.Error()})
	}

	e.emit(ctx, "escrow.recovery_completed", r.RequesterID, r.RecoveryID, eventsink.SeverityHigh, eventsink.OutcomeSuccess, map[string]string{"escrow_id": c.EscrowID})
	return r, nil
}

// FetchRecovered releases recovered plaintext to requesterID exactly
// once. A second call, a call by a different requester,
// or a call after the one-hour cache window returns an error.
func (e *Engine) FetchRecovered(ctx context.Context, recoveryID, requesterID string) ([]byte, error) {
	r, err := e.recoveries.Get(ctx, recoveryID)
	if err != nil {
		return nil, err
	}
	if r.Status != RecoveryStatusCompleted {
		return nil, vaulterrors.New(vaulterrors.ErrCodeRequestTerminal, fmt.Sprintf("recovery %s is %s, not COMPLETED", recoveryID, r.Status), vaulterrors.GetSuggestion(vaulterrors.ErrCodeRequestTerminal), nil)
	}
	if r.RequesterID != requesterID {
		return nil, vaulterrors.New(vaulterrors.ErrCodeApproverIneligible, "recovered plaintext may only be fetched by the original requester", vaulterrors.GetSuggestion(vaulterrors.ErrCodeApproverIneligible), nil)
	}

	plaintext, ok := e.cache.Take(recoveryID)
	if !ok {
		return nil, vaulterrors.New(vaulterrors.ErrCodeRequestTerminal, "recovered plaintext is no longer available: it was already fetched or the cache window elapsed", vaulterrors.GetSuggestion(vaulterrors.ErrCodeRequestTerminal), nil)
	}

	if r.FetchedAt.IsZero() {
		r.FetchedAt = e.clock()
		_ = e.recoveries.Update(ctx, r)
	}

	e.emit(ctx, "escrow.plaintext_fetched", requesterID, r.RecoveryID, eventsink.SeverityHigh, eventsink.OutcomeSuccess, nil)
	return plaintext, nil
}

// Revoke terminates an ACTIVE escrow: the credential becomes
// unrecoverable, its ciphertext is dropped, and the data-key handle is
// destroyed at the oracle.
func (e *Engine) Revoke(ctx context.Context, escrowID, actorID, reason string) (*EscrowedCredential, error) {
	lock := e.lock(escrowID)
	lock.Lock()
	defer lock.Unlock()

	c, err := e.credentials.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if c.Status == EscrowStatusRevoked {
		return c, nil
	}
	if c.Status != EscrowStatusActive {
		return nil, vaulterrors.New(vaulterrors.ErrCodeRequestTerminal, fmt.Sprintf("escrow %s is %s, not ACTIVE", escrowID, c.Status), vaulterrors.GetSuggestion(vaulterrors.ErrCodeRequestTerminal), nil)
	}

	c.Status = EscrowStatusRevoked
	c.Ciphertext = nil
	if err := e.credentials.Update(ctx, c); err != nil {
		return nil, err
	}

	if err := e.oracle.Destroy(ctx, c.KeyHandle); err != nil {
		e.emit(ctx, "escrow.key_destroy_failed", actorID, c.EscrowID, eventsink.SeverityHigh, eventsink.OutcomeFailure, map[string]string{"error": err.Error()})
	}

	e.emit(ctx, "escrow.credential_revoked", actorID, c.EscrowID, eventsink.SeverityMedium, eventsink.OutcomeSuccess, map[string]string{"reason": reason})
	return c, nil
}

func (e *Engine) emit(ctx context.Context, kind, actorID, resourceID string, severity eventsink.Severity, outcome eventsink.Outcome, attrs map[string]string) {
	if e.sink == nil {
		return
	}
	evt := eventsink.NewEvent(kind, severity, outcome)
	if actorID != "" {
		evt.ActorID = &actorID
	}
	if resourceID != "" {
		evt.ResourceID = &resourceID
	}
	evt.Attributes = attrs
	_, _ = e.sink.Append(ctx, "escrow", nil, evt)
}

var errRandShort = errors.New("escrow: short read from crypto/rand")

func newID(prefix string) (string, error) {
	var b [16]byte
	n, err := rand.Read(b[:])
	if err != nil {
		return "", err
	}
	if n != len(b) {
		return "", errRandShort
	}
	return prefix + "_" + hex.EncodeToString(b[:]), nil
}
