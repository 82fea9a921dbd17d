package approval

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/trustfabric/vaultcore/eventsink"
	"github.com/trustfabric/vaultcore/vaulterrors"
)

// Vote is the caller's decision on a Request, as submitted to SubmitVote.
type Vote string

const (
	VoteApprove Vote = "APPROVE"
	VoteReject  Vote = "REJECT"
)

// Engine is the multi-signature approval engine: it resolves
// policy, freezes eligible approvers, verifies quorum signatures, and
// dispatches approved requests to registered executors.
type Engine struct {
	store     Store
	policies  PolicyResolver
	approvers ApproverSource
	executors *ExecutorRegistry
	sink      eventsink.EventSink

	// locks serializes vote application per request, keeping votes on
	// one request totally ordered without a process-wide lock.
	locks   map[string]*sync.Mutex
	locksMu sync.Mutex

	clock func() time.Time
}

// NewEngine builds an Engine with an empty executor registry; register
// operation executors with Executors().Register before requests reach quorum.
func NewEngine(store Store, policies PolicyResolver, approvers ApproverSource, sink eventsink.EventSink) *Engine {
	return &Engine{
		store:     store,
		policies:  policies,
		approvers: approvers,
		executors: NewExecutorRegistry(),
		sink:      sink,
		locks:     make(map[string]*sync.Mutex),
		clock:     time.Now,
	}
}

// Executors returns the registry callers use to bind operation_type
// strings to Executor implementations.
func (e *Engine) Executors() *ExecutorRegistry { return e.executors }

func (e *Engine) requestLock(requestID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[requestID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[requestID] = l
	}
	return l
}

// CreateRequest resolves the operation's policy, freezes the current
// eligible-approver set, and persists a new PENDING Request. If
// requesterRegion is "" geographic restriction is skipped.
func (e *Engine) CreateRequest(ctx context.Context, operationType string, payload Payload, requesterID, requesterRegion string, emergencyOverride bool) (*Request, error) {
	snapshot, err := e.policies.ResolveApprovalPolicy(ctx, operationType)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	if err := checkTimeRestriction(snapshot, now); err != nil {
		return nil, err
	}
	if err := checkGeoRestriction(snapshot, requesterRegion); err != nil {
		return nil, err
	}

	eligible, err := e.approvers.ListEligible(ctx, snapshot.EligibleRoles)
	if err != nil {
		return nil, err
	}

	requestID, err := newRequestID()
	if err != nil {
		return nil, err
	}

	timeout := snapshot.Timeout
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}

	r := &Request{
		RequestID:           requestID,
		OperationType:       operationType,
		OperationPayload:    payload,
		RequesterID:         requesterID,
		Policy:              snapshot,
		RequiredApprovals:   snapshot.RequiredApprovals,
		TotalEligible:       len(eligible),
		EligibleApproverIDs: eligible,
		CreatedAt:           now,
		CreatedAtNS:         now.UnixNano(),
		ExpiresAt:           now.Add(timeout),
		Status:              StatusPending,
	}

	if emergencyOverride {
		approved, err := EvaluateEmergencyOverride(ctx, snapshot, requesterID, e.approvers)
		if err != nil {
			return nil, err
		}
		if approved {
			r.Status = StatusApproved
			r.EmergencyOverride = true
		}
	}

	if err := e.store.Create(ctx, r); err != nil {
		return nil, err
	}

	e.emit(ctx, "approval.request_created", requesterID, r.RequestID, eventsink.SeverityInfo, eventsink.OutcomeSuccess, nil)
	if r.EmergencyOverride {
		e.emit(ctx, "approval.emergency_override", requesterID, r.RequestID, eventsink.SeverityCritical, eventsink.OutcomeSuccess, map[string]string{"operation_type": operationType})
	}

	return r, nil
}

// SubmitVote applies one approver's signed vote to a request. On
// reaching quorum the
// request transitions to APPROVED; it does not execute here.
func (e *Engine) SubmitVote(ctx context.Context, requestID, signerID string, vote Vote, sig ApprovalSignature) (*Request, error) {
	lock := e.requestLock(requestID)
	lock.Lock()
	defer lock.Unlock()

	r, err := e.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if r.Status != StatusPending {
		return nil, vaulterrors.New(vaulterrors.ErrCodeRequestTerminal, fmt.Sprintf("request %s is %s, not PENDING", requestID, r.Status), vaulterrors.GetSuggestion(vaulterrors.ErrCodeRequestTerminal), nil)
	}
	if r.IsExpired(e.clock()) {
		r.Status = StatusExpired
		_ = e.store.Update(ctx, r)
		return nil, vaulterrors.New(vaulterrors.ErrCodeRequestTerminal, "request has expired", vaulterrors.GetSuggestion(vaulterrors.ErrCodeRequestTerminal), nil)
	}
	if !r.IsEligible(signerID) {
		return nil, vaulterrors.New(vaulterrors.ErrCodeApproverIneligible, fmt.Sprintf("%s is not an eligible approver for this request", signerID), vaulterrors.GetSuggestion(vaulterrors.ErrCodeApproverIneligible), nil)
	}
	if r.HasVoted(signerID) {
		return nil, vaulterrors.New(vaulterrors.ErrCodeDuplicateVote, fmt.Sprintf("%s has already voted on this request", signerID), vaulterrors.GetSuggestion(vaulterrors.ErrCodeDuplicateVote), nil)
	}

	registeredKey, registeredAlg, err := e.approvers.GetRegisteredKey(ctx, signerID)
	if err != nil {
		return nil, err
	}
	if sig.Algorithm != registeredAlg || !bytes.Equal(sig.SignerPublicKey, registeredKey) {
		return nil, vaulterrors.New(vaulterrors.ErrCodeSignatureInvalid, fmt.Sprintf("signature key/algorithm does not match %s's registered identity", signerID), vaulterrors.GetSuggestion(vaulterrors.ErrCodeSignatureInvalid), nil)
	}

	digest := Digest(r)
	ok, err := VerifySignature(digest, sig)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vaulterrors.New(vaulterrors.ErrCodeSignatureInvalid, "signature does not verify under the signer's registered key", vaulterrors.GetSuggestion(vaulterrors.ErrCodeSignatureInvalid), nil)
	}
	sig.SignedMessageHash = append([]byte(nil), digest[:]...)
	if sig.Timestamp.IsZero() {
		sig.Timestamp = e.clock()
	}

	switch vote {
	case VoteApprove:
		r.Approvals = append(r.Approvals, sig)
		if len(r.Approvals) >= r.RequiredApprovals {
			r.Status = StatusApproved
		}
	case VoteReject:
		r.Rejections = append(r.Rejections, sig)
		r.Status = StatusRejected
	default:
		return nil, fmt.Errorf("approval: unknown vote %q", vote)
	}

	if err := e.store.Update(ctx, r); err != nil {
		return nil, err
	}

	kind := "approval.vote_rejected"
	if vote == VoteApprove {
		kind = "approval.vote_approved"
	}
	e.emit(ctx, kind, signerID, r.RequestID, eventsink.SeverityInfo, eventsink.OutcomeSuccess, nil)
	if r.Status == StatusApproved {
		e.emit(ctx, "approval.quorum_reached", signerID, r.RequestID, eventsink.SeverityInfo, eventsink.OutcomeSuccess, nil)
	}

	return r, nil
}

// Execute dispatches an APPROVED request to its registered executor and
// records the outcome, transitioning it to EXECUTED. Execute is
// idempotent: calling it again on an already-EXECUTED request is a
// no-op that returns the prior result.
func (e *Engine) Execute(ctx context.Context, requestID string) (*Request, error) {
	lock := e.requestLock(requestID)
	lock.Lock()
	defer lock.Unlock()

	r, err := e.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if r.Status == StatusExecuted {
		return r, nil
	}
	if r.Status != StatusApproved {
		return nil, vaulterrors.New(vaulterrors.ErrCodeRequestTerminal, fmt.Sprintf("request %s is %s, not APPROVED", requestID, r.Status), vaulterrors.GetSuggestion(vaulterrors.ErrCodeRequestTerminal), nil)
	}

	result, execErr := e.executors.Execute(ctx, r)

	r.ExecutedAt = e.clock()
	if execErr != nil {
		r.ExecutionResult = execErr.Error()
		if updErr := e.store.Update(ctx, r); updErr != nil {
			return nil, updErr
		}
		e.emit(ctx, "approval.execution_failed", "", r.RequestID, eventsink.SeverityHigh, eventsink.OutcomeFailure, map[string]string{"error": execErr.Error()})
		return r, execErr
	}

	r.Status = StatusExecuted
	r.ExecutionResult = result
	if err := e.store.Update(ctx, r); err != nil {
		return nil, err
	}
	e.emit(ctx, "approval.executed", "", r.RequestID, eventsink.SeverityInfo, eventsink.OutcomeSuccess, nil)

	return r, nil
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
	_, _ = e.sink.Append(ctx, "approval", nil, evt)
}

var errRandShort = errors.New("approval: short read from crypto/rand")

func newRequestID() (string, error) {
	var b [16]byte
	n, err := rand.Read(b[:])
	if err != nil {
		return "", err
	}
	if n != len(b) {
		return "", errRandShort
	}
	return "req_" + hex.EncodeToString(b[:]), nil
}
