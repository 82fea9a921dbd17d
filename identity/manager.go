package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/trustfabric/vaultcore/eventsink"
	"github.com/trustfabric/vaultcore/vaulterrors"
)

// Manager is the identity store's operation surface: pre-auth
// issuance/validation, agent registration, approval, revocation, and
// lookup. It is the single owner of the underlying stores; callers
// receive a *Manager reference rather than a package-level singleton,
// enabling multiple isolated instances for testing.
type Manager struct {
	identities Store
	preAuth    PreAuthStore
	sessions   SessionStore
	sink       eventsink.EventSink
}

// NewManager wires a Manager over the given stores and event sink.
func NewManager(identities Store, preAuth PreAuthStore, sessions SessionStore, sink eventsink.EventSink) *Manager {
	return &Manager{identities: identities, preAuth: preAuth, sessions: sessions, sink: sink}
}

// IssuePreAuth mints a pre-auth token. The clear token is
// returned exactly once; flags controls PreApproved/Ephemeral.
func (m *Manager) IssuePreAuth(ctx context.Context, issuerID string, ttl time.Duration, maxUses int, tags, caps []string, preApproved, ephemeral bool) (clearToken string, token *PreAuthToken, err error) {
	clearToken, token, err = IssuePreAuth(issuerID, ttl, maxUses, tags, caps)
	if err != nil {
		return "", nil, vaulterrors.New(vaulterrors.ErrCodeCryptoFailure, "pre-auth token generation failed", "retry; this indicates CSPRNG failure", err)
	}
	token.PreApproved = preApproved
	token.Ephemeral = ephemeral

	if err := m.preAuth.Create(ctx, token); err != nil {
		return "", nil, err
	}
	m.emit(ctx, "pre_auth.issued", issuerID, "", eventsink.SeverityInfo, eventsink.OutcomeSuccess, nil)
	return clearToken, token, nil
}

// ValidatePreAuth performs a constant-time hash lookup and returns the
// token only if every validity predicate holds.
func (m *Manager) ValidatePreAuth(ctx context.Context, clearToken string) (*PreAuthToken, error) {
	hash := HashPreAuthToken(clearToken)
	token, err := m.preAuth.GetByHash(ctx, hash)
	if err != nil {
		return nil, vaulterrors.New(vaulterrors.ErrCodePreAuthTokenInvalid, "pre-auth token invalid", "request a fresh pre-auth token", err)
	}
	if !token.IsValid(time.Now().UTC()) {
		return nil, vaulterrors.New(vaulterrors.ErrCodePreAuthTokenInvalid, "pre-auth token invalid", "the token is revoked, expired, or exhausted", nil)
	}
	return token, nil
}

// RegisterInput gathers the parameters of agent registration.
type RegisterInput struct {
	MachineID      string
	Role           string
	PreAuthClear   string // optional; "" means no pre-auth presented
	RequestedTags  []string
	RequestedCaps  []string
	SourceIP       string
	SessionTTL     time.Duration
}

// RegisterResult bundles the created identity, its one-time key material,
// and an optional session token issued when the identity starts ACTIVE.
type RegisterResult struct {
	Identity     *Identity
	KeyMaterial  *KeyMaterial
	SessionToken string
}

// RegisterAgent generates fresh keypairs, computes fingerprint and
// machine_binding, merges pre-auth-supplied tags/caps with requested sets,
// and stores the identity PENDING unless the presented pre-auth token is
// pre_approved (then ACTIVE, with a session issued immediately).
func (m *Manager) RegisterAgent(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	var preApproved bool
	var tags, caps map[string]struct{}

	if in.PreAuthClear != "" {
		token, err := m.ValidatePreAuth(ctx, in.PreAuthClear)
		if err != nil {
			return nil, err
		}
		preApproved = token.PreApproved
		tags = UnionStrings(token.Tags, in.RequestedTags)
		caps = UnionStrings(token.Capabilities, in.RequestedCaps)

		if _, err := m.preAuth.IncrementUses(ctx, token.TokenHash); err != nil {
			return nil, vaulterrors.New(vaulterrors.ErrCodeConflictState, "pre-auth token exhausted", "request a fresh pre-auth token", err)
		}
	} else {
		tags = UnionStrings(in.RequestedTags, nil)
		caps = UnionStrings(in.RequestedCaps, nil)
	}

	signingPub, exchangePub, keyMaterial, err := GenerateKeyMaterial()
	if err != nil {
		return nil, vaulterrors.New(vaulterrors.ErrCodeCryptoFailure, "key generation failed", "no partial state was written; retry", err)
	}

	fingerprint := Fingerprint(signingPub, exchangePub)
	binding := MachineBinding(in.MachineID, fingerprint)
	now := time.Now().UTC()

	status := StatusPending
	if preApproved {
		status = StatusActive
	}

	id := &Identity{
		IdentityID:        NewIdentityID(),
		AgentID:           NewAgentID(in.MachineID, in.Role, now.Unix()),
		MachineID:         in.MachineID,
		SigningPublicKey:  signingPub,
		ExchangePublicKey: exchangePub,
		SigningAlgorithm:  SigningAlgorithmEd25519,
		KeyFingerprint:    fingerprint,
		MachineBinding:    binding,
		Status:            status,
		Tags:              tags,
		Capabilities:      caps,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if preApproved {
		id.ApprovedAt = now
	}

	if err := m.identities.Create(ctx, id); err != nil {
		return nil, err
	}

	result := &RegisterResult{Identity: id, KeyMaterial: keyMaterial}

	if status == StatusActive {
		token, sess, err := IssueSession(id.IdentityID, id.MachineID, in.SourceIP, sessionTTLOrDefault(in.SessionTTL))
		if err != nil {
			return nil, err
		}
		if err := m.sessions.Create(ctx, sess); err != nil {
			return nil, err
		}
		result.SessionToken = token
	}

	m.emit(ctx, "identity.registered", id.AgentID, id.IdentityID, eventsink.SeverityInfo, eventsink.OutcomeSuccess, nil)
	return result, nil
}

func sessionTTLOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Hour
	}
	return ttl
}

// Approve transitions an identity from PENDING to ACTIVE.
func (m *Manager) Approve(ctx context.Context, agentID, approverID string, grantTags, grantCaps []string) (*Identity, error) {
	id, err := m.identities.GetByAgentID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if id.Status != StatusPending {
		return nil, vaulterrors.New(vaulterrors.ErrCodeConflictState, "identity is not pending approval", "", nil)
	}

	for tag := range UnionStrings(grantTags, nil) {
		id.Tags[tag] = struct{}{}
	}
	for cap := range UnionStrings(grantCaps, nil) {
		id.Capabilities[cap] = struct{}{}
	}

	id.Status = StatusActive
	id.ApproverID = approverID
	id.ApprovedAt = time.Now().UTC()
	id.UpdatedAt = id.ApprovedAt

	if err := m.identities.Update(ctx, id); err != nil {
		return nil, err
	}
	m.emit(ctx, "identity.approved", approverID, id.IdentityID, eventsink.SeverityInfo, eventsink.OutcomeSuccess, nil)
	return id, nil
}

// Revoke terminally revokes an identity and invalidates every session
// bound to it.
func (m *Manager) Revoke(ctx context.Context, agentID, actorID, reason string) (*Identity, error) {
	id, err := m.identities.GetByAgentID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if id.Status.IsTerminal() {
		return id, nil // idempotent
	}

	id.Status = StatusRevoked
	id.UpdatedAt = time.Now().UTC()
	if err := m.identities.Update(ctx, id); err != nil {
		return nil, err
	}

	sessions, err := m.sessions.ListByIdentity(ctx, id.IdentityID, MaxQueryLimit)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if sess.Status.IsTerminal() {
			continue
		}
		if _, err := RevokeSession(ctx, m.sessions, sess.SessionID, actorID, reason); err != nil {
			return nil, fmt.Errorf("revoke session %s: %w", sess.SessionID, err)
		}
	}

	severity := eventsink.SeverityHigh
	m.emit(ctx, "identity.revoked", actorID, id.IdentityID, severity, eventsink.OutcomeSuccess, map[string]string{"reason": reason})
	return id, nil
}

// ReauthenticateMachineBinding recomputes machine_binding for id and
// REVOKEs it if the fresh computation does not match what is stored. This
// must run on every authentication.
func (m *Manager) ReauthenticateMachineBinding(ctx context.Context, id *Identity) error {
	if VerifyMachineBinding(id.MachineID, id.KeyFingerprint, id.MachineBinding) {
		return nil
	}
	id.Status = StatusRevoked
	id.UpdatedAt = time.Now().UTC()
	if err := m.identities.Update(ctx, id); err != nil {
		return err
	}
	m.emit(ctx, "identity.machine_binding_mismatch", "", id.IdentityID, eventsink.SeverityCritical, eventsink.OutcomeFailure, nil)
	return vaulterrors.New(vaulterrors.ErrCodeMachineBindingMismatch, "machine binding mismatch", "re-register the identity from the current machine", nil)
}

// ValidateSession performs the session-validation step of the
// Orchestrator's pipeline: a constant-time hash lookup,
// liveness check, fresh machine-binding recomputation, and identity
// status check, in that order. It fails closed — any defect returns an
// error rather than a usable session.
func (m *Manager) ValidateSession(ctx context.Context, clearToken string) (*Session, *Identity, error) {
	tokenHash := HashSessionToken(clearToken)
	sess, err := m.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, nil, vaulterrors.New(vaulterrors.ErrCodeAuthRequired, "no session for presented token", "authenticate and obtain a fresh session token", err)
	}
	if !sess.IsLive(time.Now().UTC()) {
		code := vaulterrors.ErrCodeSessionExpired
		if sess.Status == SessionRevoked {
			code = vaulterrors.ErrCodeSessionRevoked
		}
		return nil, nil, vaulterrors.New(code, "session is not live", "re-authenticate to obtain a new session", nil)
	}
	id, err := m.identities.Get(ctx, sess.IdentityID)
	if err != nil {
		return nil, nil, vaulterrors.New(vaulterrors.ErrCodeIdentityNotFound, "session identity no longer exists", "", err)
	}
	if err := m.ReauthenticateMachineBinding(ctx, id); err != nil {
		return nil, nil, err
	}
	if id.Status != StatusActive {
		return nil, nil, vaulterrors.New(vaulterrors.ErrCodeIdentitySuspended, "identity is not active", "an identity must be ACTIVE to authenticate", nil)
	}
	return sess, id, nil
}

func (m *Manager) GetByID(ctx context.Context, identityID string) (*Identity, error) {
	return m.identities.Get(ctx, identityID)
}

func (m *Manager) GetByFingerprint(ctx context.Context, fingerprint string) (*Identity, error) {
	return m.identities.GetByFingerprint(ctx, fingerprint)
}

func (m *Manager) List(ctx context.Context, status Status, machineID string, limit int) ([]*Identity, error) {
	if machineID != "" {
		return m.identities.ListByMachine(ctx, machineID, limit)
	}
	return m.identities.ListByStatus(ctx, status, limit)
}

func (m *Manager) emit(ctx context.Context, kind, actorID, resourceID string, severity eventsink.Severity, outcome eventsink.Outcome, attrs map[string]string) {
	if m.sink == nil {
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
	_, _ = m.sink.Append(ctx, "identity", nil, evt)
}
