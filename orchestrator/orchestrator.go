package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trustfabric/vaultcore/approval"
	"github.com/trustfabric/vaultcore/eventsink"
	"github.com/trustfabric/vaultcore/identity"
	"github.com/trustfabric/vaultcore/ratelimit"
	"github.com/trustfabric/vaultcore/threat"
	"github.com/trustfabric/vaultcore/vaulterrors"
)

// OperationExecutor performs the side effect for one OperationKind once
// the Orchestrator has decided to execute it — either immediately
// (no approval policy configured) or after quorum (dispatched via the
// ApprovalEngine's own executor registry). Implementations MUST be
// idempotent: a second APPROVED->EXECUTED attempt must be a no-op.
type OperationExecutor func(ctx context.Context, payload approval.Payload, requesterID string) (result string, err error)

// Orchestrator is the vault's front door: it owns no storage itself,
// only the engines and the pipeline binding them together. Callers
// receive an *Orchestrator reference rather than a global singleton,
// enabling multiple isolated instances for testing.
type Orchestrator struct {
	identities *identity.Manager
	approvals  *approval.Engine
	policies   approval.PolicyResolver
	threats    *threat.Engine
	sink       eventsink.EventSink
	metrics    *Metrics
	limiter    ratelimit.SubmissionLimiter

	executorsMu sync.RWMutex
	executors   map[OperationKind]OperationExecutor

	pendingCount  int64
	executedCount int64
}

// New wires an Orchestrator over its component engines. policies is the
// same PolicyResolver the ApprovalEngine was constructed with — the
// Orchestrator consults it directly to decide whether an operation kind
// is quorum-gated before creating a request. Register operation
// executors with RegisterExecutor before Submit is called for that
// OperationKind. limiter is optional; a nil limiter disables throttling.
func New(identities *identity.Manager, approvals *approval.Engine, policies approval.PolicyResolver, threats *threat.Engine, sink eventsink.EventSink, metrics *Metrics, limiter ratelimit.SubmissionLimiter) *Orchestrator {
	return &Orchestrator{
		identities: identities,
		approvals:  approvals,
		policies:   policies,
		threats:    threats,
		sink:       sink,
		metrics:    metrics,
		limiter:    limiter,
		executors:  make(map[OperationKind]OperationExecutor),
	}
}

// RegisterExecutor binds kind to exec. It is wired into both the
// immediate-execution path (no approval policy configured for kind) and
// the ApprovalEngine's own executor registry (dispatched on quorum), so
// the same side effect runs regardless of which path a given kind takes.
func (o *Orchestrator) RegisterExecutor(kind OperationKind, exec OperationExecutor) {
	o.executorsMu.Lock()
	o.executors[kind] = exec
	o.executorsMu.Unlock()
	o.approvals.Executors().Register(string(kind), approval.ExecutorFunc(func(ctx context.Context, r *approval.Request) (string, error) {
		return exec(ctx, r.OperationPayload, r.RequesterID)
	}))
}

// Stats returns a snapshot of the Orchestrator's operational counters.
func (o *Orchestrator) Stats() Stats {
	o.executorsMu.RLock()
	registered := len(o.executors)
	o.executorsMu.RUnlock()
	return Stats{
		RegisteredExecutors: registered,
		PendingApprovals:    atomic.LoadInt64(&o.pendingCount),
		Executed:            atomic.LoadInt64(&o.executedCount),
	}
}

// Submit runs one sensitive operation through the full pipeline:
// session validation, approval gating, event construction, threat
// feedback, execution, and an unconditional terminal audit record.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (result *Result, err error) {
	if !req.Kind.IsValid() {
		return nil, vaulterrors.New(vaulterrors.ErrCodeInputInvalid, fmt.Sprintf("unrecognized operation kind %q", req.Kind), "", nil)
	}

	start := time.Now()
	if o.metrics != nil {
		defer func() {
			o.metrics.recordSubmit(string(req.Kind), time.Since(start))
			outcome := "error"
			if result != nil {
				outcome = string(result.Outcome)
			}
			o.metrics.OutcomesTotal.WithLabelValues(string(req.Kind), outcome).Inc()
		}()
	}

	// Step 1: session validation, fail closed.
	sess, id, err := o.identities.ValidateSession(ctx, req.SessionToken)
	if err != nil {
		o.auditFailure(ctx, req, "", err)
		return nil, err
	}
	requesterID := id.IdentityID
	if req.SourceIP == "" && sess.SourceIP != "" {
		req.SourceIP = sess.SourceIP
	}

	if o.limiter != nil {
		decision, err := o.limiter.Allow(ctx, requesterID, string(req.Kind))
		if err != nil {
			o.auditFailure(ctx, req, requesterID, err)
			return nil, err
		}
		if !decision.Allowed {
			err := vaulterrors.WithContext(
				vaulterrors.New(vaulterrors.ErrCodeRateLimited, "submission rate limit exceeded", vaulterrors.GetSuggestion(vaulterrors.ErrCodeRateLimited), nil),
				"retry_after", decision.RetryAfter.String(),
			)
			o.auditFailure(ctx, req, requesterID, err)
			return nil, err
		}
	}

	result = &Result{}

	// Step 2: approval gating. A PolicyNotConfigured error means this
	// operation kind has no quorum requirement; any other resolver error
	// is fatal to the request.
	gated := true
	if _, err := o.policies.ResolveApprovalPolicy(ctx, string(req.Kind)); err != nil {
		var ve vaulterrors.VaultError
		if errors.As(err, &ve) && ve.Code() == vaulterrors.ErrCodePolicyNotConfigured {
			gated = false
		} else {
			o.auditFailure(ctx, req, requesterID, err)
			return nil, err
		}
	}

	var auditResourceID string

	if gated {
		ar, err := o.approvals.CreateRequest(ctx, string(req.Kind), req.Payload, requesterID, req.RequesterRegion, req.EmergencyOverride)
		if err != nil {
			o.auditFailure(ctx, req, requesterID, err)
			return nil, err
		}
		auditResourceID = ar.RequestID

		if ar.Status == approval.StatusApproved {
			// Emergency override reached APPROVED with zero quorum at
			// creation time; dispatch now.
			executed, err := o.approvals.Execute(ctx, ar.RequestID)
			if err != nil {
				o.auditFailure(ctx, req, requesterID, err)
				return nil, err
			}
			result.Outcome = OutcomeExecuted
			result.ExecutionResult = executed.ExecutionResult
			atomic.AddInt64(&o.executedCount, 1)
		} else {
			result.Outcome = OutcomePendingApproval
			result.RequestID = ar.RequestID
			atomic.AddInt64(&o.pendingCount, 1)
		}
	} else {
		o.executorsMu.RLock()
		exec, ok := o.executors[req.Kind]
		o.executorsMu.RUnlock()
		if !ok {
			err := vaulterrors.New(vaulterrors.ErrCodeInternal, fmt.Sprintf("no executor registered for operation kind %q", req.Kind), "", nil)
			o.auditFailure(ctx, req, requesterID, err)
			return nil, err
		}
		out, err := exec(ctx, req.Payload, requesterID)
		if err != nil {
			o.auditFailure(ctx, req, requesterID, err)
			return nil, err
		}
		result.Outcome = OutcomeExecuted
		result.ExecutionResult = out
		atomic.AddInt64(&o.executedCount, 1)
	}

	// Event construction and threat feedback. The canonical event is
	// emitted to ThreatEngine; high-risk insights are attached to the
	// response.
	evt := eventsink.NewEvent(string(req.Kind), eventsink.SeverityInfo, outcomeFor(result.Outcome))
	evt.ActorID = &requesterID
	if auditResourceID != "" {
		evt.ResourceID = &auditResourceID
	}
	if req.SourceIP != "" {
		evt.SourceIP = &req.SourceIP
	}
	if req.UserAgent != "" {
		evt.UserAgent = &req.UserAgent
	}

	insights, err := o.threats.Ingest(ctx, evt)
	if err != nil {
		// ThreatEngine failures never block the operation: a missing
		// baseline is a permitted non-error outcome, and any other
		// ThreatEngine error degrades to no insights rather than
		// failing the request.
		insights = nil
	}
	for _, ins := range insights {
		if ins.Severity == eventsink.SeverityHigh || ins.Severity == eventsink.SeverityCritical {
			result.Insights = append(result.Insights, ins)
		}
	}

	// Step 6: unconditional terminal audit record.
	auditID, _ := o.sink.Append(ctx, "orchestrator", []string{string(req.Kind)}, evt)
	result.AuditEventID = auditID
	result.CompletedAt = time.Now().UTC()

	return result, nil
}

func outcomeFor(o Outcome) eventsink.Outcome {
	switch o {
	case OutcomeExecuted:
		return eventsink.OutcomeSuccess
	case OutcomePendingApproval:
		return eventsink.OutcomePending
	default:
		return eventsink.OutcomeDenied
	}
}

// auditFailure writes the single mandatory audit event: every error
// path emits exactly one.
func (o *Orchestrator) auditFailure(ctx context.Context, req Request, requesterID string, cause error) {
	evt := eventsink.NewEvent(string(req.Kind), eventsink.SeverityMedium, eventsink.OutcomeFailure)
	if requesterID != "" {
		evt.ActorID = &requesterID
	}
	evt.Attributes = map[string]string{"error": cause.Error()}
	_, _ = o.sink.Append(ctx, "orchestrator", []string{string(req.Kind), "error"}, evt)
}
