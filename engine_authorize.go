package stepup

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Authorize is the Gate: it decides whether presentedToken grants userID
// access to scope right now. A nil return means allow.
//
// Every denial except storage unavailability surfaces as
// ErrVerificationRequired: a token bound to a different scope or user is
// reported identically to a missing one, so a caller can never probe which
// scopes a token is valid for. The distinction is kept internally for audit
// and metrics.
//
// Hot path: one Redis GET plus in-memory checks.
func (e *Engine) Authorize(ctx context.Context, userID string, scope ResourceScope, presentedToken string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.metricObserve(MetricAuthorizeLatency, time.Since(start))
	}()

	if err := scope.Validate(); err != nil {
		e.metricInc(MetricGateDenied)
		e.emitAudit(ctx, auditEventGateDecision, false, userID, scope, "", err, nil)
		return err
	}

	if presentedToken == "" {
		e.denyGate(ctx, userID, scope, "missing_token")
		return ErrVerificationRequired
	}

	record, err := e.sessionStore.Get(ctx, presentedToken)
	if err != nil {
		if errors.Is(err, errAccessSessionNotFound) {
			e.denyGate(ctx, userID, scope, "no_session")
			return ErrVerificationRequired
		}
		mapped := fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
		e.metricInc(MetricGateDenied)
		e.emitAudit(ctx, auditEventGateDecision, false, userID, scope, "", mapped, nil)
		return mapped
	}

	if record.UserID != userID || record.Scope != scope {
		e.metricInc(MetricGateScopeMismatch)
		e.denyGate(ctx, userID, scope, "scope_mismatch")
		return ErrVerificationRequired
	}

	e.metricInc(MetricGateAllowed)
	return nil
}

func (e *Engine) denyGate(ctx context.Context, userID string, scope ResourceScope, reason string) {
	e.metricInc(MetricGateDenied)
	e.emitAudit(ctx, auditEventGateDecision, false, userID, scope, "", ErrVerificationRequired, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
}
