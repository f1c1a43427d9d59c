package stepup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mediscan/stepup/internal"
)

// RequestVerification issues a new one-time-code challenge for (userID,
// scope) and delivers the code through the configured sender.
//
// The permission check runs first: a user who may not access the scope gets
// ErrNotPermitted and no challenge, so the verification flow never leaks
// resource existence. Any live pending challenge for the same scope is
// superseded. The challenge is persisted before delivery is attempted; a
// delivery failure surfaces as ErrDeliveryFailed with the challenge intact,
// and re-requesting simply reissues.
func (e *Engine) RequestVerification(
	ctx context.Context,
	userID string,
	scope ResourceScope,
	method VerificationMethod,
) (ChallengeReceipt, error) {
	if e == nil || e.challengeStore == nil || e.sender == nil || e.policy == nil {
		return ChallengeReceipt{}, ErrEngineNotReady
	}
	if userID == "" {
		e.emitAudit(ctx, auditEventVerificationRequest, false, "", scope, "", ErrInvalidRequest, func() map[string]string {
			return map[string]string{
				"reason": "empty_user_id",
			}
		})
		return ChallengeReceipt{}, fmt.Errorf("%w: empty user id", ErrInvalidRequest)
	}
	if err := scope.Validate(); err != nil {
		e.emitAudit(ctx, auditEventVerificationRequest, false, userID, scope, "", err, nil)
		return ChallengeReceipt{}, err
	}
	if method != MethodOTP {
		e.emitAudit(ctx, auditEventVerificationRequest, false, userID, scope, "", ErrMethodInvalid, nil)
		return ChallengeReceipt{}, ErrMethodInvalid
	}

	allowed, err := e.policy.UserMayAccess(ctx, userID, scope)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ChallengeReceipt{}, err
		}
		mapped := fmt.Errorf("%w: %v", ErrPermissionUnavailable, err)
		e.metricInc(MetricVerificationDenied)
		e.emitAudit(ctx, auditEventVerificationRequest, false, userID, scope, "", mapped, nil)
		return ChallengeReceipt{}, mapped
	}
	if !allowed {
		e.metricInc(MetricVerificationDenied)
		e.emitAudit(ctx, auditEventVerificationRequest, false, userID, scope, "", ErrNotPermitted, nil)
		return ChallengeReceipt{}, ErrNotPermitted
	}

	challengeID := uuid.New().String()

	salt, err := internal.NewSalt()
	if err != nil {
		return ChallengeReceipt{}, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	code, err := internal.NewOTP(e.config.Verification.OTPDigits)
	if err != nil {
		return ChallengeReceipt{}, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}

	now := time.Now()
	record := &accessChallengeRecord{
		Status:      challengePending,
		Method:      byte(method),
		Attempts:    0,
		ExpiresAt:   now.Add(e.codeTTL()).Unix(),
		CreatedAt:   now.Unix(),
		Salt:        salt,
		CodeHash:    internal.HashCode(salt, code),
		ChallengeID: challengeID,
		OriginIP:    clientIPFromContext(ctx),
		OriginAgent: userAgentFromContext(ctx),
	}

	superseded, err := e.challengeStore.Put(ctx, userID, scope, record, e.config.Verification.Retention)
	if err != nil {
		mapped := fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
		e.emitAudit(ctx, auditEventVerificationRequest, false, userID, scope, challengeID, mapped, nil)
		return ChallengeReceipt{}, mapped
	}
	if superseded {
		e.metricInc(MetricChallengeSuperseded)
		e.emitAudit(ctx, auditEventChallengeSuperseded, true, userID, scope, challengeID, nil, nil)
	}

	// Exactly one delivery call per issuance, after the store write: a
	// delivery failure never leaves the store inconsistent with what was sent.
	if err := e.sender.Send(ctx, userID, code); err != nil {
		mapped := fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		e.metricInc(MetricDeliveryFailure)
		e.emitAudit(ctx, auditEventCodeDelivery, false, userID, scope, challengeID, mapped, nil)
		return ChallengeReceipt{}, mapped
	}

	e.metricInc(MetricVerificationRequest)
	e.emitAudit(ctx, auditEventVerificationRequest, true, userID, scope, challengeID, nil, func() map[string]string {
		return map[string]string{
			"method": method.String(),
		}
	})

	return ChallengeReceipt{
		VerificationID: challengeID,
		Method:         method,
		ExpiresIn:      e.codeTTL(),
	}, nil
}
