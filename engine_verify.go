package stepup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mediscan/stepup/internal"
)

// VerifyCode checks a submitted code against the current challenge for
// (userID, scope) and, on success, mints a scoped access session.
//
// Failure order matches the challenge lifecycle: no challenge, already
// consumed, expired, exhausted, then the constant-time hash comparison. A
// mismatch burns an attempt and transitions the challenge to exhausted when
// the bound is reached; a code belonging to the superseded predecessor fails
// ErrCodeExpired without burning one. The pending→verified transition is
// atomic, so concurrent submissions of the correct code produce exactly one
// session.
func (e *Engine) VerifyCode(
	ctx context.Context,
	userID string,
	scope ResourceScope,
	code string,
) (AccessGrant, error) {
	if e == nil || e.challengeStore == nil || e.sessionStore == nil {
		return AccessGrant{}, ErrEngineNotReady
	}
	if userID == "" {
		return AccessGrant{}, fmt.Errorf("%w: empty user id", ErrInvalidRequest)
	}
	if err := scope.Validate(); err != nil {
		return AccessGrant{}, err
	}
	if len(code) != e.config.Verification.OTPDigits || !internal.IsNumeric(code) {
		// Malformed input never reaches the store and burns no attempt.
		e.metricInc(MetricVerifyFailure)
		e.emitAudit(ctx, auditEventCodeVerify, false, userID, scope, "", ErrCodeInvalid, func() map[string]string {
			return map[string]string{
				"reason": "malformed_code",
			}
		})
		return AccessGrant{}, ErrCodeInvalid
	}

	current, err := e.challengeStore.Get(ctx, userID, scope)
	if err != nil {
		mapped := mapChallengeStoreError(err)
		e.metricInc(MetricVerifyFailure)
		e.emitAudit(ctx, auditEventCodeVerify, false, userID, scope, "", mapped, nil)
		return AccessGrant{}, mapped
	}

	providedHash := internal.HashCode(current.Salt, code)
	providedPrevHash := internal.HashCode(current.PrevSalt, code)

	record, err := e.challengeStore.Consume(
		ctx,
		userID,
		scope,
		providedHash,
		providedPrevHash,
		e.config.Verification.MaxAttempts,
	)
	if err != nil {
		mapped := mapChallengeStoreError(err)
		e.metricInc(MetricVerifyFailure)
		if errors.Is(mapped, ErrCodeAttemptsExceeded) {
			e.metricInc(MetricVerifyAttemptsExceeded)
		}
		e.emitAudit(ctx, auditEventCodeVerify, false, userID, scope, current.ChallengeID, mapped, nil)
		return AccessGrant{}, mapped
	}

	grant, err := e.issueSession(ctx, userID, scope)
	if err != nil {
		e.emitAudit(ctx, auditEventCodeVerify, false, userID, scope, record.ChallengeID, err, func() map[string]string {
			return map[string]string{
				"reason": "session_issue_failed",
			}
		})
		return AccessGrant{}, err
	}

	e.metricInc(MetricVerifySuccess)
	e.emitAudit(ctx, auditEventCodeVerify, true, userID, scope, record.ChallengeID, nil, nil)

	return grant, nil
}

// issueSession mints and persists a scoped access session. Pure creation:
// the trust boundary is the caller, which must only invoke this after a
// successful pending→verified transition.
func (e *Engine) issueSession(ctx context.Context, userID string, scope ResourceScope) (AccessGrant, error) {
	token, err := internal.NewAccessToken(e.config.Session.TokenBytes)
	if err != nil {
		return AccessGrant{}, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}

	now := time.Now()
	record := &accessSessionRecord{
		UserID:    userID,
		Scope:     scope,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(e.sessionTTL()).Unix(),
	}

	if err := e.sessionStore.Save(ctx, token, record, e.sessionTTL()); err != nil {
		return AccessGrant{}, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}

	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, auditEventSessionIssued, true, userID, scope, "", nil, nil)

	return AccessGrant{
		Token:     token,
		Scope:     scope,
		ExpiresIn: e.sessionTTL(),
	}, nil
}

func mapChallengeStoreError(err error) error {
	switch {
	case errors.Is(err, errChallengeNotFound):
		return ErrChallengeNotFound
	case errors.Is(err, errChallengeConsumed):
		return ErrChallengeConsumed
	case errors.Is(err, errChallengeExpired),
		errors.Is(err, errChallengeSuperseded):
		return ErrCodeExpired
	case errors.Is(err, errChallengeExhausted):
		return ErrCodeAttemptsExceeded
	case errors.Is(err, errChallengeCodeMismatch):
		return ErrCodeInvalid
	default:
		return fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
}
