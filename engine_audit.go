package stepup

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventVerificationRequest = "access_verification_request"
	auditEventChallengeSuperseded = "access_challenge_superseded"
	auditEventCodeDelivery        = "access_code_delivery"
	auditEventCodeVerify          = "access_code_verify"
	auditEventSessionIssued       = "access_session_issued"
	auditEventGateDecision        = "access_gate_decision"
	auditEventReaperSweep         = "access_reaper_sweep"
)

// AuditErrorCode is the stable error label attached to audit events.
type AuditErrorCode string

const (
	auditErrNotPermitted          AuditErrorCode = "not_permitted"
	auditErrPermissionUnavailable AuditErrorCode = "permission_check_unavailable"
	auditErrDeliveryFailed        AuditErrorCode = "delivery_failed"
	auditErrChallengeNotFound     AuditErrorCode = "challenge_not_found"
	auditErrChallengeConsumed     AuditErrorCode = "challenge_consumed"
	auditErrCodeExpired           AuditErrorCode = "code_expired"
	auditErrAttemptsExceeded      AuditErrorCode = "attempts_exceeded"
	auditErrCodeInvalid           AuditErrorCode = "code_invalid"
	auditErrVerificationRequired  AuditErrorCode = "verification_required"
	auditErrInvalidScope          AuditErrorCode = "invalid_scope"
	auditErrInvalidMethod         AuditErrorCode = "invalid_method"
	auditErrInvalidRequest        AuditErrorCode = "invalid_request"
	auditErrUnavailable           AuditErrorCode = "backend_unavailable"
	auditErrInternal              AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	scope ResourceScope,
	challengeID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		UserID:      userID,
		ChallengeID: challengeID,
		IP:          clientIPFromContext(ctx),
		UserAgent:   userAgentFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if scope != (ResourceScope{}) {
		event.Scope = scope.Key()
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrNotPermitted):
		return auditErrNotPermitted
	case errors.Is(err, ErrPermissionUnavailable):
		return auditErrPermissionUnavailable
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrChallengeNotFound):
		return auditErrChallengeNotFound
	case errors.Is(err, ErrChallengeConsumed):
		return auditErrChallengeConsumed
	case errors.Is(err, ErrCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrCodeAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrCodeInvalid):
		return auditErrCodeInvalid
	case errors.Is(err, ErrVerificationRequired):
		return auditErrVerificationRequired
	case errors.Is(err, ErrScopeInvalid):
		return auditErrInvalidScope
	case errors.Is(err, ErrMethodInvalid):
		return auditErrInvalidMethod
	case errors.Is(err, ErrInvalidRequest):
		return auditErrInvalidRequest
	case errors.Is(err, ErrVerificationUnavailable),
		errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
