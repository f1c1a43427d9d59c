package stepup

import (
	"context"
	"fmt"
	"time"
)

// VerificationMethod defines how the one-time code reaches the user.
type VerificationMethod int

const (
	// MethodOTP delivers a numeric one-time code through the configured
	// CodeSender. Currently the only supported method.
	MethodOTP VerificationMethod = iota
)

// String returns the wire name of the method.
func (m VerificationMethod) String() string {
	switch m {
	case MethodOTP:
		return "otp"
	default:
		return "unknown"
	}
}

// ParseVerificationMethod maps a wire name back to a VerificationMethod.
func ParseVerificationMethod(s string) (VerificationMethod, error) {
	switch s {
	case "otp", "":
		// Empty defaults to OTP; clients that predate the method field
		// never send one.
		return MethodOTP, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrMethodInvalid, s)
	}
}

// CodeSender delivers a plaintext one-time code to the user out of band
// (typically email). Implementations resolve the destination address from
// the user id. Send is called exactly once per issued challenge, after the
// challenge has been persisted.
type CodeSender interface {
	Send(ctx context.Context, userID string, code string) error
}

// AccessPolicy answers whether a user may attempt verification for a scope
// at all (resource existence and ownership). A false answer yields
// ErrNotPermitted without creating a challenge; an error yields
// ErrPermissionUnavailable.
type AccessPolicy interface {
	UserMayAccess(ctx context.Context, userID string, scope ResourceScope) (bool, error)
}

// ChallengeReceipt is returned by RequestVerification. It never contains the
// plaintext code.
type ChallengeReceipt struct {
	VerificationID string
	Method         VerificationMethod
	ExpiresIn      time.Duration
}

// AccessGrant is returned by VerifyCode: an opaque session token bound to
// exactly one scope.
type AccessGrant struct {
	Token     string
	Scope     ResourceScope
	ExpiresIn time.Duration
}
