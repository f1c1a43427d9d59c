package stepup

import "errors"

var (
	// ErrNotPermitted means the user may not even attempt verification for
	// the requested scope. No challenge is created.
	ErrNotPermitted = errors.New("resource access not permitted")
	// ErrPermissionUnavailable means the resource-permission check itself
	// failed (dependency timeout or outage). Retryable, distinct from
	// ErrNotPermitted.
	ErrPermissionUnavailable = errors.New("permission check backend unavailable")
	// ErrDeliveryFailed means the challenge was persisted but the one-time
	// code could not be delivered. Re-requesting reissues the code.
	ErrDeliveryFailed = errors.New("verification code delivery failed")
	// ErrChallengeNotFound means no challenge exists for the (user, scope).
	ErrChallengeNotFound = errors.New("verification challenge not found")
	// ErrChallengeConsumed means the challenge was already verified once.
	ErrChallengeConsumed = errors.New("verification challenge already consumed")
	// ErrCodeExpired covers both a challenge past its deadline and a code
	// belonging to a superseded challenge.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeAttemptsExceeded means the challenge is exhausted; a fresh
	// challenge is required.
	ErrCodeAttemptsExceeded = errors.New("verification code attempts exceeded")
	// ErrCodeInvalid means the submitted code did not match.
	ErrCodeInvalid = errors.New("invalid verification code")
	// ErrVerificationRequired is the Gate denial: no valid access session for
	// the requested scope. Scope mismatches surface as this same error.
	ErrVerificationRequired = errors.New("access verification required")
	// ErrScopeInvalid rejects malformed resource scopes.
	ErrScopeInvalid = errors.New("invalid resource scope")
	// ErrMethodInvalid rejects unsupported verification methods.
	ErrMethodInvalid = errors.New("unsupported verification method")
	// ErrInvalidRequest rejects structurally invalid input (empty user id,
	// malformed code).
	ErrInvalidRequest = errors.New("invalid verification request")
	// ErrVerificationUnavailable means the challenge or session store could
	// not be reached. The only failure class surfaced as 5xx.
	ErrVerificationUnavailable = errors.New("verification backend unavailable")
	// ErrEngineNotReady is returned when the Engine was not built with all
	// required dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)
