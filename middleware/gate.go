// Package middleware provides net/http wrappers around the stepup Engine:
// RequireBearer establishes the primary identity, Gate enforces the step-up
// access session on sensitive routes.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/mediscan/stepup"
)

// SessionTokenHeader carries the step-up session token. It travels only in
// this header, never in a body or query string.
const SessionTokenHeader = "X-Access-Session-Token"

// IdentityVerifier validates the primary bearer credential and yields the
// user identity. *jwt.Manager satisfies it.
type IdentityVerifier interface {
	VerifyBearer(token string) (userID string, err error)
}

// ScopeResolver derives the resource scope a request is asking for, e.g.
// from a path variable.
type ScopeResolver func(r *http.Request) (stepup.ResourceScope, error)

// DenyHandler writes the Gate denial response. A nil handler gets the
// default 403 JSON body.
type DenyHandler func(w http.ResponseWriter, r *http.Request, userID string, scope stepup.ResourceScope, err error)

type userIDContextKey struct{}

// UserIDFromContext returns the identity established by RequireBearer.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDContextKey{}).(string)
	return userID, ok
}

// RequireBearer authenticates the Authorization bearer credential and stores
// the user id plus request origin metadata in the context. 401 on failure.
func RequireBearer(verifier IdentityVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			userID, err := verifier.VerifyBearer(token)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey{}, userID)
			ctx = stepup.WithClientIP(ctx, clientIP(r))
			ctx = stepup.WithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Gate enforces the step-up session on a sensitive route. It requires
// RequireBearer upstream, resolves the scope, and asks the Engine to
// authorize the token from SessionTokenHeader. The wrapped handler never
// runs on denial; the Gate itself never touches resource payloads.
func Gate(engine *stepup.Engine, resolve ScopeResolver, onDeny DenyHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil || resolve == nil {
				writeJSONError(w, http.StatusInternalServerError, "gate not configured")
				return
			}

			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			scope, err := resolve(r)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid resource scope")
				return
			}

			token := r.Header.Get(SessionTokenHeader)
			if err := engine.Authorize(r.Context(), userID, scope, token); err != nil {
				if onDeny != nil {
					onDeny(w, r, userID, scope, err)
					return
				}
				DefaultDeny(w, r, userID, scope, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// DefaultDeny writes the standard Gate denial: 403 with
// requires_verification for a missing or invalid session, 503 for storage
// unavailability.
func DefaultDeny(w http.ResponseWriter, _ *http.Request, _ string, _ stepup.ResourceScope, err error) {
	switch {
	case errors.Is(err, stepup.ErrVerificationRequired):
		writeJSON(w, http.StatusForbidden, map[string]any{
			"message":               "access verification required",
			"requires_verification": true,
		})
	case errors.Is(err, stepup.ErrScopeInvalid):
		writeJSONError(w, http.StatusBadRequest, "invalid resource scope")
	default:
		writeJSONError(w, http.StatusServiceUnavailable, "verification backend unavailable")
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"message": message})
}
