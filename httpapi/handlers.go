package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mediscan/stepup"
	"github.com/mediscan/stepup/middleware"
)

type scopedRequest struct {
	ResourceType string `json:"resource_type"`
	ResourceID   *int64 `json:"resource_id,omitempty"`
	Method       string `json:"method,omitempty"`
	Code         string `json:"code,omitempty"`
}

func (req *scopedRequest) scope() (stepup.ResourceScope, error) {
	resourceType, err := stepup.ParseResourceType(req.ResourceType)
	if err != nil {
		return stepup.ResourceScope{}, err
	}

	scope := stepup.ResourceScope{Type: resourceType}
	if req.ResourceID != nil {
		scope.ResourceID = *req.ResourceID
	}
	if err := scope.Validate(); err != nil {
		return stepup.ResourceScope{}, err
	}
	return scope, nil
}

func (s *Server) handleRequestVerification(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req scopedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	scope, err := req.scope()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid resource scope")
		return
	}

	method, err := stepup.ParseVerificationMethod(req.Method)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unsupported verification method")
		return
	}

	receipt, err := s.engine.RequestVerification(r.Context(), userID, scope, method)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"verification_id":    receipt.VerificationID,
		"method":             receipt.Method.String(),
		"expires_in_minutes": int(receipt.ExpiresIn.Minutes()),
	})
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req scopedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	scope, err := req.scope()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid resource scope")
		return
	}

	grant, err := s.engine.VerifyCode(r.Context(), userID, scope, req.Code)
	if err != nil {
		writeVerifyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_token":      grant.Token,
		"expires_in_minutes": int(grant.ExpiresIn.Minutes()),
	})
}

// denyWithChallenge is the Gate deny handler for resource routes: beyond the
// plain 403 it proactively issues a challenge so the client can go straight
// to code entry. Challenge issuance is best effort; a denial is returned
// either way.
func (s *Server) denyWithChallenge(w http.ResponseWriter, r *http.Request, userID string, scope stepup.ResourceScope, err error) {
	if !errors.Is(err, stepup.ErrVerificationRequired) {
		middleware.DefaultDeny(w, r, userID, scope, err)
		return
	}

	body := map[string]any{
		"message":               "access verification required",
		"requires_verification": true,
	}
	if receipt, reqErr := s.engine.RequestVerification(r.Context(), userID, scope, stepup.MethodOTP); reqErr == nil {
		body["verification_id"] = receipt.VerificationID
		body["method"] = receipt.Method.String()
	}

	writeJSON(w, http.StatusForbidden, body)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid resource id")
		return
	}

	payload, err := s.resources.Profile(r.Context(), userID, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid resource id")
		return
	}

	payload, err := s.resources.Report(r.Context(), userID, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	payload, err := s.resources.Reports(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "reports not found")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeRequestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stepup.ErrNotPermitted):
		writeError(w, http.StatusForbidden, "resource access not permitted")
	case errors.Is(err, stepup.ErrScopeInvalid),
		errors.Is(err, stepup.ErrMethodInvalid),
		errors.Is(err, stepup.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid verification request")
	case errors.Is(err, stepup.ErrDeliveryFailed):
		writeError(w, http.StatusInternalServerError, "verification code could not be delivered")
	case errors.Is(err, stepup.ErrPermissionUnavailable):
		writeError(w, http.StatusServiceUnavailable, "permission check unavailable, retry later")
	default:
		writeError(w, http.StatusInternalServerError, "verification backend unavailable")
	}
}

func writeVerifyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stepup.ErrChallengeNotFound):
		writeError(w, http.StatusBadRequest, "no active verification challenge")
	case errors.Is(err, stepup.ErrChallengeConsumed):
		writeError(w, http.StatusBadRequest, "verification code already used")
	case errors.Is(err, stepup.ErrCodeExpired):
		writeError(w, http.StatusBadRequest, "verification code expired")
	case errors.Is(err, stepup.ErrCodeAttemptsExceeded):
		writeError(w, http.StatusBadRequest, "too many attempts, request a new code")
	case errors.Is(err, stepup.ErrCodeInvalid),
		errors.Is(err, stepup.ErrScopeInvalid),
		errors.Is(err, stepup.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid verification code")
	default:
		writeError(w, http.StatusInternalServerError, "verification backend unavailable")
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"message": message})
}
