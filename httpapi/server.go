// Package httpapi exposes the step-up verification flow over JSON/HTTP: the
// challenge and code endpoints under /auth, and gated sensitive-resource
// routes. All routes require a primary bearer credential.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mediscan/stepup"
	"github.com/mediscan/stepup/middleware"
)

// ResourceProvider serves the sensitive payloads behind the Gate. The Gate
// decides access; the provider only renders data it is asked for.
type ResourceProvider interface {
	Profile(ctx context.Context, userID string, profileID int64) (any, error)
	Report(ctx context.Context, userID string, reportID int64) (any, error)
	Reports(ctx context.Context, userID string) (any, error)
}

// Server wires the engine, the primary-identity verifier, and a resource
// provider into an http.Handler.
type Server struct {
	engine    *stepup.Engine
	identity  middleware.IdentityVerifier
	resources ResourceProvider
	router    *mux.Router
}

func NewServer(engine *stepup.Engine, identity middleware.IdentityVerifier, resources ResourceProvider) *Server {
	s := &Server{
		engine:    engine,
		identity:  identity,
		resources: resources,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(middleware.RequireBearer(s.identity))

	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/request-access-verification", s.handleRequestVerification).Methods(http.MethodPost)
	auth.HandleFunc("/verify-access-code", s.handleVerifyCode).Methods(http.MethodPost)

	r.Handle("/profile/{id:[0-9]+}",
		s.gated(profileScopeResolver, http.HandlerFunc(s.handleProfile))).Methods(http.MethodGet)
	r.Handle("/reports/{id:[0-9]+}",
		s.gated(reportScopeResolver, http.HandlerFunc(s.handleReport))).Methods(http.MethodGet)
	r.Handle("/reports",
		s.gated(allReportsScopeResolver, http.HandlerFunc(s.handleReports))).Methods(http.MethodGet)

	s.router = r
}

// gated wraps a resource handler with the step-up Gate. Denials reuse the
// issuing deny handler so the client receives a verification id it can
// confirm directly.
func (s *Server) gated(resolve middleware.ScopeResolver, next http.Handler) http.Handler {
	return middleware.Gate(s.engine, resolve, s.denyWithChallenge)(next)
}

func profileScopeResolver(r *http.Request) (stepup.ResourceScope, error) {
	id, err := pathID(r)
	if err != nil {
		return stepup.ResourceScope{}, err
	}
	return stepup.ScopeFor(stepup.ResourceProfile, id), nil
}

func reportScopeResolver(r *http.Request) (stepup.ResourceScope, error) {
	id, err := pathID(r)
	if err != nil {
		return stepup.ResourceScope{}, err
	}
	return stepup.ScopeFor(stepup.ResourceReport, id), nil
}

func allReportsScopeResolver(*http.Request) (stepup.ResourceScope, error) {
	return stepup.AllReportsScope(), nil
}
