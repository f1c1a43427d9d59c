package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/mediscan/stepup"
	"github.com/redis/go-redis/v9"
)

type stubVerifier struct {
	userID string
}

func (v stubVerifier) VerifyBearer(token string) (string, error) {
	if token != "good-token" {
		return "", errors.New("bad token")
	}
	return v.userID, nil
}

type captureSender struct {
	mu   sync.Mutex
	code string
}

func (s *captureSender) Send(_ context.Context, _ string, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
	return nil
}

func (s *captureSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

type openPolicy struct{}

func (openPolicy) UserMayAccess(context.Context, string, stepup.ResourceScope) (bool, error) {
	return true, nil
}

func newGateTestEngine(t *testing.T) (*stepup.Engine, *captureSender) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sender := &captureSender{}

	cfg := stepup.DefaultConfig()
	cfg.Reaper.Enabled = false

	engine, err := stepup.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCodeSender(sender).
		WithAccessPolicy(openPolicy{}).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, sender
}

func fixedScopeResolver(r *http.Request) (stepup.ResourceScope, error) {
	return stepup.ScopeFor(stepup.ResourceReport, 7), nil
}

func okHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func TestRequireBearerRejectsMissingOrBadToken(t *testing.T) {
	next, called := okHandler()
	handler := RequireBearer(stubVerifier{userID: "u1"})(next)

	for _, header := range []string{"", "Bearer ", "Bearer wrong", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/reports/7", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
	if *called {
		t.Fatal("next handler must not run without a valid bearer")
	}
}

func TestRequireBearerEstablishesIdentity(t *testing.T) {
	var gotUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireBearer(stubVerifier{userID: "u1"})(next)

	req := httptest.NewRequest(http.MethodGet, "/reports/7", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotUserID != "u1" {
		t.Fatalf("expected identity u1, got %q", gotUserID)
	}
}

func TestGateDeniesWithoutSession(t *testing.T) {
	engine, _ := newGateTestEngine(t)

	next, called := okHandler()
	handler := RequireBearer(stubVerifier{userID: "u1"})(
		Gate(engine, fixedScopeResolver, nil)(next),
	)

	req := httptest.NewRequest(http.MethodGet, "/reports/7", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if *called {
		t.Fatal("gated handler must not run without a session")
	}

	var body struct {
		Message              string `json:"message"`
		RequiresVerification bool   `json:"requires_verification"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("denial body is not JSON: %v", err)
	}
	if !body.RequiresVerification {
		t.Fatal("denial must flag requires_verification")
	}
}

func TestGateAllowsWithValidSession(t *testing.T) {
	engine, sender := newGateTestEngine(t)
	ctx := context.Background()
	scope := stepup.ScopeFor(stepup.ResourceReport, 7)

	if _, err := engine.RequestVerification(ctx, "u1", scope, stepup.MethodOTP); err != nil {
		t.Fatalf("RequestVerification failed: %v", err)
	}
	grant, err := engine.VerifyCode(ctx, "u1", scope, sender.last())
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}

	next, called := okHandler()
	handler := RequireBearer(stubVerifier{userID: "u1"})(
		Gate(engine, fixedScopeResolver, nil)(next),
	)

	req := httptest.NewRequest(http.MethodGet, "/reports/7", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	req.Header.Set(SessionTokenHeader, grant.Token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !*called {
		t.Fatal("gated handler should have run")
	}
}

func TestGateRejectsTokenForOtherScope(t *testing.T) {
	engine, sender := newGateTestEngine(t)
	ctx := context.Background()
	otherScope := stepup.ScopeFor(stepup.ResourceReport, 8)

	if _, err := engine.RequestVerification(ctx, "u1", otherScope, stepup.MethodOTP); err != nil {
		t.Fatalf("RequestVerification failed: %v", err)
	}
	grant, err := engine.VerifyCode(ctx, "u1", otherScope, sender.last())
	if err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}

	next, called := okHandler()
	handler := RequireBearer(stubVerifier{userID: "u1"})(
		Gate(engine, fixedScopeResolver, nil)(next),
	)

	// Resolver asks for report 7; the session is bound to report 8.
	req := httptest.NewRequest(http.MethodGet, "/reports/7", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	req.Header.Set(SessionTokenHeader, grant.Token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if *called {
		t.Fatal("gated handler must not run for a mismatched scope")
	}
	if !strings.Contains(rec.Body.String(), "requires_verification") {
		t.Fatal("mismatch must look like a missing session")
	}
}

func TestGateScopeResolverFailure(t *testing.T) {
	engine, _ := newGateTestEngine(t)

	badResolver := func(*http.Request) (stepup.ResourceScope, error) {
		return stepup.ResourceScope{}, errors.New("no id in path")
	}

	next, called := okHandler()
	handler := RequireBearer(stubVerifier{userID: "u1"})(
		Gate(engine, badResolver, nil)(next),
	)

	req := httptest.NewRequest(http.MethodGet, "/reports/abc", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if *called {
		t.Fatal("gated handler must not run when the scope cannot be resolved")
	}
}
