package stepup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testVerificationConfig() Config {
	cfg := DefaultConfig()
	cfg.Reaper.Enabled = false
	return cfg
}

func newTestEngine(t *testing.T, rdb *redis.Client, sender CodeSender, policy AccessPolicy) *Engine {
	t.Helper()

	cfg := testVerificationConfig()
	return &Engine{
		config:         cfg,
		challengeStore: newAccessChallengeStore(rdb, cfg.Verification.RedisPrefix),
		sessionStore:   newAccessSessionStore(rdb, cfg.Session.RedisPrefix),
		sender:         sender,
		policy:         policy,
	}
}

// mockSender records every delivered code and can be toggled to fail.
type mockSender struct {
	mu    sync.Mutex
	codes []string
	fail  bool
}

func (s *mockSender) Send(_ context.Context, _ string, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail {
		return errors.New("smtp connection refused")
	}
	s.codes = append(s.codes, code)
	return nil
}

func (s *mockSender) lastCode(t *testing.T) string {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.codes) == 0 {
		t.Fatal("no code was delivered")
	}
	return s.codes[len(s.codes)-1]
}

func (s *mockSender) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

type allowAllPolicy struct{}

func (allowAllPolicy) UserMayAccess(context.Context, string, ResourceScope) (bool, error) {
	return true, nil
}

type denyAllPolicy struct{}

func (denyAllPolicy) UserMayAccess(context.Context, string, ResourceScope) (bool, error) {
	return false, nil
}

type failingPolicy struct{}

func (failingPolicy) UserMayAccess(context.Context, string, ResourceScope) (bool, error) {
	return false, errors.New("permission service timeout")
}

func requestAndDeliver(t *testing.T, engine *Engine, sender *mockSender, userID string, scope ResourceScope) string {
	t.Helper()

	if _, err := engine.RequestVerification(context.Background(), userID, scope, MethodOTP); err != nil {
		t.Fatalf("RequestVerification failed: %v", err)
	}
	return sender.lastCode(t)
}

func pastUnix(d time.Duration) int64 {
	return time.Now().Add(-d).Unix()
}
