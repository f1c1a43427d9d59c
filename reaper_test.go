package stepup

import (
	"context"
	"testing"
	"time"
)

func TestReaperDisabledReturnsNil(t *testing.T) {
	if r := newReaper(&Engine{}, nil, ReaperConfig{Enabled: false}); r != nil {
		t.Fatal("disabled reaper config must yield a nil reaper")
	}
}

func TestReaperSweepMarksExpired(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestEngine(t, rdb, &mockSender{}, allowAllPolicy{})
	engine.metrics = NewMetrics(MetricsConfig{Enabled: true})

	stale := newTestChallengeRecord(t, "111111", -time.Minute)
	if _, err := engine.challengeStore.Put(ctx, "u1", ScopeFor(ResourceReport, 1), stale, time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	r := &reaper{
		engine:    engine,
		store:     engine.challengeStore,
		interval:  time.Minute,
		scanCount: 64,
		done:      make(chan struct{}),
	}
	r.sweep()

	got, err := engine.challengeStore.Get(ctx, "u1", ScopeFor(ResourceReport, 1))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != challengeExpired {
		t.Fatalf("expected expired status after sweep, got %v", got.Status)
	}
	if engine.metrics.Value(MetricReaperExpired) != 1 {
		t.Fatalf("expected 1 reaper sample, got %d", engine.metrics.Value(MetricReaperExpired))
	}
}

func TestReaperCloseIdempotent(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb, &mockSender{}, allowAllPolicy{})
	r := newReaper(engine, engine.challengeStore, ReaperConfig{
		Enabled:   true,
		Interval:  time.Hour,
		ScanCount: 64,
	})
	if r == nil {
		t.Fatal("expected a running reaper")
	}

	r.Close()
	r.Close()
}
