package stepup

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionRecordCodecRoundTrip(t *testing.T) {
	record := &accessSessionRecord{
		UserID:    "u1",
		Scope:     ScopeFor(ResourceProfile, 15),
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(30 * time.Minute).Unix(),
	}

	encoded, err := encodeAccessSessionRecord(record)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := decodeAccessSessionRecord(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if *decoded != *record {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, record)
	}
}

func TestSessionStoreSaveGet(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newAccessSessionStore(rdb, "avs")
	record := &accessSessionRecord{
		UserID:    "u1",
		Scope:     AllReportsScope(),
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(30 * time.Minute).Unix(),
	}

	if err := store.Save(ctx, "tok-1", record, 30*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UserID != "u1" || got.Scope != AllReportsScope() {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestSessionStoreGetUnknownToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := newAccessSessionStore(rdb, "avs")

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, errAccessSessionNotFound) {
		t.Fatalf("expected errAccessSessionNotFound, got %v", err)
	}
}

func TestSessionStoreLazyExpiry(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newAccessSessionStore(rdb, "avs")
	record := &accessSessionRecord{
		UserID:    "u1",
		Scope:     ScopeFor(ResourceReport, 7),
		IssuedAt:  pastUnix(31 * time.Minute),
		ExpiresAt: pastUnix(time.Minute),
	}

	// The key TTL is generous; expiry is enforced from the record itself.
	if err := store.Save(ctx, "stale", record, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Get(ctx, "stale"); !errors.Is(err, errAccessSessionNotFound) {
		t.Fatalf("expected errAccessSessionNotFound for expired record, got %v", err)
	}

	// The expired key was deleted opportunistically.
	if mr.Exists("avs:stale") {
		t.Fatal("expired session key was not purged")
	}
}

func TestSessionStoreDelete(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := newAccessSessionStore(rdb, "avs")
	record := &accessSessionRecord{
		UserID:    "u1",
		Scope:     ScopeFor(ResourceReport, 7),
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(30 * time.Minute).Unix(),
	}

	if err := store.Save(ctx, "tok-del", record, 30*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(ctx, "tok-del"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "tok-del"); !errors.Is(err, errAccessSessionNotFound) {
		t.Fatalf("expected errAccessSessionNotFound after delete, got %v", err)
	}
}
