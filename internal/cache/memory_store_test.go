package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreGetSetRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "absent"); err != ErrMiss {
		t.Fatalf("expected ErrMiss for absent key, got %v", err)
	}
	if err := store.Set(context.Background(), "key", []byte("value"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := store.Get(context.Background(), "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got) != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestMemoryStoreExpiresEntries(t *testing.T) {
	store := NewMemoryStore()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	if err := store.Set(context.Background(), "key", []byte("value"), 30*time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, err := store.Get(context.Background(), "key"); err != nil {
		t.Fatalf("expected hit before expiry, got %v", err)
	}

	current = current.Add(31 * time.Second)
	if _, err := store.Get(context.Background(), "key"); err != ErrMiss {
		t.Fatalf("expected ErrMiss after expiry, got %v", err)
	}
}

func TestMemoryStoreAcquireWindow(t *testing.T) {
	store := NewMemoryStore()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	ok, _, err := store.Acquire(context.Background(), "rate:ip:1.2.3.4", time.Minute)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected first acquire to win the window")
	}

	current = current.Add(20 * time.Second)
	ok, retryAfter, err := store.Acquire(context.Background(), "rate:ip:1.2.3.4", time.Minute)
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}
	if ok {
		t.Fatalf("expected second acquire inside the window to be denied")
	}
	if retryAfter != 40*time.Second {
		t.Fatalf("expected 40s remaining, got %s", retryAfter)
	}

	current = current.Add(41 * time.Second)
	ok, _, err = store.Acquire(context.Background(), "rate:ip:1.2.3.4", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected acquire after window to succeed, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreAcquireKeysAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	for _, key := range []string{"rate:ip:1.1.1.1", "rate:ip:2.2.2.2"} {
		ok, _, err := store.Acquire(context.Background(), key, time.Minute)
		if err != nil || !ok {
			t.Fatalf("expected fresh window for %s, got ok=%v err=%v", key, ok, err)
		}
	}
}
