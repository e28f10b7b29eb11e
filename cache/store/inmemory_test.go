package store

import (
	"context"
	"testing"
	"time"

	"github.com/sweetpotato0/queryweave/cache"
)

func TestInMemoryStoreSetGet(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("Get = %q", got)
	}
}

func TestInMemoryStoreMiss(t *testing.T) {
	s := NewInMemoryStore()
	if _, err := s.Get(context.Background(), "absent"); err != cache.ErrMiss {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestInMemoryStoreExpiry(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := s.Get(ctx, "k"); err != cache.ErrMiss {
		t.Fatalf("expected ErrMiss after expiry, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expired entry not reaped, len=%d", s.Len())
	}
}

func TestInMemoryStoreNoExpiry(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("zero TTL should not expire: %v", err)
	}
}

func TestInMemoryStoreCopiesValues(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	original := []byte("value")
	s.Set(ctx, "k", original, time.Minute)
	original[0] = 'X'

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "value" {
		t.Fatalf("stored value aliased caller slice: %q", got)
	}
	got[0] = 'Y'
	again, _ := s.Get(ctx, "k")
	if string(again) != "value" {
		t.Fatalf("returned value aliased stored slice: %q", again)
	}
}
