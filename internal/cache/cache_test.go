package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemorySetGet(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("expected miss for unknown key")
	}

	c.Set(ctx, "token", "abc", time.Minute)
	value, ok := c.Get(ctx, "token")
	if !ok || value != "abc" {
		t.Errorf("expected hit with abc, got %q ok=%v", value, ok)
	}

	c.Delete(ctx, "token")
	if _, ok := c.Get(ctx, "token"); ok {
		t.Error("expected miss after delete")
	}
}

func TestMemoryExpiry(t *testing.T) {
	now := time.Now()
	c := &memoryCache{
		entries: make(map[string]memoryEntry),
		now:     func() time.Time { return now },
	}
	ctx := context.Background()

	c.Set(ctx, "token", "abc", time.Minute)
	if _, ok := c.Get(ctx, "token"); !ok {
		t.Fatal("expected hit inside ttl")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(ctx, "token"); ok {
		t.Error("expected expired entry to miss")
	}
	// Expired entry is dropped on read, not resurrected later.
	now = now.Add(-2 * time.Minute)
	if _, ok := c.Get(ctx, "token"); ok {
		t.Error("expected expired entry to stay gone")
	}
}

func TestMemoryZeroTTLNotStored(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	c.Set(ctx, "token", "abc", 0)
	if _, ok := c.Get(ctx, "token"); ok {
		t.Error("expected zero-ttl set to be dropped")
	}
}
