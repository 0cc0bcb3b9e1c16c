package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](10, time.Minute).WithClock(clk.now)
	c.Set("k", "v")
	c.Set("j", "w")

	clk.t = clk.t.Add(30 * time.Second)
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("expected hit before ttl, got %q %v", v, ok)
	}

	clk.t = clk.t.Add(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss after ttl")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("expected 1 swept entry, got %d", n)
	}
	if c.Size() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Size())
	}
}

func TestLRUOverwriteAndPurge(t *testing.T) {
	c := NewLRUCache[int](3, 0)
	c.Set("a", 1)
	c.Set("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Fatalf("expected overwrite, got %d", v)
	}
	c.Set("b", 1)
	c.Delete("b")
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b deleted")
	}
	c.Purge()
	if c.Size() != 0 {
		t.Fatalf("expected empty after purge, got %d", c.Size())
	}
}

func TestJanitorStopsWithContext(t *testing.T) {
	c := NewLRUCache[int](1, time.Nanosecond)
	c.Set("a", 1)
	ctx, cancel := context.WithCancel(context.Background())
	j := NewJanitor(nil, c)
	go j.Run(ctx, time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for c.Size() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-j.Done():
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
	if c.Size() != 0 {
		t.Fatal("expected janitor to sweep expired entry")
	}
}
