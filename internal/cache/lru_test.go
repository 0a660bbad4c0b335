package cache

import (
	"testing"
	"time"
)

func TestLRUCacheGetSet(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)

	c.Set("u1:summary", 1)
	c.Set("u1:categories", 2)

	if v, ok := c.Get("u1:summary"); !ok || v != 1 {
		t.Errorf("Get = %d, %v; want 1, true", v, ok)
	}

	// Touch u1:summary so u1:categories is the eviction candidate.
	c.Get("u1:summary")
	c.Set("u2:summary", 3)

	if _, ok := c.Get("u1:categories"); ok {
		t.Error("least recently used entry should have been evicted")
	}
	if _, ok := c.Get("u1:summary"); !ok {
		t.Error("recently used entry must survive eviction")
	}
	if c.Size() != 2 {
		t.Errorf("Size = %d, want 2", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache[string](10, 10*time.Millisecond)

	c.Set("k", "v")
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expired entry must not be returned")
	}
	c.Set("k2", "v2")
	time.Sleep(20 * time.Millisecond)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired = %d, want 1", n)
	}
}

func TestDeletePrefixEvictsOneOwner(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)

	c.Set("u1:summary", 1)
	c.Set("u1:categories", 2)
	c.Set("u2:summary", 3)

	if n := c.DeletePrefix("u1:"); n != 2 {
		t.Fatalf("DeletePrefix removed %d entries, want 2", n)
	}
	if _, ok := c.Get("u1:summary"); ok {
		t.Error("u1 entry survived invalidation")
	}
	if _, ok := c.Get("u2:summary"); !ok {
		t.Error("other owner's entry must survive invalidation")
	}
}
