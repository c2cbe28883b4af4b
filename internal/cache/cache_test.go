package cache

import (
	"fmt"
	"testing"
)

func TestCache_LookupMiss(t *testing.T) {
	c := New(10)
	if _, ok := c.Lookup("agent-1", "hello"); ok {
		t.Fatal("empty cache should miss")
	}
}

func TestCache_StoreAndLookup(t *testing.T) {
	c := New(10)
	c.Store("agent-1", "hello", "Hi there")
	reply, ok := c.Lookup("agent-1", "hello")
	if !ok || reply != "Hi there" {
		t.Fatalf("expected hit with %q, got %q ok=%v", "Hi there", reply, ok)
	}
}

func TestCache_NormalizesKey(t *testing.T) {
	c := New(10)
	c.Store("agent-1", "  Hello World  ", "reply")
	if _, ok := c.Lookup("agent-1", "hello world"); !ok {
		t.Fatal("lookup should hit after lowercase+trim normalization")
	}
}

func TestCache_ScopedByAgent(t *testing.T) {
	c := New(10)
	c.Store("agent-1", "hello", "reply-1")
	if _, ok := c.Lookup("agent-2", "hello"); ok {
		t.Fatal("entries must not leak across agents")
	}
}

func TestCache_FIFOEviction(t *testing.T) {
	c := New(50)
	for i := 0; i < 60; i++ {
		c.Store("agent-1", fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i))
	}
	if c.Len() != 50 {
		t.Fatalf("expected exactly 50 entries, got %d", c.Len())
	}
	// Oldest ten inserted keys are gone, the rest remain.
	for i := 0; i < 10; i++ {
		if _, ok := c.Lookup("agent-1", fmt.Sprintf("question %d", i)); ok {
			t.Errorf("question %d should have been evicted", i)
		}
	}
	for i := 10; i < 60; i++ {
		if _, ok := c.Lookup("agent-1", fmt.Sprintf("question %d", i)); !ok {
			t.Errorf("question %d should still be cached", i)
		}
	}
}

func TestCache_EvictionIgnoresReads(t *testing.T) {
	c := New(2)
	c.Store("a", "first", "1")
	c.Store("a", "second", "2")
	// Reading the oldest entry must not protect it: eviction is FIFO, not LRU.
	c.Lookup("a", "first")
	c.Store("a", "third", "3")
	if _, ok := c.Lookup("a", "first"); ok {
		t.Fatal("first entry should be evicted despite recent read")
	}
	if _, ok := c.Lookup("a", "second"); !ok {
		t.Fatal("second entry should survive")
	}
}

func TestCache_UpdateKeepsInsertionOrder(t *testing.T) {
	c := New(2)
	c.Store("a", "first", "1")
	c.Store("a", "second", "2")
	c.Store("a", "first", "updated")
	c.Store("a", "third", "3")
	// "first" kept its original slot, so it is still the oldest.
	if _, ok := c.Lookup("a", "first"); ok {
		t.Fatal("first entry should be evicted")
	}
	if reply, _ := c.Lookup("a", "second"); reply != "2" {
		t.Fatalf("second entry should survive, got %q", reply)
	}
}

func TestCache_DefaultCapacity(t *testing.T) {
	c := New(0)
	for i := 0; i < DefaultCapacity+5; i++ {
		c.Store("a", fmt.Sprintf("q%d", i), "r")
	}
	if c.Len() != DefaultCapacity {
		t.Fatalf("expected %d entries, got %d", DefaultCapacity, c.Len())
	}
}
