package cache

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

func TestBoundedSetGet(t *testing.T) {
	c := NewBounded[string](Config{MaxSize: 100}, nil)

	c.Set("key1", "value1")

	val, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if val != "value1" {
		t.Errorf("expected value1, got %v", val)
	}
	if _, ok := c.Get("nonexistent"); ok {
		t.Error("expected cache miss")
	}
}

func TestBoundedInsertionOrderEviction(t *testing.T) {
	var evicted []string
	c := NewBounded[int](Config{MaxSize: 3}, func(key string, _ int) {
		evicted = append(evicted, key)
	})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Reads do not protect "a" under insertion order.
	c.Get("a")
	c.Set("d", 4)

	if _, ok := c.Get("a"); ok {
		t.Error("expected 'a' to be evicted first")
	}
	if !slices.Equal(evicted, []string{"a"}) {
		t.Errorf("expected eviction callback for a, got %v", evicted)
	}
	if got := c.Keys(); !slices.Equal(got, []string{"b", "c", "d"}) {
		t.Errorf("unexpected key order %v", got)
	}
}

func TestBoundedLRUEviction(t *testing.T) {
	c := NewBounded[int](Config{MaxSize: 3, Policy: LeastRecentlyUsed}, nil)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Access "a" to make it recently used
	c.Get("a")

	// Add "d" - should evict "b" (least recently used)
	c.Set("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Error("expected 'b' to be evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("expected %q to be present", k)
		}
	}
}

func TestBoundedCapacityTen(t *testing.T) {
	var evicted []string
	c := NewBounded[int](DefaultConfig(), func(key string, _ int) { evicted = append(evicted, key) })

	for i := 0; i < 12; i++ {
		c.Set(fmt.Sprintf("/route/%d", i), i)
	}
	if c.Len() != 10 {
		t.Errorf("expected 10 entries, got %d", c.Len())
	}
	if !slices.Equal(evicted, []string{"/route/0", "/route/1"}) {
		t.Errorf("unexpected evictions %v", evicted)
	}
}

func TestBoundedUpdateExisting(t *testing.T) {
	c := NewBounded[string](Config{MaxSize: 2}, nil)

	c.Set("key1", "old")
	c.Set("key2", "x")
	c.Set("key1", "new")

	val, _ := c.Get("key1")
	if val != "new" {
		t.Errorf("expected 'new', got %v", val)
	}
	if c.Len() != 2 {
		t.Errorf("expected length 2, got %d", c.Len())
	}
	// key1 keeps its original insertion position.
	if got := c.Keys(); got[0] != "key1" {
		t.Errorf("expected key1 oldest, got %v", got)
	}
}

func TestBoundedTTLExpiration(t *testing.T) {
	var expired []string
	c := NewBounded[string](Config{MaxSize: 10, TTL: time.Minute}, func(key string, _ string) {
		expired = append(expired, key)
	})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", "1")
	c.SetWithTTL("b", "2", 0)

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after TTL expiration")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("zero TTL should never expire")
	}
	if !slices.Equal(expired, []string{"a"}) {
		t.Errorf("expected expiry callback for a, got %v", expired)
	}
}

func TestBoundedPurgeExpired(t *testing.T) {
	c := NewBounded[int](Config{MaxSize: 10, TTL: time.Second}, nil)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	c.Set("b", 2)
	c.SetWithTTL("c", 3, time.Hour)

	now = now.Add(time.Minute)
	if n := c.PurgeExpired(); n != 2 {
		t.Errorf("expected 2 purged, got %d", n)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 remaining, got %d", c.Len())
	}
}

func TestBoundedGetOrSet(t *testing.T) {
	c := NewBounded[int](Config{MaxSize: 10}, nil)
	calls := 0
	create := func() (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrSet("k", create)
		if err != nil || v != 42 {
			t.Fatalf("GetOrSet = %v, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("expected create once, got %d", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrSet("bad", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("expected create error, got %v", err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Error("failed create must not be cached")
	}
}

func TestBoundedGetOrSetConcurrent(t *testing.T) {
	c := NewBounded[*int](Config{MaxSize: 10}, nil)
	var wg sync.WaitGroup
	results := make([]*int, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _ := c.GetOrSet("shared", func() (*int, error) { return new(int), nil })
			results[i] = v
		}(i)
	}
	wg.Wait()
	for _, r := range results[1:] {
		if r != results[0] {
			t.Fatal("concurrent GetOrSet created more than one value")
		}
	}
}

func TestBoundedDeleteAndClear(t *testing.T) {
	evictions := 0
	c := NewBounded[int](Config{MaxSize: 10}, func(string, int) { evictions++ })

	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	c.Delete("nonexistent")
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after delete")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected length 0 after clear, got %d", c.Len())
	}
	if evictions != 0 {
		t.Errorf("delete and clear must not invoke the eviction callback")
	}
}

func TestBoundedStats(t *testing.T) {
	c := NewBounded[int](Config{MaxSize: 2}, nil)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	c.Get("b")
	c.Get("a")

	s := c.Stats()
	if s.Size != 2 || s.MaxSize != 2 {
		t.Errorf("unexpected size stats %+v", s)
	}
	if s.Hits != 1 || s.Misses != 1 || s.Evictions != 1 {
		t.Errorf("unexpected counters %+v", s)
	}
	if s.HitRate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %v", s.HitRate)
	}
}
