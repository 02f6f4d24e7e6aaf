package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// record stands in for a resolved document.
type record struct {
	title string
}

func TestLRUCache_BasicOperations(t *testing.T) {
	c := NewLRUCache[string, *record](Config{MaxSize: 3})

	c.Put("d1", &record{"Birds"})
	c.Put("d2", &record{"Fish"})
	c.Put("d3", &record{"Moths"})

	tests := []struct {
		key  string
		want string
	}{
		{"d1", "Birds"},
		{"d2", "Fish"},
		{"d3", "Moths"},
	}
	for _, tt := range tests {
		got, ok := c.Get(tt.key)
		if !ok || got.title != tt.want {
			t.Errorf("Get(%q) = %v, %v; want %q, true", tt.key, got, ok, tt.want)
		}
	}

	if got, ok := c.Get("missing"); ok || got != nil {
		t.Errorf("Get(missing) = %v, %v; want nil, false", got, ok)
	}
	if n := c.Len(); n != 3 {
		t.Errorf("Len() = %d; want 3", n)
	}
}

func TestLRUCache_Eviction(t *testing.T) {
	c := NewLRUCache[string, int](Config{MaxSize: 2})

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) should return false after eviction")
	}

	c.Get("b")
	c.Put("d", 4)

	if _, ok := c.Get("c"); ok {
		t.Error("Get(c) should return false after eviction")
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Errorf("Get(b) = %d, %v; want 2, true", v, ok)
	}
	if v, ok := c.Get("d"); !ok || v != 4 {
		t.Errorf("Get(d) = %d, %v; want 4, true", v, ok)
	}
}

func TestLRUCache_Update(t *testing.T) {
	c := NewLRUCache[string, int](Config{MaxSize: 2})

	c.Put("a", 1)
	c.Put("a", 2)

	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Errorf("Get(a) = %d, %v; want 2, true", v, ok)
	}
	if n := c.Len(); n != 1 {
		t.Errorf("Len() = %d; want 1", n)
	}
}

func TestLRUCache_RemoveAndClear(t *testing.T) {
	c := NewLRUCache[string, int](Config{MaxSize: 3})
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	c.Remove("b")
	c.Remove("missing")
	if _, ok := c.Get("b"); ok {
		t.Error("Get(b) should return false after Remove")
	}
	if n := c.Len(); n != 2 {
		t.Errorf("Len() = %d; want 2", n)
	}

	c.Clear()
	if n := c.Len(); n != 0 {
		t.Errorf("Len() after Clear = %d; want 0", n)
	}
	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) should return false after Clear")
	}
}

func TestLRUCache_TTL(t *testing.T) {
	c := NewLRUCache[string, int](Config{MaxSize: 3, TTL: 50 * time.Millisecond})

	c.Put("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}

	time.Sleep(100 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) should return false after TTL expiration")
	}
	if n := c.Len(); n != 0 {
		t.Errorf("Len() = %d; want expired entry removed", n)
	}
}

func TestLRUCache_Stats(t *testing.T) {
	c := NewLRUCache[string, int](Config{MaxSize: 2})

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a")
	c.Get("b")
	c.Get("c")
	c.Get("d")
	c.Put("c", 3)

	stats := c.Stats()
	want := Stats{Hits: 2, Misses: 2, Evictions: 1, Size: 2, MaxSize: 2}
	if stats != want {
		t.Errorf("Stats() = %+v; want %+v", stats, want)
	}
	if rate := stats.HitRate(); rate != 0.5 {
		t.Errorf("HitRate() = %v; want 0.5", rate)
	}
	if rate := (Stats{}).HitRate(); rate != 0 {
		t.Errorf("HitRate() of empty stats = %v; want 0", rate)
	}
}

func TestLRUCache_OnEvict(t *testing.T) {
	var evictedKey string
	var evictedValue int

	c := NewLRUCache[string, int](Config{
		MaxSize: 2,
		OnEvict: func(key, value any) {
			evictedKey = key.(string)
			evictedValue = value.(int)
		},
	})

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	if evictedKey != "a" || evictedValue != 1 {
		t.Errorf("evicted %q=%d; want a=1", evictedKey, evictedValue)
	}
}

func TestLRUCache_UnlimitedSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		c := NewLRUCache[string, int](Config{MaxSize: size})
		for i := 0; i < 500; i++ {
			c.Put(fmt.Sprintf("k%d", i), i)
		}
		if n := c.Len(); n != 500 {
			t.Errorf("MaxSize %d: Len() = %d; want 500", size, n)
		}
		if s := c.Stats(); s.Evictions != 0 || s.MaxSize != 0 {
			t.Errorf("MaxSize %d: Stats() = %+v", size, s)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxSize != DefaultSize || cfg.TTL != 0 || cfg.OnEvict != nil {
		t.Errorf("DefaultConfig() = %+v", cfg)
	}
}

func TestLRUCache_Concurrency(t *testing.T) {
	const max = 100
	c := NewLRUCache[int, int](Config{MaxSize: max})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put(id*100+j, j)
			}
		}(i)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Get(id*100 + j)
			}
		}(i)
	}
	wg.Wait()

	if n := c.Len(); n > max {
		t.Errorf("Len() = %d; want <= %d", n, max)
	}
}
