package common

import "testing"

func TestLRUAddGet(t *testing.T) {
	cache := NewLRU(2, nil)

	cache.Add("a", 1)
	cache.Add("b", 2)

	if v, ok := cache.Get("a"); !ok || v.(int) != 1 {
		t.Fatalf("Get(a) should return 1, got %v %v", v, ok)
	}
	if cache.Len() != 2 {
		t.Fatalf("Len should be 2, got %d", cache.Len())
	}
}

func TestLRUEviction(t *testing.T) {
	evicted := []interface{}{}
	cache := NewLRU(2, func(key, value interface{}) {
		evicted = append(evicted, key)
	})

	cache.Add("a", 1)
	cache.Add("b", 2)

	// Touch a so b becomes the eviction candidate.
	cache.Get("a")
	cache.Add("c", 3)

	if _, ok := cache.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if _, ok := cache.Get("a"); !ok {
		t.Fatal("a should have survived")
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("eviction callback should have seen b, got %v", evicted)
	}
}

func TestLRUUpdateExisting(t *testing.T) {
	cache := NewLRU(2, nil)

	cache.Add("a", 1)
	cache.Add("a", 10)

	if cache.Len() != 1 {
		t.Fatalf("re-adding a key should not grow the cache, Len %d", cache.Len())
	}
	if v, _ := cache.Get("a"); v.(int) != 10 {
		t.Fatalf("value should have been updated to 10, got %v", v)
	}
}

func TestLRURemove(t *testing.T) {
	cache := NewLRU(2, nil)

	cache.Add("a", 1)
	cache.Remove("a")

	if _, ok := cache.Get("a"); ok {
		t.Fatal("a should have been removed")
	}
	if cache.Len() != 0 {
		t.Fatalf("Len should be 0, got %d", cache.Len())
	}
}
