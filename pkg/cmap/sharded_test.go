package cmap

import (
	"fmt"
	"sync"
	"testing"
)

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, DefaultShardCount},
		{-1, DefaultShardCount},
		{3, DefaultShardCount},
		{1, 1},
		{4, 4},
		{32, 32},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("shards=%d", tt.input), func(t *testing.T) {
			m := NewWithShards[int](tt.input)
			if len(m.shards) != tt.expected {
				t.Errorf("NewWithShards(%d) shard count = %d, want %d",
					tt.input, len(m.shards), tt.expected)
			}
		})
	}
}

func TestSetGetDelete(t *testing.T) {
	m := New[int]()

	m.Set("key1", 100)
	if val, ok := m.Get("key1"); !ok || val != 100 {
		t.Errorf("Get(key1) = (%d, %v), want (100, true)", val, ok)
	}
	if !m.Has("key1") {
		t.Error("Has(key1) = false")
	}

	m.Delete("key1")
	if _, ok := m.Get("key1"); ok {
		t.Error("key1 still present after Delete")
	}
}

func TestCompute(t *testing.T) {
	m := New[int]()

	m.Compute("n", func(v int, ok bool) (int, bool) {
		if ok {
			t.Error("fresh key reported as existing")
		}
		return 1, true
	})
	if v, _ := m.Get("n"); v != 1 {
		t.Fatalf("after insert = %d, want 1", v)
	}

	m.Compute("n", func(v int, ok bool) (int, bool) { return v + 1, true })
	if v, _ := m.Get("n"); v != 2 {
		t.Fatalf("after increment = %d, want 2", v)
	}

	m.Compute("n", func(v int, ok bool) (int, bool) { return 0, false })
	if m.Has("n") {
		t.Fatal("keep=false did not delete")
	}

	m.Compute("absent", func(v int, ok bool) (int, bool) { return 0, false })
	if m.Count() != 0 {
		t.Fatalf("Count = %d, want 0", m.Count())
	}
}

func TestComputeConcurrentIncrement(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Compute("counter", func(v int, _ bool) (int, bool) { return v + 1, true })
			}
		}()
	}
	wg.Wait()

	if v, _ := m.Get("counter"); v != 10000 {
		t.Fatalf("counter = %d, want 10000", v)
	}
}

func TestClear(t *testing.T) {
	m := New[int]()
	for i := 0; i < 50; i++ {
		m.Set(fmt.Sprintf("k%d", i), i)
	}
	m.Clear()
	if m.Count() != 0 {
		t.Errorf("Count after Clear = %d", m.Count())
	}
}
