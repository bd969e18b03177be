// Package storagetest provides a conformance suite every storage.Store
// engine runs from its own tests.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/keydesk/internal/storage"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) storage.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"GetSetDelete", testGetSetDelete},
		{"SetNX", testSetNX},
		{"CompareAndSwap", testCompareAndSwap},
		{"CompareAndSwapRace", testCompareAndSwapRace},
		{"Sets", testSets},
		{"SPopDrains", testSPopDrains},
		{"Lists", testLists},
		{"ScanPrefix", testScanPrefix},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s)
		})
	}
}

func testGetSetDelete(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrKeyNotFound", err)
	}

	if err := s.Set(ctx, "a", []byte("1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "a")
	if err != nil || string(got) != "1" {
		t.Fatalf("Get(a) = %q, %v", got, err)
	}

	if err := s.Set(ctx, "a", []byte("2"), time.Hour); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if got, _ := s.Get(ctx, "a"); string(got) != "2" {
		t.Fatalf("Get(a) after overwrite = %q", got)
	}

	if err := s.Delete(ctx, "a", "never-existed"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Fatalf("Get after Delete error = %v", err)
	}
}

func testSetNX(t *testing.T, s storage.Store) {
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "flag", []byte("1"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX = %v, %v; want true", ok, err)
	}
	ok, err = s.SetNX(ctx, "flag", []byte("2"), time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX = %v, %v; want false", ok, err)
	}
	if got, _ := s.Get(ctx, "flag"); string(got) != "1" {
		t.Fatalf("SetNX overwrote value: %q", got)
	}

	// Exactly one of many concurrent callers wins.
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.SetNX(ctx, "race", []byte("x"), time.Minute); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("concurrent SetNX winners = %d, want 1", wins.Load())
	}
}

func testCompareAndSwap(t *testing.T, s storage.Store) {
	ctx := context.Background()

	ok, err := s.CompareAndSwap(ctx, "k", nil, []byte("v1"), 0)
	if err != nil || !ok {
		t.Fatalf("CAS create = %v, %v", ok, err)
	}
	ok, _ = s.CompareAndSwap(ctx, "k", nil, []byte("other"), 0)
	if ok {
		t.Fatal("CAS with nil old succeeded on existing key")
	}
	ok, _ = s.CompareAndSwap(ctx, "k", []byte("wrong"), []byte("v2"), 0)
	if ok {
		t.Fatal("CAS with stale old succeeded")
	}
	ok, err = s.CompareAndSwap(ctx, "k", []byte("v1"), []byte("v2"), 0)
	if err != nil || !ok {
		t.Fatalf("CAS update = %v, %v", ok, err)
	}
	if got, _ := s.Get(ctx, "k"); string(got) != "v2" {
		t.Fatalf("value after CAS = %q", got)
	}
	ok, _ = s.CompareAndSwap(ctx, "absent", []byte("v"), []byte("w"), 0)
	if ok {
		t.Fatal("CAS on absent key with non-nil old succeeded")
	}
	ok, err = s.CompareAndSwap(ctx, "k", []byte("v2"), nil, 0)
	if err != nil || !ok {
		t.Fatalf("CAS delete = %v, %v", ok, err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Fatalf("key survived CAS delete: %v", err)
	}
}

func testCompareAndSwapRace(t *testing.T, s storage.Store) {
	ctx := context.Background()
	if err := s.Set(ctx, "owner", []byte("none"), 0); err != nil {
		t.Fatal(err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.CompareAndSwap(ctx, "owner", []byte("none"), []byte(fmt.Sprintf("admin-%d", i)), 0)
			if err == nil && ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("CAS winners = %d, want 1", wins.Load())
	}
}

func testSets(t *testing.T, s storage.Store) {
	ctx := context.Background()

	n, err := s.SAdd(ctx, "pool", "a", "b", "c")
	if err != nil || n != 3 {
		t.Fatalf("SAdd = %d, %v", n, err)
	}
	if n, _ := s.SAdd(ctx, "pool", "a", "d"); n != 1 {
		t.Fatalf("SAdd duplicate counted: %d", n)
	}
	if c, _ := s.SCard(ctx, "pool"); c != 4 {
		t.Fatalf("SCard = %d, want 4", c)
	}
	if ok, _ := s.SIsMember(ctx, "pool", "b"); !ok {
		t.Fatal("SIsMember(b) = false")
	}
	if n, _ := s.SRem(ctx, "pool", "b", "zz"); n != 1 {
		t.Fatalf("SRem = %d, want 1", n)
	}
	if ok, _ := s.SIsMember(ctx, "pool", "b"); ok {
		t.Fatal("b still member after SRem")
	}

	members, err := s.SMembers(ctx, "pool")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(members)
	if fmt.Sprint(members) != "[a c d]" {
		t.Fatalf("SMembers = %v", members)
	}

	if c, _ := s.SCard(ctx, "empty"); c != 0 {
		t.Fatalf("SCard(empty) = %d", c)
	}
	if m, _ := s.SMembers(ctx, "empty"); len(m) != 0 {
		t.Fatalf("SMembers(empty) = %v", m)
	}
}

func testSPopDrains(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const total = 50
	for i := 0; i < total; i++ {
		if _, err := s.SAdd(ctx, "pool", fmt.Sprintf("k%02d", i)); err != nil {
			t.Fatal(err)
		}
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				m, err := s.SPop(ctx, "pool")
				if errors.Is(err, storage.ErrKeyNotFound) {
					return
				}
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				seen[m]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("popped %d distinct members, want %d", len(seen), total)
	}
	for m, n := range seen {
		if n != 1 {
			t.Fatalf("member %s popped %d times", m, n)
		}
	}
	if _, err := s.SPop(ctx, "pool"); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Fatalf("SPop on empty set error = %v", err)
	}
}

func testLists(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if got, err := s.LRange(ctx, "log", 0, -1); err != nil || len(got) != 0 {
		t.Fatalf("LRange(empty) = %v, %v", got, err)
	}

	for _, v := range []string{"1", "2", "3"} {
		if _, err := s.LPush(ctx, "log", v); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.LPush(ctx, "log", "4", "5")
	if err != nil || n != 5 {
		t.Fatalf("LPush = %d, %v", n, err)
	}

	got, _ := s.LRange(ctx, "log", 0, -1)
	if fmt.Sprint(got) != "[5 4 3 2 1]" {
		t.Fatalf("LRange = %v", got)
	}
	got, _ = s.LRange(ctx, "log", 1, 2)
	if fmt.Sprint(got) != "[4 3]" {
		t.Fatalf("LRange(1,2) = %v", got)
	}

	if err := s.LTrim(ctx, "log", 0, 2); err != nil {
		t.Fatal(err)
	}
	got, _ = s.LRange(ctx, "log", 0, -1)
	if fmt.Sprint(got) != "[5 4 3]" {
		t.Fatalf("after LTrim = %v", got)
	}
}

func testScanPrefix(t *testing.T, s storage.Store) {
	ctx := context.Background()
	for _, k := range []string{"key:a", "key:b", "ticket:c"} {
		if err := s.Set(ctx, k, []byte("x"), 0); err != nil {
			t.Fatal(err)
		}
	}

	var keys []string
	if err := s.ScanPrefix(ctx, "key:", func(k string) bool {
		keys = append(keys, k)
		return true
	}); err != nil {
		t.Fatal(err)
	}
	sort.Strings(keys)
	if fmt.Sprint(keys) != "[key:a key:b]" {
		t.Fatalf("ScanPrefix = %v", keys)
	}

	count := 0
	_ = s.ScanPrefix(ctx, "", func(string) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("early stop visited %d keys", count)
	}
}

func testPing(t *testing.T, s storage.Store) {
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
