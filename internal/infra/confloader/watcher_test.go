package confloader

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNewWatcher(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if w.debounce != DefaultDebounce {
		t.Errorf("debounce = %v, want %v", w.debounce, DefaultDebounce)
	}
	if w.logger == nil {
		t.Error("NewWatcher() logger is nil")
	}
}

func TestWatcher_Watch_NonexistentDir(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if err := w.Watch("/nonexistent/path/keydesk.yaml"); err == nil {
		t.Error("Watch() expected error for nonexistent directory")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestWatcher_Debounce(t *testing.T) {
	w, err := NewWatcher(WithDebounce(50 * time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	var mu sync.Mutex
	count := 0
	w.OnChange(func(string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		w.schedule("/etc/keydesk.yaml")
	}
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("callbacks = %d, want 1", count)
	}
}

func TestWatcher_DetectsWatchedFileOnly(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "keydesk.yaml")
	otherFile := filepath.Join(dir, "other.yaml")
	if err := os.WriteFile(configFile, []byte("log:\n  level: info\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(WithDebounce(20 * time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	changed := make(chan string, 8)
	w.OnChange(func(path string) { changed <- path })
	if err := w.Watch(configFile); err != nil {
		t.Fatal(err)
	}
	w.StartAsync()
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(otherFile, []byte("x: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(configFile, []byte("log:\n  level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case path := <-changed:
		if path != configFile {
			t.Errorf("changed path = %s, want %s", path, configFile)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}
}
