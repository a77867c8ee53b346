package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWatcher_ReportsChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loan.xes")
	other := filepath.Join(dir, "other.xes")
	if err := os.WriteFile(path, []byte("<log/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(20 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	var mu sync.Mutex
	var got []string
	changed := make(chan struct{}, 4)
	w.OnChange = func(_ context.Context, name string) {
		mu.Lock()
		got = append(got, name)
		mu.Unlock()
		changed <- struct{}{}
	}
	if err := w.Watch("loan", path); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Unwatched files in the same directory are ignored.
	if err := os.WriteFile(other, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Several quick writes collapse into one change.
	for _, body := range []string{"<log>", "<log><trace/>", "<log><trace/></log>"} {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
	time.Sleep(100 * time.Millisecond)

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "loan" {
		t.Errorf("changes = %v, want [loan]", got)
	}
}

func TestWatcher_WatchErrors(t *testing.T) {
	w, err := NewWatcher(0)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if w.debounce != DefaultDebounce {
		t.Errorf("debounce = %v, want %v", w.debounce, DefaultDebounce)
	}
	if err := w.Watch("missing", filepath.Join(t.TempDir(), "missing.xes")); err == nil {
		t.Error("Watch() on a missing file should fail")
	}
	if err := w.Watch("dir", t.TempDir()); err == nil {
		t.Error("Watch() on a directory should fail")
	}
}
