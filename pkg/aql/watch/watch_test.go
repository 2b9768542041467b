package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "query.aql")
	other := filepath.Join(dir, "other.aql")
	for _, p := range []string{watched, other} {
		if err := os.WriteFile(p, []byte("RETURN 1"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	w, err := New([]string{watched}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.SetDebounce(100 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan string, 8)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(p string) { changes <- p }) }()

	// Let the watch settle, then write the unwatched file and the watched
	// file several times in quick succession.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(other, []byte("RETURN 2"), 0644); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(watched, []byte("RETURN 3"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case got := <-changes:
		want, _ := filepath.Abs(watched)
		if got != want {
			t.Errorf("change reported for %s, want %s", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	select {
	case got := <-changes:
		t.Errorf("burst of writes reported more than once (extra: %s)", got)
	case <-time.After(400 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

// numPending returns the number of changes waiting out their quiet period.
func (w *Watcher) numPending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func TestWatcherReportsEachQuietPeriod(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "query.aql")
	if err := os.WriteFile(watched, []byte("RETURN 1"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := New([]string{watched}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.SetDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan string, 8)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(p string) { changes <- p }) }()
	time.Sleep(50 * time.Millisecond)

	for round := 0; round < 2; round++ {
		if err := os.WriteFile(watched, []byte("RETURN 2"), 0644); err != nil {
			t.Fatal(err)
		}
		select {
		case <-changes:
		case <-time.After(5 * time.Second):
			t.Fatalf("round %d: no change reported", round)
		}
		select {
		case got := <-changes:
			t.Errorf("round %d: change reported twice (%s)", round, got)
		case <-time.After(300 * time.Millisecond):
		}
	}

	cancel()
	<-done
	if n := w.numPending(); n != 0 {
		t.Errorf("%d timers left pending after Run returned", n)
	}
}

func TestRunReturnsWhenClosed(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "query.aql")
	if err := os.WriteFile(watched, []byte("RETURN 1"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := New([]string{watched}, nil)
	if err != nil {
		t.Fatal(err)
	}
	w.SetDebounce(time.Hour)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background(), func(string) {}) }()

	// leave a change waiting on its timer, then close without cancelling
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(watched, []byte("RETURN 2"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	w.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after Close")
	}
	if n := w.numPending(); n != 0 {
		t.Errorf("%d timers left pending after Run returned", n)
	}
}

func TestNewMissingDirectory(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "missing", "q.aql")}, nil)
	if err == nil {
		t.Error("expected error watching a missing directory")
	}
}
