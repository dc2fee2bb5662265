package watch

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBurstYieldsSingleCallback(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "scan.pdf")

	var calls int32
	d := NewDebouncer(30*time.Millisecond, []string{"*.pdf"}, func(string) {
		atomic.AddInt32(&calls, 1)
	})

	for i := 0; i < 10; i++ {
		d.Notify(path)
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("callbacks = %d, want 1", got)
	}
}

func TestDistinctPathsFireIndependently(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a.pdf")
	b := touch(t, dir, "b.pdf")

	var mu sync.Mutex
	seen := map[string]int{}
	d := NewDebouncer(20*time.Millisecond, []string{"*.pdf"}, func(p string) {
		mu.Lock()
		seen[p]++
		mu.Unlock()
	})

	d.Notify(a)
	d.Notify(b)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if seen[a] != 1 || seen[b] != 1 {
		t.Errorf("seen = %v, want one callback per path", seen)
	}
}

func TestDeletedFileDoesNotFire(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "gone.pdf")

	var calls int32
	d := NewDebouncer(30*time.Millisecond, []string{"*.pdf"}, func(string) {
		atomic.AddInt32(&calls, 1)
	})

	d.Notify(path)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("callbacks = %d, want 0 for a deleted file", got)
	}
}

func TestPatternMatching(t *testing.T) {
	d := NewDebouncer(time.Millisecond, []string{"*.pdf", "inbox.csv"}, func(string) {})

	cases := []struct {
		path string
		want bool
	}{
		{"/in/report.pdf", true},
		{"/in/REPORT.PDF", true}, // extension match is case-insensitive
		{"/in/inbox.csv", true},  // exact filename
		{"/in/other.csv", false},
		{"/in/report.txt", false},
		{"/in/pdf", false},
	}
	for _, tc := range cases {
		if got := d.Matches(tc.path); got != tc.want {
			t.Errorf("Matches(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestIgnoredPathsScheduleNothing(t *testing.T) {
	d := NewDebouncer(time.Minute, []string{"*.pdf"}, func(string) {
		t.Error("callback fired for an ignored path")
	})
	d.Notify("/in/notes.txt")
	if got := d.PendingCount(); got != 0 {
		t.Errorf("pending timers = %d, want 0", got)
	}
}

func TestCancelAll(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "late.pdf")

	var calls int32
	d := NewDebouncer(30*time.Millisecond, []string{"*.pdf"}, func(string) {
		atomic.AddInt32(&calls, 1)
	})

	d.Notify(path)
	d.CancelAll()
	d.CancelAll() // idempotent

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("callbacks = %d, want 0 after CancelAll", got)
	}

	// Events after CancelAll are rejected.
	d.Notify(path)
	if got := d.PendingCount(); got != 0 {
		t.Errorf("pending timers = %d, want 0 after CancelAll", got)
	}
}
