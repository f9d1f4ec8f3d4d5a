package gitops

import (
	"os"
	"path/filepath"
	"testing"
)

func appendLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for _, l := range lines {
		if _, err := f.WriteString(l + "\n"); err != nil {
			t.Fatal(err)
		}
	}
}

func TestQueueDrain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commits_queue.txt")
	q := NewQueue(path)

	fresh, err := q.Drain()
	if err != nil || len(fresh) != 0 {
		t.Fatalf("Drain() on missing file = %v, %v", fresh, err)
	}

	appendLines(t, path, "aaa", "bbb")
	if fresh, _ = q.Drain(); len(fresh) != 2 {
		t.Errorf("Drain() = %v, want 2", fresh)
	}
	if fresh, _ = q.Drain(); len(fresh) != 0 {
		t.Errorf("Drain() without new lines = %v", fresh)
	}

	appendLines(t, path, "ccc")
	if fresh, _ = q.Drain(); len(fresh) != 1 || fresh[0] != "ccc" {
		t.Errorf("Drain() = %v, want [ccc]", fresh)
	}
}

func TestQueuePrime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commits_queue.txt")
	appendLines(t, path, "old1", "old2")
	q := NewQueue(path)

	if err := q.Prime(); err != nil {
		t.Fatalf("Prime() error = %v", err)
	}
	appendLines(t, path, "new")
	fresh, _ := q.Drain()
	if len(fresh) != 1 || fresh[0] != "new" {
		t.Errorf("Drain() after Prime = %v", fresh)
	}
}

func TestQueueTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commits_queue.txt")
	appendLines(t, path, "a", "b", "c")
	q := NewQueue(path)
	q.Drain()

	if err := os.WriteFile(path, []byte("d\n"), 0644); err != nil {
		t.Fatal(err)
	}
	fresh, _ := q.Drain()
	if len(fresh) != 1 || fresh[0] != "d" {
		t.Errorf("Drain() after truncate = %v", fresh)
	}
}
