package gitops

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Queue tracks the commit queue file written by the post-commit hook. Each
// successful push appends one SHA per line.
type Queue struct {
	path string

	mu      sync.Mutex
	counted int
}

// NewQueue creates a Queue. Lines already in the file count as seen once
// Prime is called.
func NewQueue(path string) *Queue {
	return &Queue{path: path}
}

// Prime marks every line currently in the file as seen.
func (q *Queue) Prime() error {
	lines, err := q.lines()
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.counted = len(lines)
	q.mu.Unlock()
	return nil
}

// Drain returns the SHAs appended since the previous call. A missing file has
// no entries; a truncated file restarts the count.
func (q *Queue) Drain() ([]string, error) {
	lines, err := q.lines()
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(lines) < q.counted {
		q.counted = 0
	}
	fresh := lines[q.counted:]
	q.counted = len(lines)
	return fresh, nil
}

func (q *Queue) lines() ([]string, error) {
	f, err := os.Open(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open commit queue: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read commit queue: %w", err)
	}
	return out, nil
}
