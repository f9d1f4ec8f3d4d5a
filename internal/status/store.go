// Package status persists the supervisor's health snapshot as a single JSON
// file that several writers may update concurrently.
package status

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/aizenshtat/autonomous-coding-agent/internal/fileutil"
	"github.com/aizenshtat/autonomous-coding-agent/internal/logging"
)

// Snapshot is the full content of the status file.
type Snapshot map[string]any

// Store guards a status file with an advisory flock on a sidecar lock file.
// Writers hold the lock across the whole read, merge and write cycle so two
// callers with disjoint fields never lose each other's updates.
type Store struct {
	path    string
	enabled bool

	mu  sync.Mutex
	now func() time.Time
	log *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source used for last_updated.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a store for path. A disabled store never touches disk.
func NewStore(path string, enabled bool, opts ...Option) *Store {
	s := &Store{
		path:    path,
		enabled: enabled,
		now:     time.Now,
		log:     logging.WithComponent("status"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the status file location.
func (s *Store) Path() string { return s.path }

// Enabled reports whether writes reach disk.
func (s *Store) Enabled() bool { return s.enabled }

// Now returns the store clock in UTC.
func (s *Store) Now() time.Time { return s.now().UTC() }

// Read returns the current snapshot. A missing or corrupt file yields an
// empty snapshot.
func (s *Store) Read() Snapshot {
	snap, err := readFile(s.path)
	if err != nil {
		s.log.Warn("Ignoring unreadable status file", slog.String("path", s.path), slog.Any("error", err))
		return Snapshot{}
	}
	return snap
}

// Update merges fields into the snapshot and stamps last_updated.
func (s *Store) Update(fields Snapshot) bool {
	return s.Mutate(func(snap Snapshot) {
		for k, v := range fields {
			snap[k] = v
		}
	})
}

// Replace discards the existing snapshot and writes fields as the new one.
func (s *Store) Replace(fields Snapshot) bool {
	return s.write(func(Snapshot) Snapshot {
		next := make(Snapshot, len(fields)+1)
		for k, v := range fields {
			next[k] = v
		}
		return next
	})
}

// Mutate applies fn to the current snapshot inside the locked section and
// persists the result.
func (s *Store) Mutate(fn func(Snapshot)) bool {
	return s.write(func(snap Snapshot) Snapshot {
		fn(snap)
		return snap
	})
}

func (s *Store) write(fn func(Snapshot) Snapshot) bool {
	if !s.enabled {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock()
	if err != nil {
		s.log.Warn("Failed to lock status file", slog.String("path", s.path), slog.Any("error", err))
		return false
	}
	defer unlock()

	current, err := readFile(s.path)
	if err != nil {
		s.log.Warn("Status file corrupt, starting from empty snapshot", slog.Any("error", err))
		current = Snapshot{}
	}

	next := fn(current)
	next["last_updated"] = Timestamp(s.now())

	if err := fileutil.WriteJSON(s.path, next); err != nil {
		s.log.Warn("Failed to write status file", slog.String("path", s.path), slog.Any("error", err))
		return false
	}
	return true
}

func (s *Store) lock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create status directory: %w", err)
	}

	f, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}

func readFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Snapshot{}, nil
	}
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse status file: %w", err)
	}
	if snap == nil {
		snap = Snapshot{}
	}
	return snap, nil
}

// Timestamp formats t the way every snapshot timestamp is stored.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
