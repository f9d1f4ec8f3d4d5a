package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aizenshtat/autonomous-coding-agent/internal/adapters/github"
	"github.com/aizenshtat/autonomous-coding-agent/internal/logging"
)

// HashLength is the number of hex characters kept from the SHA-256 digest.
const HashLength = 12

var artifactExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// Artifact is a screenshot found on disk.
type Artifact struct {
	Path string // absolute or caller-relative path
	Name string // path relative to the scanned directory
	Hash string
}

// HashSet holds the content hashes already announced.
type HashSet map[string]struct{}

// NewHashSet creates a set containing hashes.
func NewHashSet(hashes ...string) HashSet {
	s := make(HashSet, len(hashes))
	for _, h := range hashes {
		s[h] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s HashSet) Has(h string) bool {
	_, ok := s[h]
	return ok
}

// Clone returns an independent copy.
func (s HashSet) Clone() HashSet {
	out := make(HashSet, len(s))
	for h := range s {
		out[h] = struct{}{}
	}
	return out
}

// Merge adds every hash of other.
func (s HashSet) Merge(other HashSet) {
	for h := range other {
		s[h] = struct{}{}
	}
}

// Sorted returns the hashes in lexical order.
func (s HashSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Scan walks dir recursively for image files. A missing directory yields no
// artifacts.
func Scan(dir string) ([]Artifact, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	// The agent may remove or rename files while the walk runs; those are
	// picked up on a later pass.
	var out []Artifact
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !artifactExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		hash, err := hashFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		name, err := filepath.Rel(dir, path)
		if err != nil {
			name = filepath.Base(path)
		}
		out = append(out, Artifact{Path: path, Name: filepath.ToSlash(name), Hash: hash})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan artifacts: %w", err)
	}
	return out, nil
}

// ShortHash returns the truncated SHA-256 of data.
func ShortHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:HashLength]
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil))[:HashLength], nil
}

// Deduplicator announces screenshots whose content has not been posted yet.
type Deduplicator struct {
	tracker Tracker
	log     *slog.Logger
}

// NewDeduplicator creates a deduplicator.
func NewDeduplicator(tracker Tracker) *Deduplicator {
	return &Deduplicator{tracker: tracker, log: logging.WithComponent("artifacts")}
}

// PublishNew posts a single comment for the artifacts in scan whose hash is
// not in seen. The returned set includes every new hash, named or not. On
// failure seen is returned unchanged.
func (d *Deduplicator) PublishNew(ctx context.Context, scan []Artifact, seen HashSet, issue int) (HashSet, Outcome) {
	var names, hashes []string
	batch := make(map[string]bool)
	for _, a := range scan {
		if seen.Has(a.Hash) || batch[a.Hash] {
			continue
		}
		batch[a.Hash] = true
		names = append(names, a.Name)
		hashes = append(hashes, a.Hash)
	}

	if len(hashes) == 0 {
		return seen, skipped(ActionArtifacts, issue, "no new artifacts")
	}
	if issue <= 0 {
		return seen, skipped(ActionArtifacts, issue, "no session issue")
	}

	if err := d.tracker.AddComment(ctx, issue, github.FormatArtifactComment(names, hashes)); err != nil {
		d.log.Warn("Failed to announce artifacts", slog.Int("issue", issue), slog.Any("error", err))
		return seen, failed(ActionArtifacts, issue, err)
	}

	next := seen.Clone()
	for _, h := range hashes {
		next[h] = struct{}{}
	}
	d.log.Info("Announced artifacts", slog.Int("issue", issue), slog.Int("count", len(hashes)))
	return next, success(ActionArtifacts, issue, fmt.Sprintf("%d new", len(hashes)))
}

// SeedFromHistory rebuilds the announced set from markers in the issue's
// existing comments.
func (d *Deduplicator) SeedFromHistory(ctx context.Context, issue int) (HashSet, error) {
	comments, err := d.tracker.ListComments(ctx, issue)
	if err != nil {
		return NewHashSet(), err
	}

	seen := NewHashSet()
	for _, c := range comments {
		for _, h := range github.ParseArtifactMarkers(c.Body) {
			seen[h] = struct{}{}
		}
	}
	d.log.Info("Seeded artifact hashes", slog.Int("issue", issue), slog.Int("count", len(seen)))
	return seen, nil
}
