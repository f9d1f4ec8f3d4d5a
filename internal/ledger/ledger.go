// Package ledger reads and writes the test-result ledger produced by the
// build agent: a JSON array of test records grouped by feature.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aizenshtat/autonomous-coding-agent/internal/fileutil"
)

// Test categories.
const (
	CategoryFunctional = "functional"
	CategoryStyle      = "style"
)

// Record is one verification step for a feature. Fields the agent writes
// that this package does not know about survive a read and write cycle.
type Record struct {
	Feature     string
	IssueNumber *int
	Category    string
	Description string
	Steps       []string
	Passes      bool

	extra map[string]json.RawMessage
}

var knownFields = []string{"feature", "issueNumber", "category", "description", "steps", "passes"}

// Issue returns the stamped issue number, or 0 when the record is unassigned.
func (r Record) Issue() int {
	if r.IssueNumber == nil {
		return 0
	}
	return *r.IssueNumber
}

// SetIssue stamps the issue number and reports whether it changed.
func (r *Record) SetIssue(n int) bool {
	if r.IssueNumber != nil && *r.IssueNumber == n {
		return false
	}
	r.IssueNumber = &n
	return true
}

// UnmarshalJSON keeps unknown keys alongside the typed fields.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	decode := func(key string, dst any) error {
		v, ok := raw[key]
		if !ok || string(v) == "null" {
			return nil
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		return nil
	}

	*r = Record{}
	if err := decode("feature", &r.Feature); err != nil {
		return err
	}
	if v, ok := raw["issueNumber"]; ok && string(v) != "null" {
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return fmt.Errorf("field %q: %w", "issueNumber", err)
		}
		r.IssueNumber = &n
	}
	if err := decode("category", &r.Category); err != nil {
		return err
	}
	if err := decode("description", &r.Description); err != nil {
		return err
	}
	if err := decode("steps", &r.Steps); err != nil {
		return err
	}
	if err := decode("passes", &r.Passes); err != nil {
		return err
	}

	for _, k := range knownFields {
		delete(raw, k)
	}
	if len(raw) > 0 {
		r.extra = raw
	}
	return nil
}

// MarshalJSON writes the typed fields followed by any preserved unknown keys.
// encoding/json sorts map keys, so output is stable for identical input.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(knownFields)+len(r.extra))
	for k, v := range r.extra {
		out[k] = v
	}
	out["feature"] = r.Feature
	if r.IssueNumber != nil {
		out["issueNumber"] = *r.IssueNumber
	}
	out["category"] = r.Category
	out["description"] = r.Description
	steps := r.Steps
	if steps == nil {
		steps = []string{}
	}
	out["steps"] = steps
	out["passes"] = r.Passes
	return json.Marshal(out)
}

// ParseError reports a ledger file that exists but cannot be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse ledger %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err is a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Exists reports whether the ledger file is present.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Read loads the ledger at path. A missing file returns an empty slice and a
// nil error; malformed content returns a *ParseError.
func Read(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Write persists records in order as an indented JSON array.
func Write(path string, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	if err := fileutil.WriteJSON(path, records); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return nil
}

// Features returns the unique feature ids in first-seen order.
func Features(records []Record) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if r.Feature == "" || seen[r.Feature] {
			continue
		}
		seen[r.Feature] = true
		out = append(out, r.Feature)
	}
	return out
}

// Tally is the pass count for one issue.
type Tally struct {
	Issue  int
	Passed int
	Total  int
}

// Complete reports whether every test passed. An issue with no tests is
// never complete.
func (t Tally) Complete() bool {
	return t.Total > 0 && t.Passed == t.Total
}

// Percent returns the floored pass percentage.
func (t Tally) Percent() int {
	if t.Total == 0 {
		return 0
	}
	return t.Passed * 100 / t.Total
}

// TallyByIssue groups records by issue number. Unassigned records are skipped.
func TallyByIssue(records []Record) map[int]Tally {
	out := make(map[int]Tally)
	for _, r := range records {
		issue := r.Issue()
		if issue == 0 {
			continue
		}
		t := out[issue]
		t.Issue = issue
		t.Total++
		if r.Passes {
			t.Passed++
		}
		out[issue] = t
	}
	return out
}
