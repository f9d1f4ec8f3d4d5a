package status

import "time"

// Int returns key as an int. JSON numbers decode as float64.
func (s Snapshot) Int(key string) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Float returns key as a float64.
func (s Snapshot) Float(key string) float64 {
	switch v := s[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// String returns key as a string, or "" when absent.
func (s Snapshot) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// Time parses an RFC 3339 timestamp field.
func (s Snapshot) Time(key string) (time.Time, bool) {
	raw := s.String(key)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// List returns key as a slice of JSON objects.
func (s Snapshot) List(key string) []map[string]any {
	switch v := s[key].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
