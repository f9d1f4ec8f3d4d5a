package github

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Config holds GitHub adapter configuration
type Config struct {
	Repo           string        `yaml:"repo"`            // owner/name of the tracking repository
	Token          string        `yaml:"token"`           // usually injected from GITHUB_TOKEN
	APIURL         string        `yaml:"api_url"`         // defaults to https://api.github.com
	RequestTimeout time.Duration `yaml:"request_timeout"` // per request
	RateLimit      float64       `yaml:"rate_limit"`      // requests per second
	RateBurst      int           `yaml:"rate_burst"`
	MaxRetries     int           `yaml:"max_retries"` // 0 leaves retries to the next poll tick
}

// DefaultConfig returns default GitHub configuration
func DefaultConfig() *Config {
	return &Config{
		APIURL:         githubAPIURL,
		RequestTimeout: 30 * time.Second,
		RateLimit:      5,
		RateBurst:      10,
		MaxRetries:     0,
	}
}

// Issue states
const (
	StateOpen   = "open"
	StateClosed = "closed"
	StateAll    = "all"
)

// Label names used by the agent
const (
	LabelPhaseBuild    = "phase:build"
	LabelAgentBuilding = "agent-building"
	LabelAgentComplete = "agent-complete"
	FeatureLabelPrefix = "feature:"
)

// Label colors for labels the agent creates.
const (
	FeatureLabelColor = "1d76db"
)

// GitHub limits, counted in characters.
const (
	MaxLabelName        = 50
	MaxLabelDescription = 100
)

// FeatureLabel returns the label that binds an issue to a ledger feature.
// The feature id is slugged so the label is a single term in a labels=
// filter, and ids too long for GitHub keep a hash suffix so distinct
// features never share a label.
func FeatureLabel(feature string) string {
	slug := []rune(slugify(feature))
	room := MaxLabelName - len(FeatureLabelPrefix)
	if len(slug) > 0 && len(slug) <= room {
		return FeatureLabelPrefix + string(slug)
	}

	sum := sha256.Sum256([]byte(feature))
	suffix := hex.EncodeToString(sum[:4])
	keep := room - len(suffix) - 1
	if len(slug) > keep {
		slug = []rune(strings.TrimRight(string(slug[:keep]), "-"))
	}
	if len(slug) == 0 {
		return FeatureLabelPrefix + suffix
	}
	return FeatureLabelPrefix + string(slug) + "-" + suffix
}

// FeatureLabelDescription describes a feature label within GitHub's limit.
func FeatureLabelDescription(feature string) string {
	desc := []rune("Tests for feature " + feature)
	if len(desc) > MaxLabelDescription {
		desc = desc[:MaxLabelDescription]
	}
	return string(desc)
}

// slugify lowercases s and collapses every run of characters other than
// letters, digits, '.' and '_' into a single '-'.
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_':
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	return b.String()
}

// ParseRepo splits "owner/name" or a github.com URL into owner and name.
func ParseRepo(s string) (owner, repo string, err error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".git")
	for _, prefix := range []string{"https://github.com/", "http://github.com/", "git@github.com:"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.Trim(s, "/")

	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q: want owner/name", s)
	}
	return parts[0], parts[1], nil
}
