package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// AuthType selects how the agent authenticates.
type AuthType string

const (
	AuthOAuth  AuthType = "oauth"
	AuthAPIKey AuthType = "api_key"
)

// Credential environment variables.
const (
	EnvOAuthToken  = "CLAUDE_CODE_OAUTH_TOKEN"
	EnvAPIKey      = "ANTHROPIC_API_KEY"
	EnvGitHubToken = "GITHUB_TOKEN"
)

var (
	ErrNoAgentCredential = errors.New("no authentication found: set CLAUDE_CODE_OAUTH_TOKEN or ANTHROPIC_API_KEY")
	ErrNoGitHubToken     = errors.New("GitHub token not found")
)

// DefaultSecretDirs are searched after the environment.
var DefaultSecretDirs = []string{"/app/secrets", "/opt/agent/secrets"}

// Credentials are the resolved secrets of one run.
type Credentials struct {
	AgentToken  string
	AuthType    AuthType
	GitHubToken string
}

// EnvPair returns the variable to set for the agent and the one that must be
// removed, since an API key in the environment overrides an OAuth token.
func (c *Credentials) EnvPair() (set, unset string) {
	if c.AuthType == AuthOAuth {
		return EnvOAuthToken, EnvAPIKey
	}
	return EnvAPIKey, EnvOAuthToken
}

// Resolver looks secrets up in the environment, then in a file named by
// <VAR>_FILE, then in the secret directories.
type Resolver struct {
	Getenv     func(string) string
	SecretDirs []string
}

// NewResolver uses the process environment and the default secret dirs.
func NewResolver() *Resolver {
	return &Resolver{Getenv: os.Getenv, SecretDirs: DefaultSecretDirs}
}

// Lookup returns the secret for envVar, using name as the file name in the
// secret directories.
func (r *Resolver) Lookup(name, envVar string) string {
	if v := r.Getenv(envVar); v != "" {
		return v
	}
	if path := r.Getenv(envVar + "_FILE"); path != "" {
		if v, ok := readSecret(path); ok {
			return v
		}
	}
	for _, dir := range r.SecretDirs {
		if v, ok := readSecret(filepath.Join(dir, name)); ok {
			return v
		}
	}
	return ""
}

// Resolve finds the agent credential, preferring the OAuth token, and the
// GitHub token.
func (r *Resolver) Resolve() (*Credentials, error) {
	creds := &Credentials{}
	if v := r.Lookup("claude_oauth_token", EnvOAuthToken); v != "" {
		creds.AgentToken, creds.AuthType = v, AuthOAuth
	} else if v := r.Lookup("anthropic_api_key", EnvAPIKey); v != "" {
		creds.AgentToken, creds.AuthType = v, AuthAPIKey
	} else {
		return nil, ErrNoAgentCredential
	}

	creds.GitHubToken = r.Lookup("github_token", EnvGitHubToken)
	if creds.GitHubToken == "" {
		return nil, ErrNoGitHubToken
	}
	return creds, nil
}

func readSecret(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(string(data))
	return v, v != ""
}
