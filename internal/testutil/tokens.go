// Package testutil provides testing utilities shared across packages.
package testutil

// Safe test credentials that won't trigger GitHub's push protection.
// Keep them obviously fake so secret scanners ignore them.
const (
	// FakeGitHubToken is a safe test token for GitHub API authentication.
	FakeGitHubToken = "test-github-token"

	// FakeOAuthToken is a safe test value for CLAUDE_CODE_OAUTH_TOKEN.
	FakeOAuthToken = "test-oauth-token"

	// FakeAnthropicKey is a safe test value for ANTHROPIC_API_KEY.
	FakeAnthropicKey = "test-anthropic-api-key"

	// FakeBearerToken is a safe test token for the gateway API.
	FakeBearerToken = "test-bearer-token"
)
