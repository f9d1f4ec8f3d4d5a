// Package config loads the supervisor configuration from YAML and applies the
// environment overrides set by the container launcher.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aizenshtat/autonomous-coding-agent/internal/adapters/github"
	"github.com/aizenshtat/autonomous-coding-agent/internal/gateway"
	"github.com/aizenshtat/autonomous-coding-agent/internal/logging"
)

// Config represents the main configuration
type Config struct {
	Version    string            `yaml:"version"`
	Workspace  *WorkspaceConfig  `yaml:"workspace"`
	Agent      *AgentConfig      `yaml:"agent"`
	Metrics    *MetricsConfig    `yaml:"metrics"`
	GitHub     *github.Config    `yaml:"github"`
	Supervisor *SupervisorConfig `yaml:"supervisor"`
	Artifacts  *ArtifactsConfig  `yaml:"artifacts"`
	Journal    *JournalConfig    `yaml:"journal"`
	Gateway    *gateway.Config   `yaml:"gateway"`
	Logging    *logging.Config   `yaml:"logging"`
}

// WorkspaceConfig locates the agent build directory.
type WorkspaceConfig struct {
	Dir    string `yaml:"dir"`
	Branch string `yaml:"branch"`
	// Ledger is relative to Dir unless absolute.
	Ledger string `yaml:"ledger"`
}

// AgentConfig describes the build agent subprocess.
type AgentConfig struct {
	Command string `yaml:"command"`
	Script  string `yaml:"script"`
	Model   string `yaml:"model"`
	Project string `yaml:"project"`
}

// MetricsConfig holds the local health file settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
}

// SupervisorConfig holds loop timing.
type SupervisorConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	// ReconcileSchedule is a cron spec or descriptor such as "@every 3m".
	ReconcileSchedule string        `yaml:"reconcile_schedule"`
	SessionDuration   time.Duration `yaml:"session_duration"`
	CommitsQueue      string        `yaml:"commits_queue"`
	StaleAfter        time.Duration `yaml:"stale_after"`
}

// ArtifactsConfig holds screenshot scanning settings.
type ArtifactsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Dir is relative to the workspace unless absolute.
	Dir string `yaml:"dir"`
}

// JournalConfig holds the activity journal settings.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns a configuration with the container defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Version: "1.0",
		Workspace: &WorkspaceConfig{
			Dir:    "/app/workspace/agent-runtime",
			Branch: "agent-runtime",
			Ledger: "generated-app/tests.json",
		},
		Agent: &AgentConfig{
			Command: "python",
			Script:  "/app/claude_code.py",
			Model:   "claude-opus-4-5-20251101",
			Project: "canopy",
		},
		Metrics: &MetricsConfig{
			Enabled: true,
			File:    "/app/metrics/health.json",
		},
		GitHub: github.DefaultConfig(),
		Supervisor: &SupervisorConfig{
			HeartbeatInterval: 60 * time.Second,
			PollInterval:      5 * time.Second,
			ReconcileSchedule: "@every 3m",
			SessionDuration:   7 * time.Hour,
			CommitsQueue:      "/tmp/commits_queue.txt",
			StaleAfter:        300 * time.Second,
		},
		Artifacts: &ArtifactsConfig{
			Enabled: true,
			Dir:     "generated-app/screenshots",
		},
		Journal: &JournalConfig{
			Enabled: true,
			Path:    filepath.Join(homeDir, ".vps-agent", "journal.db"),
		},
		Gateway: &gateway.Config{
			Host: "127.0.0.1",
			Port: 9090,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil // Return defaults if no config file
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Workspace != nil {
		config.Workspace.Dir = expandPath(config.Workspace.Dir)
	}
	if config.Journal != nil {
		config.Journal.Path = expandPath(config.Journal.Path)
	}
	if config.Metrics != nil {
		config.Metrics.File = expandPath(config.Metrics.File)
	}

	return config, nil
}

// Save saves configuration to a file
func Save(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default configuration path
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".vps-agent", "config.yaml")
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// ApplyEnv overlays the environment variables understood by the container
// entrypoint. Unset variables leave the loaded value alone.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	if v := getenv("METRICS_FILE"); v != "" {
		c.Metrics.File = v
	}
	if v := getenv("LOCAL_METRICS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LOCAL_METRICS_ENABLED %q: %w", v, err)
		}
		c.Metrics.Enabled = enabled
	}
	if v := getenv("SESSION_DURATION_HOURS"); v != "" {
		hours, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid SESSION_DURATION_HOURS %q: %w", v, err)
		}
		c.Supervisor.SessionDuration = time.Duration(hours * float64(time.Hour))
	}
	if v := getenv("DEFAULT_MODEL"); v != "" {
		c.Agent.Model = v
	}
	if v := getenv("PROJECT_NAME"); v != "" {
		c.Agent.Project = v
	}
	return nil
}

// LedgerPath returns the absolute test ledger path.
func (c *Config) LedgerPath() string {
	return c.inWorkspace(c.Workspace.Ledger)
}

// ArtifactsDir returns the absolute screenshot directory, or "" when disabled.
func (c *Config) ArtifactsDir() string {
	if c.Artifacts == nil || !c.Artifacts.Enabled {
		return ""
	}
	return c.inWorkspace(c.Artifacts.Dir)
}

func (c *Config) inWorkspace(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Workspace.Dir, p)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Workspace == nil || c.Workspace.Dir == "" {
		return fmt.Errorf("workspace directory is required")
	}
	if c.Agent == nil || c.Agent.Command == "" {
		return fmt.Errorf("agent command is required")
	}
	if c.Metrics == nil {
		return fmt.Errorf("metrics configuration is required")
	}
	if c.Metrics.Enabled && c.Metrics.File == "" {
		return fmt.Errorf("metrics file is required when metrics are enabled")
	}
	if c.Supervisor == nil {
		return fmt.Errorf("supervisor configuration is required")
	}
	if c.Supervisor.HeartbeatInterval <= 0 {
		return fmt.Errorf("invalid heartbeat interval: %s", c.Supervisor.HeartbeatInterval)
	}
	if c.Supervisor.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval: %s", c.Supervisor.PollInterval)
	}
	if c.Supervisor.ReconcileSchedule == "" {
		return fmt.Errorf("reconcile schedule is required")
	}
	if c.Supervisor.SessionDuration < 0 {
		return fmt.Errorf("invalid session duration: %s", c.Supervisor.SessionDuration)
	}
	if c.GitHub != nil {
		if c.GitHub.RequestTimeout <= 0 {
			return fmt.Errorf("invalid github request timeout: %s", c.GitHub.RequestTimeout)
		}
		if c.GitHub.MaxRetries < 0 {
			return fmt.Errorf("invalid github max retries: %d", c.GitHub.MaxRetries)
		}
	}
	if c.Journal != nil && c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal path is required when the journal is enabled")
	}
	if c.Gateway != nil && (c.Gateway.Port < 1 || c.Gateway.Port > 65535) {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}
	if c.Gateway != nil && c.Gateway.Auth != nil && c.Gateway.Auth.Type == gateway.AuthTypeAPIToken && c.Gateway.Auth.Token == "" {
		return fmt.Errorf("API token is required when auth type is api-token")
	}
	return nil
}
