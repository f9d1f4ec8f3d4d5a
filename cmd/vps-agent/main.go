package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aizenshtat/autonomous-coding-agent/internal/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
	cfgFile   string
)

// exitError carries a process exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	rootCmd := newRootCmd()

	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if exit.err != nil {
				fmt.Fprintln(os.Stderr, exit.err)
			}
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vps-agent",
		Short: "Supervise an autonomous coding session",
		Long: `vps-agent launches the build agent for one GitHub issue, publishes its health
to a status file and mirrors the agent's test ledger onto GitHub issues.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.vps-agent/config.yaml)")

	rootCmd.AddCommand(
		newRunCmd(),
		newSyncCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newServeCmd(),
		newHistoryCmd(),
		newClearCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig reads the config file, applies environment overrides and
// validates the result.
func loadConfig() (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
