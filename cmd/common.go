// Package cmd implements the snapvault subcommands. Each Run function
// receives its parsed flags from the binary's main and returns an error
// for main to log and turn into the exit code.
package cmd

import (
	"fmt"

	"github.com/snapvault/snapvault/pkg/config"
)

// CommonFlags are the overrides every subcommand accepts.
type CommonFlags struct {
	// ConfigDir is where snapvault.config.json is looked up.
	ConfigDir string
	Root      string
	Dest      string
	LogLevel  string
}

// loadRunConfig loads the configuration and applies the common overrides.
// Validation is left to the caller, some commands override more fields
// first.
func loadRunConfig(flags CommonFlags) (config.Config, error) {
	dir := flags.ConfigDir
	if dir == "" {
		dir = "."
	}
	runConfig, err := config.Load(dir)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	if flags.Root != "" {
		runConfig.RootPath = flags.Root
	}
	if flags.Dest != "" {
		runConfig.DestDir = flags.Dest
	}
	if flags.LogLevel != "" {
		runConfig.LogLevel = flags.LogLevel
	}
	return runConfig, nil
}
