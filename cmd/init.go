package cmd

import (
	"fmt"

	"github.com/snapvault/snapvault/pkg/config"
	"github.com/snapvault/snapvault/pkg/plog"
)

// RunInit generates a default snapvault.config.json in the config directory.
func RunInit(flags CommonFlags) error {
	if flags.Root == "" {
		return fmt.Errorf("the -root flag is required for the init operation")
	}

	dir := flags.ConfigDir
	if dir == "" {
		dir = "."
	}

	runConfig := config.NewDefault()
	runConfig.RootPath = flags.Root
	runConfig.DestDir = flags.Dest
	if flags.LogLevel != "" {
		runConfig.LogLevel = flags.LogLevel
	}
	if err := runConfig.Validate(); err != nil {
		return err
	}

	if err := config.Generate(dir, runConfig); err != nil {
		return err
	}
	plog.Info("Configuration initialized", "dir", dir, "root", runConfig.RootPath)
	return nil
}
