package cmd

import (
	"context"
	"fmt"

	"github.com/snapvault/snapvault/pkg/plog"
	"github.com/snapvault/snapvault/pkg/preview"
	"github.com/snapvault/snapvault/pkg/service"
)

// PatternsFlags holds the command-line overrides for the patterns command.
type PatternsFlags struct {
	CommonFlags
	PatternsFile  string
	IncludeHidden bool
}

// RunPatterns tests which files a pattern set matches and prints them flat.
func RunPatterns(ctx context.Context, flags PatternsFlags) error {
	runConfig, err := loadRunConfig(flags.CommonFlags)
	if err != nil {
		return err
	}
	if err := runConfig.Validate(); err != nil {
		return err
	}
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	includes, excludes, err := patternsForRun(runConfig.ResolvedDefaultPatterns(), flags.PatternsFile)
	if err != nil {
		return err
	}

	svc := service.New(runConfig, nil)
	matched, truncated, err := svc.TestPatterns(ctx, includes, excludes,
		flags.IncludeHidden || runConfig.Discovery.IncludeHidden)
	if err != nil {
		return err
	}

	shown := len(matched)
	if shown > preview.DisplayFileLimit {
		shown = preview.DisplayFileLimit
	}
	for _, f := range matched[:shown] {
		fmt.Printf("%s (%d bytes)\n", f.LogicalPath, f.Size)
	}
	if len(matched) > shown {
		fmt.Printf("... and %d more\n", len(matched)-shown)
	}
	var totalSize int64
	for _, f := range matched {
		totalSize += f.Size
	}
	fmt.Printf("%d files matched, %d bytes\n", len(matched), totalSize)
	if truncated {
		fmt.Printf("warning: result truncated at %d files\n", runConfig.Discovery.MaxFiles)
	}
	return nil
}
