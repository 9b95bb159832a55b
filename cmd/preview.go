package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/snapvault/snapvault/pkg/pattern"
	"github.com/snapvault/snapvault/pkg/plog"
	"github.com/snapvault/snapvault/pkg/service"
)

// PreviewFlags holds the command-line overrides for the preview command.
type PreviewFlags struct {
	CommonFlags
	PatternsFile  string
	IncludeHidden bool
	MaxDepth      int
	Search        string
}

// RunPreview shows what a backup with the given patterns would contain,
// grouped by directory.
func RunPreview(ctx context.Context, flags PreviewFlags) error {
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
	groups, stats, err := svc.PreviewGrouped(ctx, includes, excludes,
		flags.IncludeHidden || runConfig.Discovery.IncludeHidden, flags.MaxDepth, flags.Search)
	if err != nil {
		return err
	}

	for _, g := range groups {
		marker := ""
		if g.Truncated {
			marker = " [+]"
		}
		fmt.Printf("%s%s  %d files, %d bytes\n", g.Path, marker, g.FileCount, g.TotalSize)
		for _, f := range g.Files {
			fmt.Printf("  %s (%d bytes)\n", f.LogicalPath, f.Size)
		}
		if g.AdditionalFiles > 0 {
			fmt.Printf("  ... and %d more\n", g.AdditionalFiles)
		}
	}
	fmt.Printf("%d groups, %d files, %d bytes\n", stats.TotalGroups, stats.TotalFiles, stats.TotalSize)
	return nil
}

// patternsForRun parses the pattern file when one was given, otherwise it
// falls back to the resolved configuration defaults.
func patternsForRun(defaults []string, patternsFile string) (includes, excludes []string, err error) {
	if patternsFile != "" {
		text, err := os.ReadFile(patternsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read pattern file: %w", err)
		}
		includes, excludes = pattern.ParseText(string(text))
	} else {
		set, err := pattern.Compile(defaults)
		if err != nil {
			return nil, nil, err
		}
		includes, excludes = set.Split()
	}
	if _, err := pattern.CompileSplit(includes, excludes); err != nil {
		return nil, nil, err
	}
	return includes, excludes, nil
}
