package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/snapvault/snapvault/pkg/buildinfo"
	"github.com/snapvault/snapvault/pkg/metrics"
	"github.com/snapvault/snapvault/pkg/pattern"
	"github.com/snapvault/snapvault/pkg/plog"
	"github.com/snapvault/snapvault/pkg/restore"
	"github.com/snapvault/snapvault/pkg/service"
)

// RestoreFlags holds the command-line overrides for the restore command.
type RestoreFlags struct {
	CommonFlags
	Archive      string
	PatternsFile string
	Policy       string
	CleanBefore  bool
	DryRun       bool
}

// RunRestore handles the logic for the restore command. With -dry-run it
// only reports what would happen.
func RunRestore(ctx context.Context, flags RestoreFlags) error {
	if flags.Archive == "" {
		return fmt.Errorf("the -archive flag is required to run a restore")
	}
	if _, err := os.Stat(flags.Archive); os.IsNotExist(err) {
		return fmt.Errorf("archive '%s' does not exist", flags.Archive)
	}

	runConfig, err := loadRunConfig(flags.CommonFlags)
	if err != nil {
		return err
	}
	if flags.Policy != "" {
		runConfig.Restore.Policy = flags.Policy
	}
	if err := runConfig.Validate(); err != nil {
		return err
	}

	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	policy, err := restore.ParseConflictPolicy(runConfig.Restore.Policy)
	if err != nil {
		return err
	}

	opts := restore.Options{
		Policy:      policy,
		CleanBefore: flags.CleanBefore,
	}
	if flags.PatternsFile != "" {
		text, err := os.ReadFile(flags.PatternsFile)
		if err != nil {
			return fmt.Errorf("failed to read pattern file: %w", err)
		}
		opts.IncludePatterns, opts.ExcludePatterns = pattern.ParseText(string(text))
		if _, err := pattern.CompileSplit(opts.IncludePatterns, opts.ExcludePatterns); err != nil {
			return err
		}
	}

	m := &metrics.OpMetrics{}
	svc := service.New(runConfig, m)

	startTime := time.Now()
	var result *restore.Result
	if flags.DryRun {
		result, err = svc.PreviewRestore(ctx, flags.Archive, opts)
	} else {
		result, err = svc.RestoreBackup(ctx, flags.Archive, opts)
	}
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err
	}

	printRestoreResult(result, flags.DryRun)
	m.Log()
	plog.Info(buildinfo.Name+" restore finished.", "dry_run", flags.DryRun, "duration", duration)
	return nil
}

func printRestoreResult(result *restore.Result, dryRun bool) {
	verb := "Restored"
	if dryRun {
		verb = "Would restore"
	}
	for _, f := range result.Restored {
		fmt.Printf("%s %s -> %s\n", verb, f.ArchivePath, f.TargetPath)
	}
	for _, d := range result.Deleted {
		fmt.Printf("Deleted %s (%s)\n", d.Path, d.Reason)
	}
	for _, s := range result.Skipped {
		fmt.Printf("Skipped %s (%s)\n", s.Path, s.Reason)
	}
	for _, e := range result.Errors {
		fmt.Printf("Failed %s: %s\n", e.Path, e.Error)
	}
	fmt.Printf("%d restored, %d deleted, %d skipped, %d failed\n",
		len(result.Restored), len(result.Deleted), len(result.Skipped), len(result.Errors))
}
