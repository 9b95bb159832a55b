package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/snapvault/snapvault/pkg/buildinfo"
	"github.com/snapvault/snapvault/pkg/metadoc"
	"github.com/snapvault/snapvault/pkg/metrics"
	"github.com/snapvault/snapvault/pkg/pattern"
	"github.com/snapvault/snapvault/pkg/plog"
	"github.com/snapvault/snapvault/pkg/progress"
	"github.com/snapvault/snapvault/pkg/service"
)

// BackupFlags holds the command-line overrides for the backup command.
type BackupFlags struct {
	CommonFlags
	Name          string
	PatternsFile  string
	IncludeHidden bool
	Format        string
	Level         string
	ShowProgress  bool
}

// RunBackup handles the logic for the backup command.
func RunBackup(ctx context.Context, flags BackupFlags) error {
	runConfig, err := loadRunConfig(flags.CommonFlags)
	if err != nil {
		return err
	}
	if flags.Format != "" {
		runConfig.Archive.Format = flags.Format
	}
	if flags.Level != "" {
		runConfig.Archive.Level = flags.Level
	}
	if flags.IncludeHidden {
		runConfig.Discovery.IncludeHidden = true
	}
	if err := runConfig.Validate(); err != nil {
		return err
	}

	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))
	runConfig.LogSummary()

	m := &metrics.OpMetrics{}
	svc := service.New(runConfig, m)

	meta, err := backupMetadata(svc, flags)
	if err != nil {
		return err
	}

	startTime := time.Now()
	if flags.ShowProgress {
		err = runWithProgress(ctx, svc, meta)
	} else {
		var archivePath string
		archivePath, err = svc.CreateBackup(ctx, meta)
		if err == nil {
			plog.Info("Archive written", "path", archivePath)
		}
	}
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err
	}

	m.Log()
	plog.Info(buildinfo.Name+" backup finished successfully.", "duration", duration)
	return nil
}

// backupMetadata builds the control document for the run, from a pattern
// file when one was given, from the configured defaults otherwise.
func backupMetadata(svc *service.Service, flags BackupFlags) (*metadoc.Document, error) {
	meta, err := svc.DefaultMetadata()
	if err != nil {
		return nil, err
	}

	if flags.PatternsFile != "" {
		text, err := os.ReadFile(flags.PatternsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read pattern file: %w", err)
		}
		includes, excludes := pattern.ParseText(string(text))
		if _, err := pattern.CompileSplit(includes, excludes); err != nil {
			return nil, err
		}
		meta.IncludePatterns = includes
		meta.ExcludePatterns = excludes
	}
	if flags.Name != "" {
		meta.BackupName = flags.Name
	}
	if flags.IncludeHidden {
		meta.IncludeHidden = true
	}
	return meta, nil
}

func runWithProgress(ctx context.Context, svc *service.Service, meta *metadoc.Document) error {
	reporter := svc.CreateBackupWithProgress(ctx, meta)

	var failure string
	for event := range reporter.Events() {
		fmt.Printf("[%3d%%] %-11s %s\n", event.Percent, event.Stage, event.Message)
		if event.Stage == progress.StageFailed {
			failure = event.Error
		}
	}
	if failure != "" {
		return fmt.Errorf("%s", failure)
	}
	return nil
}
