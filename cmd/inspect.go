package cmd

import (
	"fmt"
	"os"

	"github.com/snapvault/snapvault/pkg/plog"
	"github.com/snapvault/snapvault/pkg/service"
)

// InspectFlags holds the command-line overrides for the inspect command.
type InspectFlags struct {
	CommonFlags
	Archive     string
	ListEntries bool
}

// RunInspect prints the control document of an archive and, on request,
// its entry list. Nothing on the filesystem is touched.
func RunInspect(flags InspectFlags) error {
	if flags.Archive == "" {
		return fmt.Errorf("the -archive flag is required to inspect an archive")
	}
	if _, err := os.Stat(flags.Archive); os.IsNotExist(err) {
		return fmt.Errorf("archive '%s' does not exist", flags.Archive)
	}

	runConfig, err := loadRunConfig(flags.CommonFlags)
	if err != nil {
		return err
	}
	if err := runConfig.Validate(); err != nil {
		return err
	}
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	svc := service.New(runConfig, nil)
	insp, err := svc.Inspect(flags.Archive)
	if err != nil {
		return err
	}

	meta := insp.Metadata
	fmt.Printf("Backup:          %s\n", meta.BackupName)
	fmt.Printf("Created:         %s\n", meta.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("App version:     %s\n", meta.AppVersion)
	fmt.Printf("Format version:  %s\n", meta.FormatVersion)
	fmt.Printf("Author:          %s\n", meta.BackupAuthor)
	fmt.Printf("Capture root:    %s\n", meta.CaptureRoot())
	fmt.Printf("Include hidden:  %t\n", meta.IncludeHidden)
	fmt.Printf("Files:           %d (%d bytes)\n", meta.TotalFiles, meta.TotalSize)
	fmt.Printf("Entries:         %d\n", len(insp.Entries))

	if len(meta.IncludePatterns) > 0 {
		fmt.Println("Include patterns:")
		for _, p := range meta.IncludePatterns {
			fmt.Printf("  %s\n", p)
		}
	}
	if len(meta.ExcludePatterns) > 0 {
		fmt.Println("Exclude patterns:")
		for _, p := range meta.ExcludePatterns {
			fmt.Printf("  !%s\n", p)
		}
	}

	if flags.ListEntries {
		fmt.Println("Entries:")
		for _, entry := range insp.Entries {
			fmt.Printf("  %s\n", entry)
		}
	}
	return nil
}
