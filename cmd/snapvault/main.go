package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/snapvault/snapvault/cmd"
	"github.com/snapvault/snapvault/pkg/buildinfo"
	"github.com/snapvault/snapvault/pkg/plog"
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s <command> [flags]\n", buildinfo.Name)
	fmt.Fprintf(out, "Pattern-driven backup and restore for application data.\n\n")
	fmt.Fprintf(out, "Commands:\n")
	fmt.Fprintf(out, "  backup    Create a backup archive\n")
	fmt.Fprintf(out, "  restore   Restore files from an archive\n")
	fmt.Fprintf(out, "  inspect   Show an archive's metadata\n")
	fmt.Fprintf(out, "  preview   Show what a backup would contain, grouped by directory\n")
	fmt.Fprintf(out, "  patterns  Test which files a pattern set matches\n")
	fmt.Fprintf(out, "  init      Generate a default %s\n", "snapvault.config.json")
	fmt.Fprintf(out, "  version   Print the application version\n\n")
	fmt.Fprintf(out, "Run '%s <command> -h' for command flags.\n", buildinfo.Name)
}

// commonFlags registers the flags every command shares on the given set.
func commonFlags(fs *flag.FlagSet) *cmd.CommonFlags {
	flags := &cmd.CommonFlags{}
	fs.StringVar(&flags.ConfigDir, "config-dir", "", "Directory holding snapvault.config.json (default: current directory)")
	fs.StringVar(&flags.Root, "root", "", "Installation root the patterns refer to")
	fs.StringVar(&flags.Dest, "dest", "", "Directory where finished archives are written")
	fs.StringVar(&flags.LogLevel, "log-level", "", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'")
	return flags
}

func run(ctx context.Context, args []string) error {
	if len(args) < 1 {
		usage()
		return fmt.Errorf("no command given")
	}
	command, rest := args[0], args[1:]

	switch command {
	case "backup":
		fs := flag.NewFlagSet("backup", flag.ExitOnError)
		common := commonFlags(fs)
		flags := cmd.BackupFlags{}
		fs.StringVar(&flags.Name, "name", "", "Backup name, used as the archive file name")
		fs.StringVar(&flags.PatternsFile, "patterns", "", "File with pattern lines (default: configured patterns)")
		fs.BoolVar(&flags.IncludeHidden, "include-hidden", false, "Include hidden files and directories")
		fs.StringVar(&flags.Format, "format", "", "Archive format: 'zip', 'tar.gz' or 'tar.zst'")
		fs.StringVar(&flags.Level, "level", "", "Compression level: 'default', 'fastest', 'better' or 'best'")
		fs.BoolVar(&flags.ShowProgress, "progress", false, "Print stage progress while the backup runs")
		fs.Parse(rest)
		flags.CommonFlags = *common
		return cmd.RunBackup(ctx, flags)

	case "restore":
		fs := flag.NewFlagSet("restore", flag.ExitOnError)
		common := commonFlags(fs)
		flags := cmd.RestoreFlags{}
		fs.StringVar(&flags.Archive, "archive", "", "Archive file to restore from")
		fs.StringVar(&flags.PatternsFile, "patterns", "", "File with pattern lines limiting what is restored")
		fs.StringVar(&flags.Policy, "policy", "", "Conflict policy: 'overwrite', 'skip' or 'backup'")
		fs.BoolVar(&flags.CleanBefore, "clean", false, "Delete files matching the archive's patterns before restoring")
		fs.BoolVar(&flags.DryRun, "dry-run", false, "Show what would be done without making any changes")
		fs.Parse(rest)
		flags.CommonFlags = *common
		return cmd.RunRestore(ctx, flags)

	case "inspect":
		fs := flag.NewFlagSet("inspect", flag.ExitOnError)
		common := commonFlags(fs)
		flags := cmd.InspectFlags{}
		fs.StringVar(&flags.Archive, "archive", "", "Archive file to inspect")
		fs.BoolVar(&flags.ListEntries, "entries", false, "List every archive entry")
		fs.Parse(rest)
		flags.CommonFlags = *common
		return cmd.RunInspect(flags)

	case "preview":
		fs := flag.NewFlagSet("preview", flag.ExitOnError)
		common := commonFlags(fs)
		flags := cmd.PreviewFlags{}
		fs.StringVar(&flags.PatternsFile, "patterns", "", "File with pattern lines (default: configured patterns)")
		fs.BoolVar(&flags.IncludeHidden, "include-hidden", false, "Include hidden files and directories")
		fs.IntVar(&flags.MaxDepth, "depth", 0, "Directory depth at which groups are folded (default: configured)")
		fs.StringVar(&flags.Search, "search", "", "Only show files whose path contains this text")
		fs.Parse(rest)
		flags.CommonFlags = *common
		return cmd.RunPreview(ctx, flags)

	case "patterns":
		fs := flag.NewFlagSet("patterns", flag.ExitOnError)
		common := commonFlags(fs)
		flags := cmd.PatternsFlags{}
		fs.StringVar(&flags.PatternsFile, "patterns", "", "File with pattern lines (default: configured patterns)")
		fs.BoolVar(&flags.IncludeHidden, "include-hidden", false, "Include hidden files and directories")
		fs.Parse(rest)
		flags.CommonFlags = *common
		return cmd.RunPatterns(ctx, flags)

	case "init":
		fs := flag.NewFlagSet("init", flag.ExitOnError)
		common := commonFlags(fs)
		fs.Parse(rest)
		return cmd.RunInit(*common)

	case "version":
		return cmd.RunVersion(buildinfo.Name, buildinfo.Version)

	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func main() {
	// Set up a context that is canceled when an interrupt signal is received.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx, os.Args[1:]); err != nil {
		plog.Error(buildinfo.Name+" exited with error", "error", err)
		os.Exit(1)
	}
}
