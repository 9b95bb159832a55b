package cmd_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/snapvault/snapvault/cmd"
	"github.com/snapvault/snapvault/pkg/config"
)

func TestRunInitGeneratesConfig(t *testing.T) {
	dir := t.TempDir()
	root := t.TempDir()

	err := cmd.RunInit(cmd.CommonFlags{ConfigDir: dir, Root: root})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, config.ConfigFileName)); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	loaded, err := config.Load(dir)
	if err != nil {
		t.Fatalf("generated config should load: %v", err)
	}
	if loaded.RootPath != root {
		t.Errorf("expected root %q, got %q", root, loaded.RootPath)
	}
}

func TestRunInitRequiresRoot(t *testing.T) {
	if err := cmd.RunInit(cmd.CommonFlags{ConfigDir: t.TempDir()}); err == nil {
		t.Errorf("init without a root should fail")
	}
}

func TestRunBackupAndRestoreEndToEnd(t *testing.T) {
	root := t.TempDir()
	dest := t.TempDir()
	dataDir := filepath.Join(root, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "a.txt"), []byte("payload"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	patternFile := filepath.Join(t.TempDir(), "patterns.txt")
	if err := os.WriteFile(patternFile, []byte(root+"/data/**\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	common := cmd.CommonFlags{ConfigDir: t.TempDir(), Root: root, Dest: dest}
	err := cmd.RunBackup(context.Background(), cmd.BackupFlags{
		CommonFlags:  common,
		Name:         "e2e",
		PatternsFile: patternFile,
	})
	if err != nil {
		t.Fatalf("backup failed: %v", err)
	}

	archivePath := filepath.Join(dest, "e2e.zip")
	if _, err := os.Stat(archivePath); err != nil {
		t.Fatalf("archive not written: %v", err)
	}

	restoreRoot := t.TempDir()
	err = cmd.RunRestore(context.Background(), cmd.RestoreFlags{
		CommonFlags: cmd.CommonFlags{ConfigDir: t.TempDir(), Root: restoreRoot},
		Archive:     archivePath,
	})
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(restoreRoot, "data", "a.txt"))
	if err != nil {
		t.Fatalf("restored file missing: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("restored content wrong: %q", got)
	}
}

func TestRunRestoreMissingArchive(t *testing.T) {
	err := cmd.RunRestore(context.Background(), cmd.RestoreFlags{
		CommonFlags: cmd.CommonFlags{Root: t.TempDir()},
		Archive:     filepath.Join(t.TempDir(), "missing.zip"),
	})
	if err == nil {
		t.Errorf("restore of a missing archive should fail")
	}
}
