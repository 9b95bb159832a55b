package service_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/snapvault/snapvault/pkg/config"
	"github.com/snapvault/snapvault/pkg/metadoc"
	"github.com/snapvault/snapvault/pkg/progress"
	"github.com/snapvault/snapvault/pkg/restore"
	"github.com/snapvault/snapvault/pkg/service"
	"github.com/snapvault/snapvault/pkg/util"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), util.UserWritableDirPerms); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), util.UserWritableFilePerms); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
}

func newTestConfig(t *testing.T, root string) config.Config {
	t.Helper()
	cfg := config.NewDefault()
	cfg.RootPath = root
	cfg.DestDir = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config should validate: %v", err)
	}
	return cfg
}

func captureMeta(root string) *metadoc.Document {
	includes := []string{util.NormalizePath(root) + "/**"}
	return metadoc.New("roundtrip", false, includes, nil, root, "test")
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	srcRoot := t.TempDir()
	files := map[string]string{
		"data/a.txt":        "alpha",
		"data/nested/b.txt": "beta",
		"config/app.json":   `{"k":"v"}`,
	}
	writeTree(t, srcRoot, files)

	backupSvc := service.New(newTestConfig(t, srcRoot), nil)
	archivePath, err := backupSvc.CreateBackup(context.Background(), captureMeta(srcRoot))
	if err != nil {
		t.Fatalf("backup failed: %v", err)
	}

	dstRoot := t.TempDir()
	restoreSvc := service.New(newTestConfig(t, dstRoot), nil)
	result, err := restoreSvc.RestoreBackup(context.Background(), archivePath, restore.Options{
		Policy: restore.PolicyOverwrite,
	})
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected restore errors: %+v", result.Errors)
	}

	for name, content := range files {
		got, err := os.ReadFile(filepath.Join(dstRoot, name))
		if err != nil {
			t.Fatalf("restored file missing: %v", err)
		}
		if !bytes.Equal(got, []byte(content)) {
			t.Errorf("file %s: expected %q, got %q", name, content, got)
		}
	}
}

func TestTestPatternsFindsOnlyMatches(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"data/keep.txt":  "k",
		"cache/skip.txt": "s",
	})

	svc := service.New(newTestConfig(t, root), nil)
	matched, truncated, err := svc.TestPatterns(context.Background(),
		[]string{util.NormalizePath(root) + "/data/**"}, nil, false)
	if err != nil {
		t.Fatalf("test patterns failed: %v", err)
	}
	if truncated {
		t.Errorf("small tree should not truncate")
	}
	if len(matched) != 1 || !strings.HasSuffix(matched[0].LogicalPath, "/data/keep.txt") {
		t.Errorf("unexpected matches: %+v", matched)
	}
}

func TestPreviewGroupedEmptyIncludes(t *testing.T) {
	svc := service.New(newTestConfig(t, t.TempDir()), nil)
	groups, stats, err := svc.PreviewGrouped(context.Background(), nil, nil, false, 0, "")
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	if len(groups) != 0 || stats.TotalFiles != 0 {
		t.Errorf("no includes should produce an empty preview, got %+v", stats)
	}
}

func TestPreviewGroupedGroupsByDirectory(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"data/a.txt": "a",
		"data/b.txt": "b",
	})

	svc := service.New(newTestConfig(t, root), nil)
	groups, stats, err := svc.PreviewGrouped(context.Background(),
		[]string{util.NormalizePath(root) + "/**"}, nil, false, 10, "")
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	if stats.TotalFiles != 2 {
		t.Fatalf("expected 2 files, got %+v", stats)
	}
	if len(groups) != 1 || groups[0].FileCount != 2 {
		t.Errorf("expected one group of two files, got %+v", groups)
	}
}

func TestCreateBackupWithProgressEmitsCompletion(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"data/a.txt": "a"})

	svc := service.New(newTestConfig(t, root), nil)
	reporter := svc.CreateBackupWithProgress(context.Background(), captureMeta(root))

	var events []progress.Event
	for e := range reporter.Events() {
		events = append(events, e)
	}

	if len(events) == 0 {
		t.Fatal("expected progress events")
	}
	last := events[len(events)-1]
	if last.Stage != progress.StageCompleted || !last.Completed || last.Error != "" {
		t.Fatalf("unexpected terminal event: %+v", last)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Percent < events[i-1].Percent {
			t.Errorf("percent went backwards at event %d: %+v", i, events)
		}
	}
}

func TestCreateBackupWithProgressReportsFailure(t *testing.T) {
	root := t.TempDir()
	// No files on disk: discovery matches nothing and the build must fail.
	svc := service.New(newTestConfig(t, root), nil)
	reporter := svc.CreateBackupWithProgress(context.Background(), captureMeta(root))

	var last progress.Event
	for e := range reporter.Events() {
		last = e
	}
	if last.Stage != progress.StageFailed || last.Error == "" {
		t.Fatalf("expected a terminal failure event, got %+v", last)
	}
}

func TestDefaultMetadataUsesConfiguredPatterns(t *testing.T) {
	root := t.TempDir()
	svc := service.New(newTestConfig(t, root), nil)

	meta, err := svc.DefaultMetadata()
	if err != nil {
		t.Fatalf("default metadata failed: %v", err)
	}
	if meta.BackupName == "" || meta.FormatVersion == "" {
		t.Errorf("incomplete document: %+v", meta)
	}
	wantPrefix := util.NormalizePath(root) + "/data/**"
	found := false
	for _, p := range meta.IncludePatterns {
		if p == wantPrefix {
			found = true
		}
	}
	if !found {
		t.Errorf("expected resolved default pattern %q in %v", wantPrefix, meta.IncludePatterns)
	}
	if len(meta.ExcludePatterns) == 0 {
		t.Errorf("default excludes should survive the split")
	}
}

func TestSaveUploadSpoolsAndCleansUp(t *testing.T) {
	svc := service.New(newTestConfig(t, t.TempDir()), nil)

	payload := []byte("archive bytes")
	path, cleanup, err := svc.SaveUpload(bytes.NewReader(payload), "backup.zip")
	if err != nil {
		t.Fatalf("save upload failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("spooled file unreadable: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("spooled bytes differ")
	}

	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("cleanup should remove the spooled file")
	}
}
