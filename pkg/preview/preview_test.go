package preview_test

import (
	"fmt"
	"testing"

	"github.com/snapvault/snapvault/pkg/discovery"
	"github.com/snapvault/snapvault/pkg/preview"
)

func matchedFile(path string, size int64) discovery.MatchedFile {
	return discovery.MatchedFile{
		LogicalPath: path,
		RealPath:    path,
		Size:        size,
		Type:        "file",
	}
}

func TestGroupByParentDirectory(t *testing.T) {
	matched := []discovery.MatchedFile{
		matchedFile("/app/data/a.txt", 10),
		matchedFile("/app/data/b.txt", 20),
		matchedFile("/app/conf.json", 5),
	}

	groups, stats := preview.Group(matched, 5, "")

	if stats.TotalFiles != 3 || stats.TotalSize != 35 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d: %+v", len(groups), groups)
	}
	if groups[0].Path != "/app" || groups[0].FileCount != 1 {
		t.Errorf("unexpected first group: %+v", groups[0])
	}
	if groups[1].Path != "/app/data" || groups[1].FileCount != 2 || groups[1].TotalSize != 30 {
		t.Errorf("unexpected second group: %+v", groups[1])
	}
	if groups[1].Truncated {
		t.Errorf("group within the depth limit must not be truncated")
	}
}

func TestGroupTruncatesDeepPaths(t *testing.T) {
	matched := []discovery.MatchedFile{
		matchedFile("/app/data/memory/idx/shard1.bin", 1),
		matchedFile("/app/data/memory/idx/shard2.bin", 1),
		matchedFile("/app/data/memory/log/current.log", 1),
	}

	groups, _ := preview.Group(matched, 3, "")

	if len(groups) != 1 {
		t.Fatalf("expected one truncated group, got %+v", groups)
	}
	g := groups[0]
	if g.Path != "/app/data/memory" {
		t.Errorf("expected group key at depth 3, got %q", g.Path)
	}
	if !g.Truncated {
		t.Errorf("deep group should be marked truncated")
	}
	if g.FileCount != 3 {
		t.Errorf("expected 3 files folded up, got %d", g.FileCount)
	}
	if len(g.NextLevelNames) != 2 || g.NextLevelNames[0] != "idx" || g.NextLevelNames[1] != "log" {
		t.Errorf("unexpected next-level names: %v", g.NextLevelNames)
	}
}

func TestGroupRootLevelFile(t *testing.T) {
	groups, _ := preview.Group([]discovery.MatchedFile{matchedFile("/top.txt", 1)}, 3, "")
	if len(groups) != 1 || groups[0].Path != "/" {
		t.Fatalf("root level file should group under /, got %+v", groups)
	}
}

func TestGroupSearchFilter(t *testing.T) {
	matched := []discovery.MatchedFile{
		matchedFile("/app/data/Settings.json", 1),
		matchedFile("/app/data/notes.txt", 1),
	}

	groups, stats := preview.Group(matched, 5, "settings")

	if !stats.SearchApplied {
		t.Errorf("stats should report the filter")
	}
	if stats.TotalFiles != 1 {
		t.Fatalf("case-insensitive filter should keep one file, got %d", stats.TotalFiles)
	}
	if len(groups) != 1 || groups[0].FileCount != 1 {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}

func TestGroupDisplayCapReportsOverflow(t *testing.T) {
	var matched []discovery.MatchedFile
	for i := 0; i < preview.DisplayFileLimit+7; i++ {
		matched = append(matched, matchedFile(fmt.Sprintf("/app/data/f%03d.txt", i), 1))
	}

	groups, _ := preview.Group(matched, 5, "")

	if len(groups) != 1 {
		t.Fatalf("expected one group, got %d", len(groups))
	}
	g := groups[0]
	if len(g.Files) != preview.DisplayFileLimit {
		t.Errorf("displayed files should be capped at %d, got %d", preview.DisplayFileLimit, len(g.Files))
	}
	if g.AdditionalFiles != 7 {
		t.Errorf("expected 7 overflow files, got %d", g.AdditionalFiles)
	}
	if g.FileCount != preview.DisplayFileLimit+7 {
		t.Errorf("file count must include overflow, got %d", g.FileCount)
	}
}

func TestGroupFileCountsSumToInput(t *testing.T) {
	matched := []discovery.MatchedFile{
		matchedFile("/a/b/c/d/e.txt", 1),
		matchedFile("/a/b/x.txt", 1),
		matchedFile("/z.txt", 1),
		matchedFile("/a/b/c/f/g.txt", 1),
	}

	for _, depth := range []int{1, 2, 3, 4, 10} {
		groups, stats := preview.Group(matched, depth, "")
		sum := 0
		for _, g := range groups {
			sum += g.FileCount
		}
		if sum != len(matched) {
			t.Errorf("depth %d: group counts sum to %d, want %d", depth, sum, len(matched))
		}
		if stats.TotalFiles != len(matched) {
			t.Errorf("depth %d: stats total %d, want %d", depth, stats.TotalFiles, len(matched))
		}
	}
}
