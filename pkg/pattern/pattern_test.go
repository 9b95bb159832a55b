package pattern

import (
	"errors"
	"testing"
)

func mustCompile(t *testing.T, lines ...string) *Set {
	t.Helper()
	set, err := Compile(lines)
	if err != nil {
		t.Fatalf("Compile(%v) failed: %v", lines, err)
	}
	return set
}

func TestCompileIgnoresCommentsAndBlanks(t *testing.T) {
	set := mustCompile(t, "# comment", "", "  ", "/data/**", "!/data/cache/**")
	if got := len(set.Rules()); got != 2 {
		t.Fatalf("expected 2 rules, got %d", got)
	}
	if set.Rules()[0].Negated || !set.Rules()[1].Negated {
		t.Errorf("negation flags wrong: %+v", set.Rules())
	}
}

func TestLastMatchWins(t *testing.T) {
	set := mustCompile(t, "/data/**", "!/data/cache/**", "/data/cache/keep.txt")

	tests := []struct {
		path string
		want bool
	}{
		{"/data/a.txt", true},
		{"/data/sub/b.txt", true},
		{"/data/cache/b.txt", false},
		{"/data/cache/deep/c.txt", false},
		{"/data/cache/keep.txt", true},
		{"/other/a.txt", false},
	}
	for _, tc := range tests {
		if got := set.Matches(tc.path); got != tc.want {
			t.Errorf("Matches(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestNoRuleMatchesMeansExcluded(t *testing.T) {
	set := mustCompile(t, "/data/**")
	if set.Matches("/etc/passwd") {
		t.Error("path matched by no rule must be excluded")
	}
}

func TestWildcards(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/logs/*.log", "/logs/app.log", true},
		{"/logs/*.log", "/logs/sub/app.log", false}, // '*' stays in one segment
		{"/logs/**", "/logs/sub/app.log", true},
		{"/logs/**", "/logs", false}, // trailing '**' does not match the prefix itself
		{"/a/**/z.txt", "/a/z.txt", true},
		{"/a/**/z.txt", "/a/b/c/z.txt", true},
		{"/tmp/file?.txt", "/tmp/file1.txt", true},
		{"/tmp/file?.txt", "/tmp/file10.txt", false},
		{"/tmp/[ab].txt", "/tmp/a.txt", true},
		{"/tmp/[ab].txt", "/tmp/c.txt", false},
	}
	for _, tc := range tests {
		set := mustCompile(t, tc.pattern)
		if got := set.Matches(tc.path); got != tc.want {
			t.Errorf("pattern %q, path %q: got %v, want %v", tc.pattern, tc.path, got, tc.want)
		}
	}
}

func TestDirectoryPatternSelectsContents(t *testing.T) {
	set := mustCompile(t, "/data/config")

	tests := []struct {
		path string
		want bool
	}{
		{"/data/config", true},
		{"/data/config/a.txt", true},
		{"/data/config/deep/b.txt", true},
		{"/data/configs/c.txt", false}, // sibling with a shared name prefix
		{"/data", false},
	}
	for _, tc := range tests {
		if got := set.Matches(tc.path); got != tc.want {
			t.Errorf("Matches(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestDirectoryExcludeCoversSubtree(t *testing.T) {
	set := mustCompile(t, "/data/**", "!/data/cache")
	if set.Matches("/data/cache/deep/x.txt") {
		t.Error("bare directory exclude must cover its subtree")
	}
	if !set.Matches("/data/a.txt") {
		t.Error("include must still apply outside the excluded directory")
	}
}

func TestSlashFreePatternMatchesAnyDepth(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*.log", "/app.log", true},
		{"*.log", "/logs/app.log", true},
		{"*.log", "/logs/deep/app.log", true},
		{"*.log", "/logs/app.txt", false},
		{"node_modules", "/srv/node_modules/pkg/index.js", true},
		{"node_modules", "/srv/modules/index.js", false},
	}
	for _, tc := range tests {
		set := mustCompile(t, tc.pattern)
		if got := set.Matches(tc.path); got != tc.want {
			t.Errorf("pattern %q, path %q: got %v, want %v", tc.pattern, tc.path, got, tc.want)
		}
	}
}

func TestReorderingNonOverlappingRules(t *testing.T) {
	a := mustCompile(t, "/alpha/**", "/beta/**")
	b := mustCompile(t, "/beta/**", "/alpha/**")

	for _, p := range []string{"/alpha/x", "/beta/y", "/gamma/z"} {
		if a.Matches(p) != b.Matches(p) {
			t.Errorf("rule order changed result for %q", p)
		}
	}
}

func TestCompileRejectsUnbalancedBracket(t *testing.T) {
	_, err := Compile([]string{"/data/[abc.txt"})
	if err == nil {
		t.Fatal("expected compile error for unbalanced bracket")
	}
	var perr *PatternError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PatternError, got %T", err)
	}
	if perr.Line != 1 {
		t.Errorf("expected line 1, got %d", perr.Line)
	}
}

func TestExplicitFlag(t *testing.T) {
	set := mustCompile(t, "/data/.secret", "/data/**")
	rules := set.Rules()
	if !rules[0].Explicit {
		t.Error("/data/.secret should be explicit")
	}
	if rules[1].Explicit {
		t.Error("/data/** should not be explicit")
	}
}

func TestAlwaysVisitCoversAncestors(t *testing.T) {
	set := mustCompile(t, "/data/.hidden/deep/file.txt")

	for _, p := range []string{"/data", "/data/.hidden", "/data/.hidden/deep", "/data/.hidden/deep/file.txt"} {
		if !set.AlwaysVisit(p) {
			t.Errorf("AlwaysVisit(%q) = false, want true", p)
		}
	}
	if set.AlwaysVisit("/data/.other") {
		t.Error("unrelated path must not be in the always-visit set")
	}
}

func TestAlwaysVisitIgnoresWildcardAndNegatedRules(t *testing.T) {
	set := mustCompile(t, "/data/**", "!/data/.cache")
	if set.AlwaysVisit("/data/.cache") {
		t.Error("negated explicit rule must not populate the always-visit set")
	}
	if set.AlwaysVisit("/data/anything") {
		t.Error("wildcard rule must not populate the always-visit set")
	}
}

func TestCompileSplitOrdersIncludesFirst(t *testing.T) {
	set, err := CompileSplit([]string{"/data/**"}, []string{"/data/cache/**"})
	if err != nil {
		t.Fatalf("CompileSplit failed: %v", err)
	}
	if set.Matches("/data/cache/x") {
		t.Error("exclude compiled after include must win")
	}
	if !set.Matches("/data/x") {
		t.Error("include must still apply outside the excluded subtree")
	}
}

func TestSplitRoundTrip(t *testing.T) {
	set := mustCompile(t, "/a/**", "!/a/b/**", "/c.txt")
	inc, exc := set.Split()
	if len(inc) != 2 || inc[0] != "/a/**" || inc[1] != "/c.txt" {
		t.Errorf("includes = %v", inc)
	}
	if len(exc) != 1 || exc[0] != "/a/b/**" {
		t.Errorf("excludes = %v", exc)
	}
}

func TestParseText(t *testing.T) {
	inc, exc := ParseText("# knowledge\n/kb/**\n!/kb/default/**\n\n/tmp/settings.json\n")
	if len(inc) != 2 || inc[0] != "/kb/**" || inc[1] != "/tmp/settings.json" {
		t.Errorf("includes = %v", inc)
	}
	if len(exc) != 1 || exc[0] != "/kb/default/**" {
		t.Errorf("excludes = %v", exc)
	}
}

func TestMatchesIsDeterministic(t *testing.T) {
	set := mustCompile(t, "/data/**", "!/data/cache/**")
	for i := 0; i < 100; i++ {
		if !set.Matches("/data/a.txt") || set.Matches("/data/cache/b.txt") {
			t.Fatal("Matches must be deterministic across calls")
		}
	}
}
