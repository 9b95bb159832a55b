package restore

import (
	"strings"

	"github.com/snapvault/snapvault/pkg/util"
)

// TranslatePath maps an archive entry path onto the current system.
// If the path (made absolute) is rooted under originalRoot, that prefix is
// replaced with currentRoot; otherwise the path is returned as-is. The
// prefix match is exact and case-sensitive, and the boundary must fall on
// a separator so "/data" never captures "/database".
func TranslatePath(archivePath, originalRoot, currentRoot string) string {
	abs := util.NormalizePath(archivePath)
	if !strings.HasPrefix(abs, "/") {
		abs = "/" + abs
	}

	if originalRoot == "" {
		return abs
	}

	origRoot := util.TrimRoot(originalRoot)
	curRoot := util.TrimRoot(currentRoot)

	if abs == origRoot {
		return curRoot
	}
	if strings.HasPrefix(abs, origRoot+"/") {
		rel := strings.TrimPrefix(abs[len(origRoot):], "/")
		if rel == "" {
			return curRoot
		}
		if curRoot == "/" {
			return "/" + rel
		}
		return curRoot + "/" + rel
	}
	return abs
}

// TranslatePatterns applies the same root substitution to each pattern, so
// patterns recorded on the capturing system keep matching after the tree
// has moved. A leading '!' survives translation.
func TranslatePatterns(patterns []string, originalRoot, currentRoot string) []string {
	if originalRoot == "" {
		return patterns
	}

	translated := make([]string, 0, len(patterns))
	for _, p := range patterns {
		negated := strings.HasPrefix(p, "!")
		body := strings.TrimPrefix(p, "!")
		out := TranslatePath(body, originalRoot, currentRoot)
		if negated {
			out = "!" + out
		}
		translated = append(translated, out)
	}
	return translated
}
