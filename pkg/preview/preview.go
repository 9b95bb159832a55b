// Package preview aggregates matched files into depth-limited directory
// groups for summarized display.
package preview

import (
	"sort"
	"strings"

	"github.com/snapvault/snapvault/pkg/discovery"
)

// DisplayFileLimit caps the per-group file list handed to a UI. Files
// beyond the cap are reported only as an overflow count.
const DisplayFileLimit = 50

// DirectoryGroup summarizes the matched files under one directory prefix.
type DirectoryGroup struct {
	// Path is the group key: the parent directory, or the path truncated
	// to the depth limit when the file sits deeper.
	Path  string                 `json:"path"`
	Files []discovery.MatchedFile `json:"files"`
	// AdditionalFiles counts matched files beyond the display cap.
	AdditionalFiles int   `json:"additionalFiles"`
	FileCount       int   `json:"fileCount"`
	TotalSize       int64 `json:"totalSize"`
	// Truncated reports that at least one file was folded up from below
	// the depth limit.
	Truncated bool `json:"truncated"`
	// NextLevelNames lists the names directly below a truncated group.
	NextLevelNames []string `json:"nextLevelNames"`
}

// Stats summarizes a grouping run across all groups.
type Stats struct {
	TotalGroups   int   `json:"totalGroups"`
	TotalFiles    int   `json:"totalFiles"`
	TotalSize     int64 `json:"totalSize"`
	SearchApplied bool  `json:"searchApplied"`
	MaxDepth      int   `json:"maxDepth"`
}

// Group buckets matched files by directory, folding paths deeper than
// maxDepth into a truncated group at that depth. A non-empty searchFilter
// first narrows the input to files whose logical path contains it,
// case-insensitively. Groups come back sorted by path; the per-group file
// counts always sum to the number of files that survived the filter.
func Group(matched []discovery.MatchedFile, maxDepth int, searchFilter string) ([]DirectoryGroup, Stats) {
	searchFilter = strings.TrimSpace(searchFilter)
	if searchFilter != "" {
		needle := strings.ToLower(searchFilter)
		filtered := make([]discovery.MatchedFile, 0, len(matched))
		for _, f := range matched {
			if strings.Contains(strings.ToLower(f.LogicalPath), needle) {
				filtered = append(filtered, f)
			}
		}
		matched = filtered
	}

	groups := make(map[string]*DirectoryGroup)
	nextNames := make(map[string]map[string]struct{})
	var totalSize int64

	for _, f := range matched {
		totalSize += f.Size
		segs := strings.Split(strings.Trim(f.LogicalPath, "/"), "/")

		var key string
		truncated := false
		if maxDepth > 0 && len(segs) > maxDepth {
			key = "/" + strings.Join(segs[:maxDepth], "/")
			truncated = true
		} else if len(segs) > 1 {
			key = "/" + strings.Join(segs[:len(segs)-1], "/")
		} else {
			key = "/"
		}

		g, ok := groups[key]
		if !ok {
			g = &DirectoryGroup{Path: key}
			groups[key] = g
			nextNames[key] = make(map[string]struct{})
		}
		g.Files = append(g.Files, f)
		g.FileCount++
		g.TotalSize += f.Size
		if truncated {
			g.Truncated = true
			nextNames[key][segs[maxDepth]] = struct{}{}
		}
	}

	out := make([]DirectoryGroup, 0, len(groups))
	for key, g := range groups {
		names := make([]string, 0, len(nextNames[key]))
		for name := range nextNames[key] {
			names = append(names, name)
		}
		sort.Strings(names)
		g.NextLevelNames = names

		if len(g.Files) > DisplayFileLimit {
			g.AdditionalFiles = len(g.Files) - DisplayFileLimit
			g.Files = g.Files[:DisplayFileLimit]
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	stats := Stats{
		TotalGroups:   len(out),
		TotalFiles:    len(matched),
		TotalSize:     totalSize,
		SearchApplied: searchFilter != "",
		MaxDepth:      maxDepth,
	}
	return out, stats
}
