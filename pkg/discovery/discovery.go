// Package discovery walks configured base directories and selects the
// files matched by a pattern set, honoring the hidden-entry policy and the
// always-visit override for explicit include patterns.
package discovery

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/snapvault/snapvault/pkg/metrics"
	"github.com/snapvault/snapvault/pkg/pattern"
	"github.com/snapvault/snapvault/pkg/plog"
	"github.com/snapvault/snapvault/pkg/util"
)

// MatchedFile is one file selected by discovery.
type MatchedFile struct {
	// LogicalPath is the pattern-space path: the real path, normalized to
	// forward slashes, with any base-path prefix left intact.
	LogicalPath string
	// RealPath is the actual filesystem path.
	RealPath string
	Size     int64
	Modified time.Time
	// Type is currently always "file".
	Type string
}

// Engine discovers files. It holds no per-operation state; Discover may be
// called concurrently.
type Engine struct {
	metrics metrics.Metrics
}

// NewEngine creates a discovery engine reporting into the given metrics.
func NewEngine(m metrics.Metrics) *Engine {
	if m == nil {
		m = &metrics.NoopMetrics{}
	}
	return &Engine{metrics: m}
}

// errWalkStop aborts a walk once the per-directory match cap is reached.
var errWalkStop = errors.New("walk stopped")

// dirResult collects the matches of one base directory walk.
type dirResult struct {
	files  []MatchedFile
	hitCap bool
}

// Discover walks each base directory depth-first and returns the files the
// set matches, up to maxFiles (0 or negative means unlimited). The second
// return value reports whether the result was truncated by the cap.
//
// Base directories are walked in parallel, but results are merged in the
// configured order and each walk is lexical, so truncation is
// deterministic. A file that cannot be stat'ed is skipped; a base
// directory that cannot be read is skipped with a warning. Only context
// cancellation aborts discovery.
func (e *Engine) Discover(ctx context.Context, baseDirs []string, set *pattern.Set, includeHidden bool, maxFiles int) ([]MatchedFile, bool, error) {
	results := make([]dirResult, len(baseDirs))

	g, ctx := errgroup.WithContext(ctx)
	for i, base := range baseDirs {
		i, base := i, base
		g.Go(func() error {
			res, err := e.walkBase(ctx, base, set, includeHidden, maxFiles)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	var matched []MatchedFile
	truncated := false
	for _, res := range results {
		if res.hitCap {
			truncated = true
		}
		matched = append(matched, res.files...)
	}
	if maxFiles > 0 && len(matched) > maxFiles {
		matched = matched[:maxFiles]
		truncated = true
	}
	return matched, truncated, nil
}

func (e *Engine) walkBase(ctx context.Context, base string, set *pattern.Set, includeHidden bool, maxFiles int) (dirResult, error) {
	var res dirResult

	walkErr := filepath.WalkDir(base, func(realPath string, d fs.DirEntry, entryErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if entryErr != nil {
			if realPath == base {
				plog.Warn("Skipping unreadable base directory", "dir", base, "error", entryErr)
				return filepath.SkipAll
			}
			plog.Debug("Skipping unreadable entry", "path", realPath, "error", entryErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		logicalPath := util.NormalizePath(realPath)
		name := d.Name()

		if d.IsDir() {
			// Hidden directories are pruned unless an explicit include
			// pattern needs this directory traversed.
			if realPath != base && !includeHidden && strings.HasPrefix(name, ".") && !set.AlwaysVisit(logicalPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		// Hidden files are skipped unless their exact path is explicitly included.
		if !includeHidden && strings.HasPrefix(name, ".") && !set.AlwaysVisit(logicalPath) {
			return nil
		}

		if !set.Matches(logicalPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Stat failure (permissions, race-deleted): skip, keep walking.
			plog.Debug("Skipping file that cannot be stat'ed", "path", realPath, "error", err)
			return nil
		}

		res.files = append(res.files, MatchedFile{
			LogicalPath: logicalPath,
			RealPath:    realPath,
			Size:        info.Size(),
			Modified:    info.ModTime(),
			Type:        "file",
		})
		e.metrics.AddFilesMatched(1)

		if maxFiles > 0 && len(res.files) >= maxFiles {
			res.hitCap = true
			return errWalkStop
		}
		return nil
	})

	if walkErr != nil && !errors.Is(walkErr, errWalkStop) {
		return dirResult{}, walkErr
	}
	return res, nil
}
