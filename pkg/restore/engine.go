package restore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/snapvault/snapvault/pkg/discovery"
	"github.com/snapvault/snapvault/pkg/metadoc"
	"github.com/snapvault/snapvault/pkg/metrics"
	"github.com/snapvault/snapvault/pkg/pattern"
	"github.com/snapvault/snapvault/pkg/plog"
	"github.com/snapvault/snapvault/pkg/util"
)

// Skip and delete reasons reported in Result entries. The strings are part
// of the result contract, callers key on them.
const (
	ReasonNotMatched         = "not_matched_by_pattern"
	ReasonExistsSkipPolicy   = "file_exists_skip_policy"
	ReasonCleanBeforeRestore = "clean_before_restore"
)

// checksumsFileName is a control file written by older archive revisions.
// It is never restored as content.
const checksumsFileName = "checksums.json"

// cleanScanLimit bounds the discovery walk used by clean-before-restore.
const cleanScanLimit = 10000

// RestoredFile records one archive entry written to the filesystem.
type RestoredFile struct {
	ArchivePath string `json:"archivePath"`
	TargetPath  string `json:"targetPath"`
}

// SkippedFile records one archive entry that was deliberately not written.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// DeletedFile records one pre-existing file removed by clean-before-restore.
type DeletedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// FileError records one per-file failure. The operation continues past it.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Result aggregates the outcome of a restore or a restore preview.
type Result struct {
	Restored []RestoredFile `json:"restored"`
	Deleted  []DeletedFile  `json:"deleted"`
	Skipped  []SkippedFile  `json:"skipped"`
	Errors   []FileError    `json:"errors"`

	// Metadata is the effective control document for the run: the caller's
	// edited copy when one was supplied, the archive's original otherwise.
	Metadata *metadoc.Document `json:"metadata"`
}

// Inspection describes an archive without touching the filesystem.
type Inspection struct {
	Metadata *metadoc.Document `json:"metadata"`
	Entries  []string          `json:"entries"`
}

// Options controls a restore or preview run.
//
// IncludePatterns and ExcludePatterns are evaluated against translated
// target paths. When both are empty, every content entry is selected.
// Edited, when set, is the caller's modified control document; the
// archive's embedded original is still used for path translation.
type Options struct {
	IncludePatterns []string
	ExcludePatterns []string
	Policy          ConflictPolicy
	CleanBefore     bool
	Edited          *metadoc.Document
}

// Engine restores archive contents onto the local filesystem.
type Engine struct {
	currentRoot string
	baseDirs    []string
	metrics     metrics.Metrics
}

// NewEngine creates a restore engine. currentRoot is the installation root
// of this system, substituted for the capture-time root during path
// translation. baseDirs scope the clean-before-restore walk. Passing a nil
// metrics implementation disables metrics collection.
func NewEngine(currentRoot string, baseDirs []string, m metrics.Metrics) *Engine {
	if m == nil {
		m = &metrics.NoopMetrics{}
	}
	return &Engine{
		currentRoot: util.TrimRoot(currentRoot),
		baseDirs:    baseDirs,
		metrics:     m,
	}
}

// Inspect reads the embedded control document and lists the archive's
// content entries. Control files are excluded from the entry list.
func (e *Engine) Inspect(archivePath string) (*Inspection, error) {
	original, err := readEmbeddedMetadata(archivePath)
	if err != nil {
		return nil, err
	}

	var entries []string
	err = walkEntries(archivePath, func(name string, _ time.Time, _ openEntry) error {
		if isControlEntry(name) {
			return nil
		}
		entries = append(entries, name)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Inspection{Metadata: original, Entries: entries}, nil
}

// Preview evaluates a restore without writing anything. The returned Result
// lists what Restore would write, delete, and skip under the same Options.
func (e *Engine) Preview(ctx context.Context, archivePath string, opts Options) (*Result, error) {
	return e.run(ctx, archivePath, opts, true)
}

// Restore extracts the archive onto the filesystem according to opts.
// Per-file failures are collected in Result.Errors and do not abort the
// run; only container-level problems return an error. There is no
// rollback, a failed run may leave some files restored.
func (e *Engine) Restore(ctx context.Context, archivePath string, opts Options) (*Result, error) {
	return e.run(ctx, archivePath, opts, false)
}

func (e *Engine) run(ctx context.Context, archivePath string, opts Options, dryRun bool) (*Result, error) {
	original, err := readEmbeddedMetadata(archivePath)
	if err != nil {
		return nil, err
	}

	effective := original
	if opts.Edited != nil {
		effective = opts.Edited
	}
	result := &Result{Metadata: effective}

	// Translation always uses the original document: only it records the
	// capture-time root, no matter what the caller edited.
	originalRoot := original.CaptureRoot()

	set, err := e.compileSelection(opts, originalRoot)
	if err != nil {
		return nil, err
	}

	if opts.CleanBefore {
		if err := e.cleanExisting(ctx, effective, originalRoot, dryRun, result); err != nil {
			return nil, err
		}
	}

	err = walkEntries(archivePath, func(name string, modTime time.Time, open openEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if isControlEntry(name) {
			return nil
		}
		if hasDotDot(name) {
			result.Errors = append(result.Errors, FileError{
				Path:  name,
				Error: "entry path escapes the restore root",
			})
			return nil
		}

		target := TranslatePath(name, originalRoot, e.currentRoot)

		// Selection is evaluated against the translated path so patterns
		// written for this system match archives captured elsewhere.
		if set != nil && !set.Matches(target) {
			result.Skipped = append(result.Skipped, SkippedFile{Path: name, Reason: ReasonNotMatched})
			e.metrics.AddFilesSkipped(1)
			return nil
		}

		exists := false
		if _, err := os.Lstat(target); err == nil {
			exists = true
		}

		if exists && opts.Policy == PolicySkip {
			result.Skipped = append(result.Skipped, SkippedFile{Path: name, Reason: ReasonExistsSkipPolicy})
			e.metrics.AddFilesSkipped(1)
			return nil
		}

		if dryRun {
			result.Restored = append(result.Restored, RestoredFile{ArchivePath: name, TargetPath: target})
			return nil
		}

		if err := e.writeFile(name, target, modTime, exists, opts.Policy, open); err != nil {
			plog.Warn("Failed to restore file", "entry", name, "target", target, "error", err)
			result.Errors = append(result.Errors, FileError{Path: name, Error: err.Error()})
			return nil
		}

		result.Restored = append(result.Restored, RestoredFile{ArchivePath: name, TargetPath: target})
		e.metrics.AddFilesRestored(1)
		plog.Notice("RES", "entry", name, "target", target)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// compileSelection builds the effective pattern set from the options,
// translated onto this system. A nil return means no selection, every
// content entry is restored.
func (e *Engine) compileSelection(opts Options, originalRoot string) (*pattern.Set, error) {
	if len(opts.IncludePatterns) == 0 && len(opts.ExcludePatterns) == 0 {
		return nil, nil
	}

	includes := TranslatePatterns(opts.IncludePatterns, originalRoot, e.currentRoot)
	excludes := TranslatePatterns(opts.ExcludePatterns, originalRoot, e.currentRoot)
	return pattern.CompileSplit(includes, excludes)
}

// cleanExisting deletes files on disk that match the effective document's
// patterns, making room for an exact restore. Failures to delete are
// recorded per file. Pattern problems in the edited document abort the run
// before anything is removed.
func (e *Engine) cleanExisting(ctx context.Context, effective *metadoc.Document, originalRoot string, dryRun bool, result *Result) error {
	if len(effective.IncludePatterns) == 0 {
		return nil
	}

	includes := TranslatePatterns(effective.IncludePatterns, originalRoot, e.currentRoot)
	excludes := TranslatePatterns(effective.ExcludePatterns, originalRoot, e.currentRoot)
	set, err := pattern.CompileSplit(includes, excludes)
	if err != nil {
		return err
	}

	disc := discovery.NewEngine(e.metrics)
	matched, _, err := disc.Discover(ctx, e.baseDirs, set, effective.IncludeHidden, cleanScanLimit)
	if err != nil {
		return err
	}

	for _, f := range matched {
		if dryRun {
			result.Deleted = append(result.Deleted, DeletedFile{Path: f.RealPath, Reason: ReasonCleanBeforeRestore})
			continue
		}
		if err := os.Remove(f.RealPath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			result.Errors = append(result.Errors, FileError{Path: f.RealPath, Error: fmt.Sprintf("failed to delete: %v", err)})
			continue
		}
		result.Deleted = append(result.Deleted, DeletedFile{Path: f.RealPath, Reason: ReasonCleanBeforeRestore})
		plog.Notice("DEL", "path", f.RealPath)
	}
	return nil
}

// writeFile extracts one entry to target, honoring the conflict policy.
// Under the backup policy the existing file is renamed aside before any
// new content is written, so a failure never leaves both versions mixed.
func (e *Engine) writeFile(name, target string, modTime time.Time, exists bool, policy ConflictPolicy, open openEntry) error {
	if exists && policy == PolicyBackupExisting {
		aside := target + ".backup." + time.Now().Format("20060102_150405")
		if err := os.Rename(target, aside); err != nil {
			return fmt.Errorf("failed to back up existing file: %w", err)
		}
		plog.Debug("Existing file moved aside", "target", target, "backup", aside)
	}

	if dir := filepath.Dir(target); dir != "" {
		if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
			return fmt.Errorf("failed to create target directory: %w", err)
		}
	}

	src, err := open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, util.UserWritableFilePerms)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}

	written, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	e.metrics.AddBytesWritten(written)

	if !modTime.IsZero() {
		// Best effort, a lost timestamp is not worth failing the file.
		_ = os.Chtimes(target, time.Now(), modTime)
	}
	return nil
}

// isControlEntry reports whether the entry is one of the archive's own
// control documents rather than restorable content.
func isControlEntry(name string) bool {
	return name == metadoc.FileName || name == checksumsFileName
}

// hasDotDot reports whether any path segment is "..", which would let a
// crafted archive write outside the translated target tree.
func hasDotDot(p string) bool {
	for _, seg := range strings.Split(util.NormalizePath(p), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
