// Package service is the operation facade: it wires configuration,
// discovery, archiving, restore and progress reporting into the operations
// a caller invokes.
package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/snapvault/snapvault/pkg/archive"
	"github.com/snapvault/snapvault/pkg/buildinfo"
	"github.com/snapvault/snapvault/pkg/config"
	"github.com/snapvault/snapvault/pkg/discovery"
	"github.com/snapvault/snapvault/pkg/metadoc"
	"github.com/snapvault/snapvault/pkg/metrics"
	"github.com/snapvault/snapvault/pkg/pattern"
	"github.com/snapvault/snapvault/pkg/preflight"
	"github.com/snapvault/snapvault/pkg/preview"
	"github.com/snapvault/snapvault/pkg/progress"
	"github.com/snapvault/snapvault/pkg/restore"
	"github.com/snapvault/snapvault/pkg/util"
)

// Service executes backup and restore operations against one configured
// installation. Every operation is request-scoped; the service itself
// holds no mutable state and may be shared across goroutines. Concurrent
// restores against overlapping target trees are not serialized here,
// callers must not run two at once.
type Service struct {
	cfg       config.Config
	metrics   metrics.Metrics
	discovery *discovery.Engine
}

// New creates a service for the given validated configuration. Passing a
// nil metrics implementation disables metrics collection.
func New(cfg config.Config, m metrics.Metrics) *Service {
	if m == nil {
		m = &metrics.NoopMetrics{}
	}
	return &Service{
		cfg:       cfg,
		metrics:   m,
		discovery: discovery.NewEngine(m),
	}
}

// DefaultMetadata returns a fresh control document seeded from the
// configured default patterns, ready for the caller to edit.
func (s *Service) DefaultMetadata() (*metadoc.Document, error) {
	set, err := pattern.Compile(s.cfg.ResolvedDefaultPatterns())
	if err != nil {
		return nil, err
	}
	includes, excludes := set.Split()

	name := fmt.Sprintf("%s-backup-%s", buildinfo.Name, time.Now().Format("2006-01-02"))
	return metadoc.New(name, s.cfg.Discovery.IncludeHidden, includes, excludes, s.cfg.RootPath, buildinfo.Version), nil
}

// TestPatterns runs discovery for the given patterns without building
// anything, so a caller can see what a backup would contain.
func (s *Service) TestPatterns(ctx context.Context, includes, excludes []string, includeHidden bool) ([]discovery.MatchedFile, bool, error) {
	set, err := pattern.CompileSplit(includes, excludes)
	if err != nil {
		return nil, false, err
	}
	return s.discovery.Discover(ctx, s.cfg.BaseDirectories(), set, includeHidden, s.cfg.Discovery.MaxFiles)
}

// PreviewGrouped discovers the files the patterns match and aggregates
// them into depth-limited directory groups. A maxDepth of 0 uses the
// configured default.
func (s *Service) PreviewGrouped(ctx context.Context, includes, excludes []string, includeHidden bool, maxDepth int, searchFilter string) ([]preview.DirectoryGroup, preview.Stats, error) {
	if maxDepth <= 0 {
		maxDepth = s.cfg.Preview.MaxDepth
	}
	if len(includes) == 0 {
		return nil, preview.Stats{MaxDepth: maxDepth}, nil
	}

	matched, _, err := s.TestPatterns(ctx, includes, excludes, includeHidden)
	if err != nil {
		return nil, preview.Stats{}, err
	}
	groups, stats := preview.Group(matched, maxDepth, searchFilter)
	return groups, stats, nil
}

// CreateBackup selects the files described by meta, verifies the
// destination, and writes the archive. It returns the final archive path.
func (s *Service) CreateBackup(ctx context.Context, meta *metadoc.Document) (string, error) {
	return s.createBackup(ctx, meta, nil)
}

// CreateBackupWithProgress runs CreateBackup on its own goroutine and
// streams stage events through the returned reporter. The caller must
// drain the reporter's channel; the worker blocks once the buffer fills,
// which is how a consumer that goes away stops the work.
func (s *Service) CreateBackupWithProgress(ctx context.Context, meta *metadoc.Document) *progress.Reporter {
	reporter := progress.NewReporter(s.cfg.Progress.BufferSize)
	go func() {
		archivePath, err := s.createBackup(ctx, meta, reporter)
		if err != nil {
			reporter.Fail(err)
			return
		}
		size := int64(0)
		if info, statErr := os.Stat(archivePath); statErr == nil {
			size = info.Size()
		}
		reporter.Complete(archivePath, size)
	}()
	return reporter
}

func (s *Service) createBackup(ctx context.Context, meta *metadoc.Document, reporter *progress.Reporter) (string, error) {
	set, err := pattern.CompileSplit(meta.IncludePatterns, meta.ExcludePatterns)
	if err != nil {
		return "", err
	}

	if reporter != nil {
		reporter.Discovery("Matching files")
	}
	matched, truncated, err := s.discovery.Discover(ctx, s.cfg.BaseDirectories(), set, meta.IncludeHidden, s.cfg.Discovery.MaxFiles)
	if err != nil {
		return "", err
	}
	if truncated {
		return "", fmt.Errorf("discovery hit the %d file cap, narrow the patterns or raise discovery.maxFiles", s.cfg.Discovery.MaxFiles)
	}

	if reporter != nil {
		reporter.Preparation("Preparing destination")
	}
	destDir := s.cfg.DestDir
	if destDir == "" {
		destDir = os.TempDir()
	}
	if err := preflight.CheckDestAccessible(destDir); err != nil {
		return "", err
	}
	if err := preflight.CheckDestWritable(destDir); err != nil {
		return "", err
	}
	var totalSize int64
	for _, f := range matched {
		totalSize += f.Size
	}
	if err := preflight.CheckFreeSpace(destDir, totalSize); err != nil {
		return "", err
	}

	format, err := archive.ParseFormat(s.cfg.Archive.Format)
	if err != nil {
		return "", err
	}
	level, err := archive.ParseLevel(s.cfg.Archive.Level)
	if err != nil {
		return "", err
	}

	builder := archive.NewBuilder(format, level, s.cfg.Archive.BufferSizeKB, s.metrics)
	if reporter != nil {
		builder.FileWritten = reporter.Writing
	}

	archivePath, err := builder.Build(ctx, destDir, matched, meta)
	if err != nil {
		return "", err
	}
	if reporter != nil {
		reporter.Finalizing("Archive moved into place")
	}
	return archivePath, nil
}

// Inspect reads an archive's control document and entry list.
func (s *Service) Inspect(archivePath string) (*restore.Inspection, error) {
	return s.restoreEngine().Inspect(archivePath)
}

// PreviewRestore reports what RestoreBackup would do, without writing.
func (s *Service) PreviewRestore(ctx context.Context, archivePath string, opts restore.Options) (*restore.Result, error) {
	return s.restoreEngine().Preview(ctx, archivePath, opts)
}

// RestoreBackup extracts an archive onto this installation.
func (s *Service) RestoreBackup(ctx context.Context, archivePath string, opts restore.Options) (*restore.Result, error) {
	return s.restoreEngine().Restore(ctx, archivePath, opts)
}

func (s *Service) restoreEngine() *restore.Engine {
	return restore.NewEngine(s.cfg.RootPath, s.cfg.BaseDirectories(), s.metrics)
}

// SaveUpload spools an uploaded archive stream into a request-scoped temp
// file so the restore engine can do random access on it. The returned
// cleanup removes the whole temp directory and must be called on every
// exit path.
func (s *Service) SaveUpload(r io.Reader, fileName string) (string, func(), error) {
	if fileName == "" {
		fileName = "upload" + archive.Zip.Extension()
	}
	dir, err := os.MkdirTemp("", "snapvault-upload-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	path := filepath.Join(dir, filepath.Base(fileName))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, util.UserWritableFilePerms)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to spool upload: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}
