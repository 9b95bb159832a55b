// Package archive builds compressed backup archives. Every archive starts
// with the metadata.json control document, followed by one entry per
// matched file, stored under its logical path with the leading separator
// stripped. File contents are streamed; at most one file's bytes are in
// flight at a time.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/snapvault/snapvault/pkg/discovery"
	"github.com/snapvault/snapvault/pkg/metadoc"
	"github.com/snapvault/snapvault/pkg/metrics"
	"github.com/snapvault/snapvault/pkg/plog"
	"github.com/snapvault/snapvault/pkg/util"
)

// ErrNoFilesMatched is returned when a build is attempted with an empty
// file list.
var ErrNoFilesMatched = errors.New("no files matched the backup patterns")

// CreationError is a fatal archive build failure. Temp artifacts have been
// removed by the time it is returned.
type CreationError struct {
	Err error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("archive creation failed: %v", e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// readTracker records a source-side read failure during a copy, so a bad
// input file can be told apart from a broken output stream.
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (n int, err error) {
	n, err = t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return
}

// buildMetricWriter wraps an io.Writer and updates metrics on every write.
type buildMetricWriter struct {
	w       io.Writer
	metrics metrics.Metrics
}

func (mw *buildMetricWriter) Write(p []byte) (n int, err error) {
	n, err = mw.w.Write(p)
	if n > 0 {
		mw.metrics.AddBytesWritten(int64(n))
	}
	return
}

// Builder writes archives in a single configured format.
type Builder struct {
	format     Format
	level      Level
	bufferSize int
	metrics    metrics.Metrics

	// FileWritten, when set, is invoked after each file entry has been
	// processed (written or skipped). Used for progress reporting.
	FileWritten func(done, total int, logicalPath string)
}

// NewBuilder creates a Builder. bufferSizeKB controls the copy and output
// buffer size.
func NewBuilder(format Format, level Level, bufferSizeKB int, m metrics.Metrics) *Builder {
	if m == nil {
		m = &metrics.NoopMetrics{}
	}
	if bufferSizeKB <= 0 {
		bufferSizeKB = 128
	}
	return &Builder{
		format:     format,
		level:      level,
		bufferSize: bufferSizeKB * 1024,
		metrics:    m,
	}
}

// Format returns the container format this builder writes.
func (b *Builder) Format() Format { return b.format }

// entryName converts a logical path into the archive entry name.
func entryName(logicalPath string) string {
	return strings.TrimPrefix(util.NormalizePath(logicalPath), "/")
}

// Build writes the archive into destDir and returns its final path.
// The metadata document is completed (file list, totals) and embedded as
// the first entry. A file that disappeared or became unreadable since
// discovery is logged and skipped; a failure of the output stream is
// fatal, removes the partial archive, and is reported as *CreationError.
func (b *Builder) Build(ctx context.Context, destDir string, matched []discovery.MatchedFile, meta *metadoc.Document) (finalPath string, retErr error) {
	if len(matched) == 0 {
		return "", &CreationError{Err: ErrNoFilesMatched}
	}

	entries := make([]metadoc.FileEntry, len(matched))
	for i, f := range matched {
		entries[i] = metadoc.FileEntry{
			Path:     f.LogicalPath,
			Size:     f.Size,
			Modified: f.Modified.UTC().Format(time.RFC3339),
			Type:     f.Type,
		}
	}
	meta.SetFiles(entries)

	metaBytes, err := meta.Encode()
	if err != nil {
		return "", &CreationError{Err: err}
	}

	finalPath = filepath.Join(destDir, meta.BackupName+b.format.Extension())

	// Write to a temp file in the same directory for an atomic rename.
	trgF, err := os.CreateTemp(destDir, "snapvault-*.tmp")
	if err != nil {
		return "", &CreationError{Err: fmt.Errorf("failed to create temp archive: %w", err)}
	}
	tempPath := trgF.Name()

	// Ensure cleanup on error
	defer func() {
		if retErr != nil {
			trgF.Close()
			os.Remove(tempPath)
		}
	}()

	switch b.format {
	case Zip:
		err = b.writeZip(ctx, trgF, matched, metaBytes, meta)
	case TarGz, TarZst:
		err = b.writeTar(ctx, trgF, matched, metaBytes, meta)
	default:
		err = fmt.Errorf("unsupported format: %s", b.format)
	}
	if err != nil {
		return "", &CreationError{Err: err}
	}

	// Close explicitly to flush to disk before rename.
	if err := trgF.Close(); err != nil {
		return "", &CreationError{Err: fmt.Errorf("failed to close temp file: %w", err)}
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		return "", &CreationError{Err: fmt.Errorf("failed to rename temp archive to final path: %w", err)}
	}
	return finalPath, nil
}

func (b *Builder) writeZip(ctx context.Context, trgF *os.File, matched []discovery.MatchedFile, metaBytes []byte, meta *metadoc.Document) (retErr error) {
	mw := &buildMetricWriter{w: trgF, metrics: b.metrics}
	bufWriter := bufio.NewWriterSize(mw, b.bufferSize)

	zw := zip.NewWriter(bufWriter)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, b.level.flateLevel())
	})

	defer func() {
		if err := zw.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("zip writer close failed: %w", err)
		}
		if err := bufWriter.Flush(); err != nil && retErr == nil {
			retErr = fmt.Errorf("buffer flush failed: %w", err)
		}
	}()

	// The control document is always the first entry.
	metaHeader := &zip.FileHeader{
		Name:     metadoc.FileName,
		Method:   zip.Deflate,
		Modified: meta.Timestamp,
	}
	w, err := zw.CreateHeader(metaHeader)
	if err != nil {
		return fmt.Errorf("failed to write metadata header: %w", err)
	}
	if _, err := w.Write(metaBytes); err != nil {
		return fmt.Errorf("failed to write metadata entry: %w", err)
	}

	buf := make([]byte, b.bufferSize)
	total := len(matched)
	for i, f := range matched {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		header := &zip.FileHeader{
			Name:     entryName(f.LogicalPath),
			Method:   zip.Deflate,
			Modified: f.Modified,
		}
		header.SetMode(util.UserWritableFilePerms)

		src, err := os.Open(f.RealPath)
		if err != nil {
			// The file can disappear between discovery and archiving.
			plog.Warn("Could not back up file, skipping", "file", f.RealPath, "error", err)
			b.metrics.AddFilesFailed(1)
			b.notify(i+1, total, f.LogicalPath)
			continue
		}

		ew, err := zw.CreateHeader(header)
		if err != nil {
			src.Close()
			return fmt.Errorf("failed to write zip header for %s: %w", header.Name, err)
		}
		tracker := &readTracker{r: src}
		n, err := io.CopyBuffer(ew, tracker, buf)
		src.Close()
		if err != nil {
			if tracker.err != nil {
				// Source became unreadable mid-copy. The entry stays short
				// but self-consistent, the stream is intact, keep going.
				plog.Warn("Could not fully read file, entry truncated", "file", f.RealPath, "error", err)
				b.metrics.AddFilesFailed(1)
				b.notify(i+1, total, f.LogicalPath)
				continue
			}
			return fmt.Errorf("failed to write entry %s: %w", header.Name, err)
		}

		plog.Notice("ADD", "file", header.Name, "bytes", n)
		b.metrics.AddBytesRead(n)
		b.metrics.AddFilesArchived(1)
		b.notify(i+1, total, f.LogicalPath)
	}
	return nil
}

func (b *Builder) writeTar(ctx context.Context, trgF *os.File, matched []discovery.MatchedFile, metaBytes []byte, meta *metadoc.Document) (retErr error) {
	mw := &buildMetricWriter{w: trgF, metrics: b.metrics}
	bufWriter := bufio.NewWriterSize(mw, b.bufferSize)

	var compressedWriter io.WriteCloser
	if b.format == TarZst {
		zstdWriter, err := zstd.NewWriter(bufWriter, zstd.WithEncoderLevel(b.level.zstdLevel()))
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		compressedWriter = zstdWriter
	} else {
		pgzipWriter, err := pgzip.NewWriterLevel(bufWriter, b.level.pgzipLevel())
		if err != nil {
			return fmt.Errorf("failed to create gzip writer: %w", err)
		}
		compressedWriter = pgzipWriter
	}

	tw := tar.NewWriter(compressedWriter)
	defer func() {
		if err := tw.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("tar writer close failed: %w", err)
		}
		if err := compressedWriter.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("compressor close failed: %w", err)
		}
		if err := bufWriter.Flush(); err != nil && retErr == nil {
			retErr = fmt.Errorf("buffer flush failed: %w", err)
		}
	}()

	metaHeader := &tar.Header{
		Name:    metadoc.FileName,
		Mode:    int64(util.UserWritableFilePerms),
		Size:    int64(len(metaBytes)),
		ModTime: meta.Timestamp,
	}
	if err := tw.WriteHeader(metaHeader); err != nil {
		return fmt.Errorf("failed to write metadata header: %w", err)
	}
	if _, err := io.Copy(tw, bytes.NewReader(metaBytes)); err != nil {
		return fmt.Errorf("failed to write metadata entry: %w", err)
	}

	buf := make([]byte, b.bufferSize)
	total := len(matched)
	for i, f := range matched {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Re-stat at write time: tar headers need the exact current size.
		src, err := os.Open(f.RealPath)
		if err != nil {
			plog.Warn("Could not back up file, skipping", "file", f.RealPath, "error", err)
			b.metrics.AddFilesFailed(1)
			b.notify(i+1, total, f.LogicalPath)
			continue
		}
		info, err := src.Stat()
		if err != nil {
			src.Close()
			plog.Warn("Could not stat file, skipping", "file", f.RealPath, "error", err)
			b.metrics.AddFilesFailed(1)
			b.notify(i+1, total, f.LogicalPath)
			continue
		}

		header := &tar.Header{
			Name:    entryName(f.LogicalPath),
			Mode:    int64(util.UserWritableFilePerms),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if err := tw.WriteHeader(header); err != nil {
			src.Close()
			return fmt.Errorf("failed to write tar header for %s: %w", header.Name, err)
		}
		n, err := io.CopyBuffer(tw, src, buf)
		src.Close()
		if err != nil {
			// A short tar entry would corrupt the stream, so this is fatal.
			return fmt.Errorf("failed to write entry %s: %w", header.Name, err)
		}

		plog.Notice("ADD", "file", header.Name, "bytes", n)
		b.metrics.AddBytesRead(n)
		b.metrics.AddFilesArchived(1)
		b.notify(i+1, total, f.LogicalPath)
	}
	return nil
}

func (b *Builder) notify(done, total int, logicalPath string) {
	if b.FileWritten != nil {
		b.FileWritten(done, total, logicalPath)
	}
}
