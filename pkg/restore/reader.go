package restore

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/snapvault/snapvault/pkg/archive"
	"github.com/snapvault/snapvault/pkg/metadoc"
	"github.com/snapvault/snapvault/pkg/util"
)

// FormatError is a fatal archive problem: an unreadable container, or a
// missing or corrupt metadata.json. Nothing has been written to the
// filesystem when it is returned.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid backup archive: %v", e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// errStopIteration ends an entry walk early without signaling failure.
var errStopIteration = errors.New("stop iteration")

// openEntry yields the content of the entry currently being visited. It
// may be called at most once, during the visit.
type openEntry func() (io.ReadCloser, error)

// walkEntries opens the archive and calls visit for every entry in archive
// order. Entry names are normalized to forward slashes. Container-level
// failures are reported as *FormatError.
func walkEntries(archivePath string, visit func(name string, modTime time.Time, open openEntry) error) error {
	format, err := archive.DetectFormat(archivePath)
	if err != nil {
		return &FormatError{Err: err}
	}

	switch format {
	case archive.Zip:
		return walkZipEntries(archivePath, visit)
	default:
		return walkTarEntries(archivePath, format, visit)
	}
}

func walkZipEntries(archivePath string, visit func(name string, modTime time.Time, open openEntry) error) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return &FormatError{Err: fmt.Errorf("not a valid zip archive: %w", err)}
	}
	defer r.Close()

	for _, f := range r.File {
		open := func() (io.ReadCloser, error) { return f.Open() }
		if err := visit(util.NormalizePath(f.Name), f.Modified, open); err != nil {
			if errors.Is(err, errStopIteration) {
				return nil
			}
			return err
		}
	}
	return nil
}

func walkTarEntries(archivePath string, format archive.Format, visit func(name string, modTime time.Time, open openEntry) error) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return &FormatError{Err: err}
	}
	defer f.Close()

	var r io.Reader
	switch format {
	case archive.TarGz:
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return &FormatError{Err: fmt.Errorf("not a valid gzip stream: %w", err)}
		}
		defer gz.Close()
		r = gz
	case archive.TarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return &FormatError{Err: fmt.Errorf("not a valid zstd stream: %w", err)}
		}
		defer zr.Close()
		r = zr
	}

	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &FormatError{Err: fmt.Errorf("corrupt tar stream: %w", err)}
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		open := func() (io.ReadCloser, error) { return io.NopCloser(tr), nil }
		if err := visit(util.NormalizePath(header.Name), header.ModTime, open); err != nil {
			if errors.Is(err, errStopIteration) {
				return nil
			}
			return err
		}
	}
}

// readEmbeddedMetadata extracts and parses the archive's control document.
func readEmbeddedMetadata(archivePath string) (*metadoc.Document, error) {
	var doc *metadoc.Document

	err := walkEntries(archivePath, func(name string, _ time.Time, open openEntry) error {
		if name != metadoc.FileName {
			return nil
		}
		rc, err := open()
		if err != nil {
			return &FormatError{Err: err}
		}
		defer rc.Close()

		parsed, err := metadoc.Read(rc)
		if err != nil {
			return &FormatError{Err: err}
		}
		doc = parsed
		return errStopIteration
	})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, &FormatError{Err: fmt.Errorf("missing %s", metadoc.FileName)}
	}
	return doc, nil
}
