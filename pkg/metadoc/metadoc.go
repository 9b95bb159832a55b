// Package metadoc defines the metadata control document embedded as the
// first entry of every backup archive. The document is the authoritative
// description of what the archive contains and how it was captured; it is
// written once at build time and re-read on every inspect or restore.
package metadoc

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// FileName is the fixed name of the metadata entry inside an archive.
const FileName = "metadata.json"

// FormatVersion identifies the metadata schema revision.
const FormatVersion = "1"

// EnvRootKey is the environmentInfo key holding the capture-time root path.
// Restore path translation substitutes this root with the current one.
const EnvRootKey = "rootPath"

// FileEntry describes one captured file.
type FileEntry struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
	Type     string `json:"type"`
}

// Document is the typed metadata schema. Unknown top-level keys found while
// decoding are preserved in Extra and written back on encode, so documents
// produced by newer revisions survive a read-modify-write cycle.
type Document struct {
	FormatVersion   string         `json:"formatVersion"`
	AppVersion      string         `json:"appVersion"`
	Timestamp       time.Time      `json:"timestamp"`
	BackupName      string         `json:"backupName"`
	IncludeHidden   bool           `json:"includeHidden"`
	IncludePatterns []string       `json:"includePatterns"`
	ExcludePatterns []string       `json:"excludePatterns"`
	SystemInfo      map[string]any `json:"systemInfo"`
	EnvironmentInfo map[string]any `json:"environmentInfo"`
	BackupAuthor    string         `json:"backupAuthor"`
	Files           []FileEntry    `json:"files"`
	TotalFiles      int            `json:"totalFiles"`
	TotalSize       int64          `json:"totalSize"`

	// Extra holds unknown top-level keys for forward compatibility.
	Extra map[string]json.RawMessage `json:"-"`
}

// knownKeys lists every typed top-level field; keys outside this list land
// in Extra during decoding.
var knownKeys = []string{
	"formatVersion", "appVersion", "timestamp", "backupName",
	"includeHidden", "includePatterns", "excludePatterns",
	"systemInfo", "environmentInfo", "backupAuthor",
	"files", "totalFiles", "totalSize",
}

// document is an alias without methods, used to avoid marshaling recursion.
type document Document

// UnmarshalJSON decodes the typed fields and collects any remaining keys
// into Extra.
func (d *Document) UnmarshalJSON(data []byte) error {
	var known document
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownKeys {
		delete(all, k)
	}
	if len(all) > 0 {
		known.Extra = all
	}

	*d = Document(known)
	return nil
}

// MarshalJSON encodes the typed fields and merges the Extra keys back in.
// Typed fields always win over a stale duplicate in Extra.
func (d Document) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(document(d))
	if err != nil {
		return nil, err
	}
	if len(d.Extra) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range d.Extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Encode renders the document as indented JSON for the archive entry.
func (d *Document) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("could not marshal metadata: %w", err)
	}
	return data, nil
}

// Decode parses a metadata document from raw JSON.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("could not parse metadata: %w. It may be corrupt", err)
	}
	return &doc, nil
}

// Read parses a metadata document from a reader, typically an open archive
// entry.
func Read(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read metadata: %w", err)
	}
	return Decode(data)
}

// CaptureRoot returns the root path recorded at capture time, or "" if the
// document does not carry one.
func (d *Document) CaptureRoot() string {
	if d.EnvironmentInfo == nil {
		return ""
	}
	root, _ := d.EnvironmentInfo[EnvRootKey].(string)
	return root
}

// SetFiles populates the file list and the derived totals.
func (d *Document) SetFiles(files []FileEntry) {
	d.Files = files
	d.TotalFiles = len(files)
	var total int64
	for _, f := range files {
		total += f.Size
	}
	d.TotalSize = total
}
