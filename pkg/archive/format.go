package archive

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/snapvault/snapvault/pkg/util"
)

// Format represents the archive container format.
type Format string

const (
	Zip    Format = "zip"
	TarGz  Format = "tar.gz"
	TarZst Format = "tar.zst"
)

var formatToString = map[Format]string{
	Zip:    "zip",
	TarGz:  "tar.gz",
	TarZst: "tar.zst",
}

var stringToFormat map[string]Format

func init() {
	// Inverting the map at runtime ensures formatToString is fully loaded
	stringToFormat = util.InvertMap(formatToString)
}

func (f Format) String() string {
	if str, ok := formatToString[f]; ok {
		return str
	}
	return fmt.Sprintf("unknown_archive_format(%s)", string(f))
}

// Extension returns the file extension for the format, including the dot.
func (f Format) Extension() string {
	return "." + f.String()
}

// ParseFormat parses a string into an archive Format.
// It defaults to zip if the string is empty.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return Zip, nil
	}
	if format, ok := stringToFormat[s]; ok {
		return format, nil
	}
	return "", fmt.Errorf("invalid archive format: %q. Must be 'zip', 'tar.gz', or 'tar.zst'", s)
}

// DetectFormat infers the container format from an archive file name.
func DetectFormat(path string) (Format, error) {
	switch {
	case strings.HasSuffix(path, ".zip"):
		return Zip, nil
	case strings.HasSuffix(path, ".tar.gz"), strings.HasSuffix(path, ".tgz"):
		return TarGz, nil
	case strings.HasSuffix(path, ".tar.zst"):
		return TarZst, nil
	default:
		return "", fmt.Errorf("cannot detect archive format from %q", path)
	}
}

// MarshalJSON implements the json.Marshaler interface for Format.
func (f Format) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Format.
func (f *Format) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("archive format should be a string, got %s", data)
	}
	format, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = format
	return nil
}
