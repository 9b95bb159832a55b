package restore

import (
	"encoding/json"
	"fmt"

	"github.com/snapvault/snapvault/pkg/util"
)

// ConflictPolicy defines how to handle files that already exist at a
// restore destination.
type ConflictPolicy string

const (
	// PolicyOverwrite always writes, replacing any existing file. This is the default.
	PolicyOverwrite ConflictPolicy = "overwrite"
	// PolicySkip leaves an existing file untouched and records it as skipped.
	PolicySkip ConflictPolicy = "skip"
	// PolicyBackupExisting renames an existing file aside with a timestamp
	// suffix before the new content is written.
	PolicyBackupExisting ConflictPolicy = "backup"
)

var policyToString = map[ConflictPolicy]string{
	PolicyOverwrite:      "overwrite",
	PolicySkip:           "skip",
	PolicyBackupExisting: "backup",
}

var stringToPolicy map[string]ConflictPolicy

func init() {
	// Inverting the map at runtime ensures policyToString is fully loaded
	stringToPolicy = util.InvertMap(policyToString)
}

func (p ConflictPolicy) String() string {
	if str, ok := policyToString[p]; ok {
		return str
	}
	return fmt.Sprintf("unknown_conflict_policy(%s)", string(p))
}

// ParseConflictPolicy parses a string into a ConflictPolicy.
// It defaults to overwrite if the string is empty.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	if s == "" {
		return PolicyOverwrite, nil
	}
	if p, ok := stringToPolicy[s]; ok {
		return p, nil
	}
	return "", fmt.Errorf("invalid conflict policy: %q. Must be 'overwrite', 'skip', or 'backup'", s)
}

// MarshalJSON implements the json.Marshaler interface for ConflictPolicy.
func (p ConflictPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for ConflictPolicy.
func (p *ConflictPolicy) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("conflict policy should be a string, got %s", data)
	}
	policy, err := ParseConflictPolicy(s)
	if err != nil {
		return err
	}
	*p = policy
	return nil
}
